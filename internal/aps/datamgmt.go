package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kilupskalvis/accmove/internal/models"
)

// jsonapiDocument is the response shell shared by the data management
// endpoints.
type jsonapiDocument struct {
	Data []jsonapiResource `json:"data"`
}

type jsonapiSingleDocument struct {
	Data jsonapiResource `json:"data"`
}

type jsonapiResource struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes,omitempty"`
	Relationships json.RawMessage `json:"relationships,omitempty"`
}

// ListHubs returns all hubs visible to the signed-in user.
func (c *HTTPClient) ListHubs(ctx context.Context) ([]models.Hub, error) {
	var doc jsonapiDocument
	if err := c.doJSON(ctx, "GET", c.url("/project/v1/hubs"), nil, &doc); err != nil {
		return nil, fmt.Errorf("list hubs: %w", err)
	}

	hubs := make([]models.Hub, 0, len(doc.Data))
	for _, res := range doc.Data {
		var attrs struct {
			Name   string `json:"name"`
			Region string `json:"region"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode hub attributes: %w", err)
		}
		hubs = append(hubs, models.Hub{ID: res.ID, Name: attrs.Name, Region: attrs.Region})
	}

	return hubs, nil
}

// ListProjects returns all projects in a hub.
func (c *HTTPClient) ListProjects(ctx context.Context, hubID string) ([]models.Project, error) {
	var doc jsonapiDocument
	path := fmt.Sprintf("/project/v1/hubs/%s/projects", url.PathEscape(hubID))
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &doc); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]models.Project, 0, len(doc.Data))
	for _, res := range doc.Data {
		var attrs struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode project attributes: %w", err)
		}
		projects = append(projects, models.Project{ID: res.ID, Name: attrs.Name})
	}

	return projects, nil
}

// ListTopFolders returns the root folders of a project.
func (c *HTTPClient) ListTopFolders(ctx context.Context, hubID, projectID string) ([]models.Entry, error) {
	path := fmt.Sprintf("/project/v1/hubs/%s/projects/%s/topFolders",
		url.PathEscape(hubID), url.PathEscape(NormalizeProjectID(projectID)))

	var doc jsonapiDocument
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &doc); err != nil {
		return nil, fmt.Errorf("list top folders: %w", err)
	}

	return decodeEntries(doc.Data)
}

// ListFolderContents returns the folders and items inside a folder.
func (c *HTTPClient) ListFolderContents(ctx context.Context, projectID, folderID string) ([]models.Entry, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/folders/%s/contents",
		url.PathEscape(NormalizeProjectID(projectID)), url.PathEscape(folderID))

	var doc jsonapiDocument
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &doc); err != nil {
		return nil, fmt.Errorf("list folder contents: %w", err)
	}

	return decodeEntries(doc.Data)
}

func decodeEntries(resources []jsonapiResource) ([]models.Entry, error) {
	entries := make([]models.Entry, 0, len(resources))
	for _, res := range resources {
		var attrs struct {
			DisplayName string `json:"displayName"`
			Name        string `json:"name"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode entry attributes: %w", err)
		}

		name := attrs.DisplayName
		if name == "" {
			name = attrs.Name
		}
		entries = append(entries, models.Entry{ID: res.ID, Name: name, Type: res.Type})
	}

	return entries, nil
}

// LatestVersion resolves the tip version of an item, including the storage
// location holding its file.
func (c *HTTPClient) LatestVersion(ctx context.Context, projectID, itemID string) (*models.Version, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/items/%s/tip",
		url.PathEscape(NormalizeProjectID(projectID)), url.PathEscape(itemID))

	var doc jsonapiSingleDocument
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &doc); err != nil {
		return nil, fmt.Errorf("resolve latest version: %w", err)
	}

	var attrs struct {
		Name          string `json:"name"`
		DisplayName   string `json:"displayName"`
		VersionNumber int    `json:"versionNumber"`
	}
	if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decode version attributes: %w", err)
	}

	var rels struct {
		Storage struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"storage"`
	}
	if len(doc.Data.Relationships) > 0 {
		if err := json.Unmarshal(doc.Data.Relationships, &rels); err != nil {
			return nil, fmt.Errorf("decode version relationships: %w", err)
		}
	}

	name := attrs.DisplayName
	if name == "" {
		name = attrs.Name
	}

	return &models.Version{
		ID:         doc.Data.ID,
		Name:       name,
		Number:     attrs.VersionNumber,
		StorageURN: rels.Storage.Data.ID,
	}, nil
}

// ItemParentFolder returns the id of the folder containing an item.
func (c *HTTPClient) ItemParentFolder(ctx context.Context, projectID, itemID string) (string, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/items/%s/parent",
		url.PathEscape(NormalizeProjectID(projectID)), url.PathEscape(itemID))

	var doc jsonapiSingleDocument
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &doc); err != nil {
		return "", fmt.Errorf("resolve parent folder: %w", err)
	}

	return doc.Data.ID, nil
}

type storageRequest struct {
	JSONAPI jsonapiVersion `json:"jsonapi"`
	Data    storageData    `json:"data"`
}

type jsonapiVersion struct {
	Version string `json:"version"`
}

type storageData struct {
	Type          string               `json:"type"`
	Attributes    storageAttributes    `json:"attributes"`
	Relationships storageRelationships `json:"relationships"`
}

type storageAttributes struct {
	Name string `json:"name"`
}

type storageRelationships struct {
	Target relationship `json:"target"`
}

type relationship struct {
	Data relationshipData `json:"data"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CreateStorage reserves a storage location for a new file in the given
// folder and returns its URN.
func (c *HTTPClient) CreateStorage(ctx context.Context, projectID, folderID, name string) (string, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/storage", url.PathEscape(NormalizeProjectID(projectID)))

	req := &storageRequest{
		JSONAPI: jsonapiVersion{Version: "1.0"},
		Data: storageData{
			Type:       "objects",
			Attributes: storageAttributes{Name: name},
			Relationships: storageRelationships{
				Target: relationship{Data: relationshipData{Type: "folders", ID: folderID}},
			},
		},
	}

	var doc jsonapiSingleDocument
	if err := c.doJSONAPI(ctx, "POST", c.url(path), req, &doc); err != nil {
		return "", fmt.Errorf("create storage: %w", err)
	}
	if doc.Data.ID == "" {
		return "", fmt.Errorf("create storage: response carried no object urn")
	}

	return doc.Data.ID, nil
}

type versionRequest struct {
	JSONAPI jsonapiVersion `json:"jsonapi"`
	Data    versionData    `json:"data"`
}

type versionData struct {
	Type          string               `json:"type"`
	Attributes    versionAttributes    `json:"attributes"`
	Relationships versionRelationships `json:"relationships"`
}

type versionAttributes struct {
	Name      string           `json:"name"`
	Extension versionExtension `json:"extension"`
}

type versionExtension struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

type versionRelationships struct {
	Item    relationship `json:"item"`
	Storage relationship `json:"storage"`
}

// CreateVersion appends a new version to an item, pointing at an uploaded
// storage object. Existing versions are never touched.
func (c *HTTPClient) CreateVersion(ctx context.Context, projectID, itemID, storageURN, name string) (string, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/versions", url.PathEscape(NormalizeProjectID(projectID)))

	req := &versionRequest{
		JSONAPI: jsonapiVersion{Version: "1.0"},
		Data: versionData{
			Type: "versions",
			Attributes: versionAttributes{
				Name:      name,
				Extension: versionExtension{Type: "versions:autodesk.bim360:File", Version: "1.0"},
			},
			Relationships: versionRelationships{
				Item:    relationship{Data: relationshipData{Type: "items", ID: itemID}},
				Storage: relationship{Data: relationshipData{Type: "objects", ID: storageURN}},
			},
		},
	}

	var doc jsonapiSingleDocument
	if err := c.doJSONAPI(ctx, "POST", c.url(path), req, &doc); err != nil {
		return "", fmt.Errorf("create version: %w", err)
	}
	if doc.Data.ID == "" {
		return "", fmt.Errorf("create version: response carried no version id")
	}

	return doc.Data.ID, nil
}
