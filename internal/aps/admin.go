package aps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// AdminClient handles one-time Design Automation registration: the app
// bundle carrying the transform add-in, the activity that runs it, and the
// aliases that workitems resolve. Like the worker it runs on an app token.
type AdminClient struct {
	*HTTPClient
	daBase string
}

// NewAdminClient returns a provisioning client for the Design Automation
// admin endpoints.
func NewAdminClient(baseURL string, tokens TokenProvider) *AdminClient {
	return &AdminClient{
		HTTPClient: NewHTTPClient(baseURL, tokens),
		daBase:     strings.TrimRight(baseURL, "/") + daBasePath,
	}
}

// Nickname reports the owner prefix under which bundles and activities are
// registered. Apps without an explicit nickname get their client id back.
func (c *AdminClient) Nickname(ctx context.Context) (string, error) {
	var nickname string
	if err := c.doJSON(ctx, "GET", c.daBase+"/forgeapps/me", nil, &nickname); err != nil {
		return "", fmt.Errorf("fetch nickname: %w", err)
	}
	return nickname, nil
}

// QualifiedID joins an owner nickname, a short id, and an alias into the
// fully qualified form that activities and app bundles are referenced by.
func QualifiedID(nickname, id, alias string) string {
	return nickname + "." + id + "+" + alias
}

// AppBundleSpec describes the add-in package to register.
type AppBundleSpec struct {
	ID          string
	Engine      string
	Description string
}

// AppBundleUpload is the staged destination for the bundle zip, returned by
// RegisterAppBundle and consumed by UploadAppBundle.
type AppBundleUpload struct {
	Version     int
	EndpointURL string
	FormData    map[string]string
}

type appBundleRequest struct {
	ID          string `json:"id,omitempty"`
	Engine      string `json:"engine"`
	Description string `json:"description,omitempty"`
}

type uploadParameters struct {
	EndpointURL string            `json:"endpointURL"`
	FormData    map[string]string `json:"formData"`
}

type appBundleResponse struct {
	ID               string           `json:"id"`
	Version          int              `json:"version"`
	UploadParameters uploadParameters `json:"uploadParameters"`
}

// RegisterAppBundle creates the app bundle, or a new version of it when the
// id is already taken, and returns where to upload the bundle zip.
func (c *AdminClient) RegisterAppBundle(ctx context.Context, spec *AppBundleSpec) (*AppBundleUpload, error) {
	req := &appBundleRequest{ID: spec.ID, Engine: spec.Engine, Description: spec.Description}

	var resp appBundleResponse
	err := c.doJSON(ctx, "POST", c.daBase+"/appbundles", req, &resp)
	if IsConflict(err) {
		verReq := &appBundleRequest{Engine: spec.Engine, Description: spec.Description}
		if err := c.doJSON(ctx, "POST", c.daBase+"/appbundles/"+url.PathEscape(spec.ID)+"/versions", verReq, &resp); err != nil {
			return nil, fmt.Errorf("register app bundle version: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("register app bundle: %w", err)
	}

	if resp.UploadParameters.EndpointURL == "" {
		return nil, fmt.Errorf("register app bundle: response carried no upload destination")
	}

	return &AppBundleUpload{
		Version:     resp.Version,
		EndpointURL: resp.UploadParameters.EndpointURL,
		FormData:    resp.UploadParameters.FormData,
	}, nil
}

// UploadAppBundle posts the bundle zip to the staged destination. The form
// endpoint authenticates with the signed policy fields, so no token is
// attached; the file part must come after the policy fields.
func (c *AdminClient) UploadAppBundle(ctx context.Context, up *AppBundleUpload, bundle []byte) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range up.FormData {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("encode upload form: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", "appbundle.zip")
	if err != nil {
		return fmt.Errorf("encode upload form: %w", err)
	}
	if _, err := part.Write(bundle); err != nil {
		return fmt.Errorf("encode upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("encode upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", up.EndpointURL, &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload app bundle: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upload app bundle: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

type aliasRequest struct {
	ID      string `json:"id,omitempty"`
	Version int    `json:"version"`
}

// SetAppBundleAlias points alias at the given bundle version, creating the
// alias when it does not exist yet.
func (c *AdminClient) SetAppBundleAlias(ctx context.Context, id, alias string, version int) error {
	req := &aliasRequest{ID: alias, Version: version}
	err := c.doJSON(ctx, "POST", c.daBase+"/appbundles/"+url.PathEscape(id)+"/aliases", req, nil)
	if IsConflict(err) {
		patch := &aliasRequest{Version: version}
		aliasURL := c.daBase + "/appbundles/" + url.PathEscape(id) + "/aliases/" + url.PathEscape(alias)
		if err := c.doJSON(ctx, "PATCH", aliasURL, patch, nil); err != nil {
			return fmt.Errorf("update app bundle alias: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("create app bundle alias: %w", err)
	}
	return nil
}

// ActivitySpec describes the activity that runs the transform add-in.
type ActivitySpec struct {
	ID          string
	Engine      string
	AppBundle   string
	CommandLine string
	Description string
}

// NewRevitActivitySpec builds the activity definition for a Revit engine:
// revitcoreconsole opens the input model with the add-in bundle loaded.
func NewRevitActivitySpec(id, engine, appBundle string) *ActivitySpec {
	command := fmt.Sprintf(`$(engine.path)\revitcoreconsole.exe /i "$(args[%s].path)" /al "$(appbundles[%s].path)"`,
		argModel, bundleShortName(appBundle))
	return &ActivitySpec{
		ID:          id,
		Engine:      engine,
		AppBundle:   appBundle,
		CommandLine: command,
	}
}

// bundleShortName strips the owner prefix and alias suffix from a fully
// qualified app bundle id.
func bundleShortName(qualified string) string {
	name := qualified
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '+'); i >= 0 {
		name = name[:i]
	}
	return name
}

type activityRequest struct {
	ID          string                       `json:"id,omitempty"`
	CommandLine []string                     `json:"commandLine"`
	Parameters  map[string]activityParameter `json:"parameters"`
	Engine      string                       `json:"engine"`
	AppBundles  []string                     `json:"appbundles"`
	Description string                       `json:"description,omitempty"`
}

type activityParameter struct {
	Verb        string `json:"verb"`
	LocalName   string `json:"localName,omitempty"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

type activityResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// RegisterActivity creates the activity, or a new version of it when the id
// is already taken, and returns the registered version number.
func (c *AdminClient) RegisterActivity(ctx context.Context, spec *ActivitySpec) (int, error) {
	req := &activityRequest{
		ID:          spec.ID,
		CommandLine: []string{spec.CommandLine},
		Engine:      spec.Engine,
		AppBundles:  []string{spec.AppBundle},
		Description: spec.Description,
		Parameters: map[string]activityParameter{
			argModel:       {Verb: "get", Required: true, LocalName: "input.rvt", Description: "source model"},
			argParams:      {Verb: "get", Required: true, LocalName: "moveParams.json", Description: "transform manifest"},
			argResult:      {Verb: "put", Required: true, LocalName: "result.rvt", Description: "transformed model"},
			argDiagnostics: {Verb: "put", Required: false, LocalName: "diagnostics.zip", Description: "element diagnostics archive"},
		},
	}

	var resp activityResponse
	err := c.doJSON(ctx, "POST", c.daBase+"/activities", req, &resp)
	if IsConflict(err) {
		verReq := *req
		verReq.ID = ""
		if err := c.doJSON(ctx, "POST", c.daBase+"/activities/"+url.PathEscape(spec.ID)+"/versions", &verReq, &resp); err != nil {
			return 0, fmt.Errorf("register activity version: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("register activity: %w", err)
	}

	return resp.Version, nil
}

// SetActivityAlias points alias at the given activity version, creating the
// alias when it does not exist yet.
func (c *AdminClient) SetActivityAlias(ctx context.Context, id, alias string, version int) error {
	req := &aliasRequest{ID: alias, Version: version}
	err := c.doJSON(ctx, "POST", c.daBase+"/activities/"+url.PathEscape(id)+"/aliases", req, nil)
	if IsConflict(err) {
		patch := &aliasRequest{Version: version}
		aliasURL := c.daBase + "/activities/" + url.PathEscape(id) + "/aliases/" + url.PathEscape(alias)
		if err := c.doJSON(ctx, "PATCH", aliasURL, patch, nil); err != nil {
			return fmt.Errorf("update activity alias: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("create activity alias: %w", err)
	}
	return nil
}
