// Package aps implements clients for the Autodesk Platform Services REST
// APIs used by accmove: data management (hubs, projects, folders, items,
// versions), object storage with signed transfers, and the Design
// Automation apply worker.
package aps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
)

// TokenProvider supplies bearer tokens for API requests.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// ResourceClient defines the contract for reaching ACC project data.
type ResourceClient interface {
	ListHubs(ctx context.Context) ([]models.Hub, error)
	ListProjects(ctx context.Context, hubID string) ([]models.Project, error)
	ListTopFolders(ctx context.Context, hubID, projectID string) ([]models.Entry, error)
	ListFolderContents(ctx context.Context, projectID, folderID string) ([]models.Entry, error)

	LatestVersion(ctx context.Context, projectID, itemID string) (*models.Version, error)
	ItemParentFolder(ctx context.Context, projectID, itemID string) (string, error)

	SignedDownloadURL(ctx context.Context, ref models.ObjectRef) (string, error)
	DownloadObject(ctx context.Context, ref models.ObjectRef) ([]byte, error)
	CreateStorage(ctx context.Context, projectID, folderID, name string) (string, error)
	UploadObject(ctx context.Context, ref models.ObjectRef, data []byte) error
	CreateVersion(ctx context.Context, projectID, itemID, storageURN, name string) (string, error)
}

// HTTPClient implements ResourceClient over HTTP.
type HTTPClient struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client

	// uploadPartSize is the chunk size for signed multipart uploads.
	uploadPartSize int
	// uploadWorkers bounds parallel part transfers.
	uploadWorkers int
}

// NewHTTPClient creates an HTTP-based resource client.
func NewHTTPClient(baseURL string, tokens TokenProvider) *HTTPClient {
	return &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokens:         tokens,
		httpClient:     &http.Client{Timeout: 5 * time.Minute},
		uploadPartSize: 5 * 1024 * 1024,
		uploadWorkers:  4,
	}
}

var _ ResourceClient = (*HTTPClient)(nil)

func (c *HTTPClient) url(path string) string {
	return c.baseURL + path
}

// do executes an authenticated request against the vendor API.
func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	return c.doJSONType(ctx, method, url, "application/json", reqBody, respBody)
}

// doJSONAPI posts a JSON:API document, as the data management write
// endpoints require.
func (c *HTTPClient) doJSONAPI(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	return c.doJSONType(ctx, method, url, "application/vnd.api+json", reqBody, respBody)
}

func (c *HTTPClient) doJSONType(ctx context.Context, method, url, contentType string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": contentType}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// doSigned executes a request against a signed URL. The bearer token is
// never attached; the signature in the URL is the only credential.
func (c *HTTPClient) doSigned(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}
