// Package auth implements the OAuth flows against the Autodesk
// authentication service and the token sources used by API clients.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
)

// Scopes used by accmove.
var (
	// UserScopes cover the three-legged data access the CLI performs on the
	// user's behalf.
	UserScopes = []string{"data:read", "data:write", "data:create"}

	// AppScopes cover the two-legged surface: apply worker submission and
	// the transient output bucket, plus provisioning.
	AppScopes = []string{"code:all", "data:read", "data:write", "data:create", "bucket:create", "bucket:read"}
)

// Client talks to the Autodesk authentication v2 endpoints.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	callbackURL  string
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient creates an OAuth client. clientSecret may be empty for flows
// that do not need it.
func NewClient(baseURL, clientID, clientSecret, callbackURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		callbackURL:  callbackURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// AuthorizeURL returns the browser URL that starts the three-legged grant.
func (c *Client) AuthorizeURL(scopes []string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.callbackURL)
	q.Set("scope", strings.Join(scopes, " "))
	return c.baseURL + "/authentication/v2/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for a credential.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*models.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.callbackURL)
	return c.token(ctx, form)
}

// Refresh trades a refresh token for a new credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, form)
}

// ClientCredentials performs the two-legged grant for app-only scopes.
func (c *Client) ClientCredentials(ctx context.Context, scopes []string) (*models.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", strings.Join(scopes, " "))
	return c.token(ctx, form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) token(ctx context.Context, form url.Values) (*models.Credential, error) {
	// Confidential clients authenticate with Basic auth; public clients
	// carry the client id in the form body.
	if c.clientSecret == "" {
		form.Set("client_id", c.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/authentication/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.clientSecret != "" {
		req.SetBasicAuth(c.clientID, c.clientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	return &models.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
