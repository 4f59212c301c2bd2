package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
)

// ErrAuthRequired signals that no usable credential exists and the user has
// to sign in again.
var ErrAuthRequired = errors.New("authentication required: run 'accmove login'")

// CredentialStore persists the three-legged credential between runs.
type CredentialStore interface {
	Credential() (*models.Credential, error)
	SaveCredential(cred *models.Credential) error
	ClearCredential() error
}

// Refresher exchanges a refresh token for a fresh credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.Credential, error)
}

// TokenSource hands out valid user access tokens backed by the credential
// store. A stale credential is refreshed at most once per call; a failed
// refresh clears the store so the next attempt starts signed out.
type TokenSource struct {
	store     CredentialStore
	refresher Refresher
	now       func() time.Time
	mu        sync.Mutex
}

// NewTokenSource creates a TokenSource over the given store and refresher.
func NewTokenSource(store CredentialStore, refresher Refresher) *TokenSource {
	return &TokenSource{store: store, refresher: refresher, now: time.Now}
}

// Token returns a credential whose access token is outside the expiry margin.
func (ts *TokenSource) Token(ctx context.Context) (*models.Credential, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	cred, err := ts.store.Credential()
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, ErrAuthRequired
	}

	if !cred.Expired(ts.now()) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		if err := ts.store.ClearCredential(); err != nil {
			return nil, fmt.Errorf("clear credential: %w", err)
		}
		return nil, ErrAuthRequired
	}

	fresh, err := ts.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		// A failed refresh is not retried; the stale credential is dropped.
		if clearErr := ts.store.ClearCredential(); clearErr != nil {
			return nil, fmt.Errorf("clear credential after failed refresh: %w", clearErr)
		}
		return nil, fmt.Errorf("%w (refresh failed: %v)", ErrAuthRequired, err)
	}

	if err := ts.store.SaveCredential(fresh); err != nil {
		return nil, fmt.Errorf("save refreshed credential: %w", err)
	}

	return fresh, nil
}

// AccessToken returns just the bearer token string.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	cred, err := ts.Token(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// AppTokenSource mints two-legged app tokens on demand and caches the
// current one in memory. Nothing is persisted.
type AppTokenSource struct {
	oauth  *Client
	scopes []string
	now    func() time.Time
	mu     sync.Mutex
	cred   *models.Credential
}

// NewAppTokenSource creates an AppTokenSource minting tokens for the given scopes.
func NewAppTokenSource(oauth *Client, scopes ...string) *AppTokenSource {
	return &AppTokenSource{oauth: oauth, scopes: scopes, now: time.Now}
}

// Token returns the cached app credential, minting a new one when stale.
func (s *AppTokenSource) Token(ctx context.Context) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred != nil && !s.cred.Expired(s.now()) {
		return s.cred, nil
	}

	cred, err := s.oauth.ClientCredentials(ctx, s.scopes)
	if err != nil {
		return nil, fmt.Errorf("mint app token: %w", err)
	}
	s.cred = cred
	return cred, nil
}

// AccessToken returns just the bearer token string.
func (s *AppTokenSource) AccessToken(ctx context.Context) (string, error) {
	cred, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}
