package aps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken implements TokenProvider with a fixed token.
type staticToken string

func (s staticToken) AccessToken(_ context.Context) (string, error) {
	return string(s), nil
}

// failingToken implements TokenProvider and always errors.
type failingToken struct{}

func (failingToken) AccessToken(_ context.Context) (string, error) {
	return "", errors.New("no credential")
}

func TestHTTPClient_AttachesBearer(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, staticToken("tok-123"))
	require.NoError(t, c.doJSON(context.Background(), "GET", c.url("/anything"), nil, nil))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestHTTPClient_TokenFailureStopsRequest(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, failingToken{})
	err := c.doJSON(context.Background(), "GET", c.url("/anything"), nil, nil)
	require.Error(t, err)
	assert.False(t, called)
}

func TestHTTPClient_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"code":"RESOURCE_NOT_FOUND","detail":"no such item"}]}`))
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), "GET", c.url("/missing"), nil, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsPermissionDenied(err))

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Equal(t, "RESOURCE_NOT_FOUND", re.Code)
	assert.Contains(t, re.Body, "no such item")
}

func TestHTTPClient_PermissionDenied(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"AUTH-012","detail":"user not on project"}`))
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), "GET", c.url("/forbidden"), nil, nil)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsNotFound(err))
}

func TestHTTPClient_ErrorSurvivesWrapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"reason":"not found"}`))
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, staticToken("tok"))
	_, err := c.ListHubs(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "list hubs")
}

func TestDecodeError_NonJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	t.Cleanup(ts.Close)

	c := NewHTTPClient(ts.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), "GET", c.url("/flaky"), nil, nil)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadGateway, re.Status)
	assert.Empty(t, re.Code)
	assert.Equal(t, "upstream unavailable", re.Body)
}
