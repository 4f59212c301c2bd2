package aps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/kilupskalvis/accmove/internal/models"
	"golang.org/x/sync/errgroup"
)

// signedDownloadResponse is the reply from the signeds3download endpoint.
type signedDownloadResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// SignedDownloadURL requests a pre-signed read URL for an object.
func (c *HTTPClient) SignedDownloadURL(ctx context.Context, ref models.ObjectRef) (string, error) {
	path := fmt.Sprintf("/oss/v2/buckets/%s/objects/%s/signeds3download",
		url.PathEscape(ref.Bucket), url.PathEscape(ref.Key))

	var resp signedDownloadResponse
	if err := c.doJSON(ctx, "GET", c.url(path), nil, &resp); err != nil {
		return "", fmt.Errorf("sign download: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("sign download: response carried no url")
	}

	return resp.URL, nil
}

// DownloadObject fetches an object in two steps: obtain a signed URL, then
// read it directly. The bearer token is never sent to the signed URL.
func (c *HTTPClient) DownloadObject(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	signed, err := c.SignedDownloadURL(ctx, ref)
	if err != nil {
		return nil, err
	}

	resp, err := c.doSigned(ctx, "GET", signed, nil)
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}

	return data, nil
}

// signedUploadResponse is the reply from the signeds3upload endpoint.
type signedUploadResponse struct {
	UploadKey string   `json:"uploadKey"`
	URLs      []string `json:"urls"`
}

type finalizeUploadRequest struct {
	UploadKey string `json:"uploadKey"`
}

// UploadObject pushes data to storage in three phases: request signed part
// URLs, PUT each part, then finalize with the upload key. A failure in any
// phase is reported as an UploadError naming that phase; nothing is retried
// and partial uploads are left where they are.
func (c *HTTPClient) UploadObject(ctx context.Context, ref models.ObjectRef, data []byte) error {
	parts := (len(data) + c.uploadPartSize - 1) / c.uploadPartSize
	if parts == 0 {
		parts = 1
	}

	signPath := fmt.Sprintf("/oss/v2/buckets/%s/objects/%s/signeds3upload?parts=%d&firstPart=1",
		url.PathEscape(ref.Bucket), url.PathEscape(ref.Key), parts)

	var signed signedUploadResponse
	if err := c.doJSON(ctx, "GET", c.url(signPath), nil, &signed); err != nil {
		return &UploadError{Phase: UploadPhaseSign, Err: err}
	}
	if signed.UploadKey == "" || len(signed.URLs) < parts {
		return &UploadError{
			Phase: UploadPhaseSign,
			Err:   fmt.Errorf("got %d part urls for %d parts", len(signed.URLs), parts),
		}
	}

	if err := c.putParts(ctx, signed.URLs[:parts], data); err != nil {
		return &UploadError{Phase: UploadPhasePut, Err: err}
	}

	finalizePath := fmt.Sprintf("/oss/v2/buckets/%s/objects/%s/signeds3upload",
		url.PathEscape(ref.Bucket), url.PathEscape(ref.Key))
	if err := c.doJSON(ctx, "POST", c.url(finalizePath), &finalizeUploadRequest{UploadKey: signed.UploadKey}, nil); err != nil {
		return &UploadError{Phase: UploadPhaseFinalize, Err: err}
	}

	return nil
}

// putParts transfers the data chunks to their signed URLs with bounded
// parallelism.
func (c *HTTPClient) putParts(ctx context.Context, urls []string, data []byte) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.uploadWorkers)

	for i, partURL := range urls {
		start := i * c.uploadPartSize
		end := start + c.uploadPartSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		u := partURL

		g.Go(func() error {
			resp, err := c.doSigned(ctx, "PUT", u, bytes.NewReader(chunk))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)

			if resp.StatusCode >= 400 {
				return fmt.Errorf("part upload returned %d", resp.StatusCode)
			}
			return nil
		})
	}

	return g.Wait()
}

type bucketRequest struct {
	BucketKey string `json:"bucketKey"`
	PolicyKey string `json:"policyKey"`
}

// EnsureBucket creates an object storage bucket, treating "already exists"
// as success.
func (c *HTTPClient) EnsureBucket(ctx context.Context, bucket, policy string) error {
	req := &bucketRequest{BucketKey: bucket, PolicyKey: policy}
	err := c.doJSON(ctx, "POST", c.url("/oss/v2/buckets"), req, nil)
	if err != nil && !IsConflict(err) {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return nil
}

type signedResourceResponse struct {
	SignedURL string `json:"signedUrl"`
}

// CreateSignedURL mints a signed resource URL for one object with the given
// access mode ("read", "write", or "readwrite").
func (c *HTTPClient) CreateSignedURL(ctx context.Context, ref models.ObjectRef, access string) (string, error) {
	path := fmt.Sprintf("/oss/v2/buckets/%s/objects/%s/signed?access=%s",
		url.PathEscape(ref.Bucket), url.PathEscape(ref.Key), url.QueryEscape(access))

	var resp signedResourceResponse
	if err := c.doJSON(ctx, "POST", c.url(path), struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("sign resource: %w", err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("sign resource: response carried no url")
	}

	return resp.SignedURL, nil
}
