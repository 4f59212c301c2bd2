package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/kilupskalvis/accmove/internal/models"
)

// daBasePath is the Design Automation v3 API root. All processing runs in
// the us-east region regardless of where the model lives.
const daBasePath = "/da/us-east/v3"

// maxReportSize caps how much of an execution report is read into memory.
const maxReportSize = 1 << 20

// Activity argument names. These must match the parameter names declared
// when the activity is registered.
const (
	argModel       = "rvtFile"
	argParams      = "moveParams"
	argResult      = "result"
	argDiagnostics = "diagnostics"
)

// Worker runs a transform job against a model and reports its outcome.
type Worker interface {
	// Submit starts a job that applies manifest to the model readable at
	// sourceURL and returns the submission with its output locations.
	Submit(ctx context.Context, sourceURL string, manifest *models.TransformManifest) (*models.Submission, error)

	// Status reports the current state of a submitted job.
	Status(ctx context.Context, id string) (*models.WorkItemStatus, error)

	// FetchReport retrieves an execution report from its signed URL.
	FetchReport(ctx context.Context, reportURL string) ([]byte, error)

	// DownloadOutput retrieves a job output object.
	DownloadOutput(ctx context.Context, ref models.ObjectRef) ([]byte, error)
}

// DesignAutomationClient implements Worker on the Design Automation
// workitem API. It runs on an app token, not the signed-in user's token:
// the work bucket belongs to the app, and workitems are submitted on the
// app's behalf.
type DesignAutomationClient struct {
	*HTTPClient
	daBase   string
	activity string
	bucket   string
}

var _ Worker = (*DesignAutomationClient)(nil)

// NewDesignAutomationClient returns a worker that runs the given fully
// qualified activity and stages outputs in the given transient bucket.
func NewDesignAutomationClient(baseURL string, tokens TokenProvider, activity, bucket string) *DesignAutomationClient {
	return &DesignAutomationClient{
		HTTPClient: NewHTTPClient(baseURL, tokens),
		daBase:     strings.TrimRight(baseURL, "/") + daBasePath,
		activity:   activity,
		bucket:     bucket,
	}
}

// WorkBucketName derives the transient bucket used for job outputs from the
// app client id. Bucket keys are global across all apps, so the client id
// keeps them from colliding.
func WorkBucketName(clientID string) string {
	key := "accmove-" + strings.ToLower(clientID)
	if len(key) > 128 {
		key = key[:128]
	}
	return key
}

type workItemRequest struct {
	ActivityID string                      `json:"activityId"`
	Arguments  map[string]workItemArgument `json:"arguments"`
}

type workItemArgument struct {
	URL     string            `json:"url"`
	Verb    string            `json:"verb,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type workItemResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl"`
}

// Submit stages signed output slots in the work bucket and posts a workitem
// that reads the model from sourceURL and the transform manifest from an
// inline data URL.
func (c *DesignAutomationClient) Submit(ctx context.Context, sourceURL string, manifest *models.TransformManifest) (*models.Submission, error) {
	if err := c.EnsureBucket(ctx, c.bucket, "transient"); err != nil {
		return nil, err
	}

	jobKey := uuid.New().String()
	output := models.ObjectRef{Bucket: c.bucket, Key: jobKey + "-result.rvt"}
	diagnostics := models.ObjectRef{Bucket: c.bucket, Key: jobKey + "-diagnostics.zip"}

	outputURL, err := c.CreateSignedURL(ctx, output, "readwrite")
	if err != nil {
		return nil, fmt.Errorf("stage result slot: %w", err)
	}
	diagnosticsURL, err := c.CreateSignedURL(ctx, diagnostics, "readwrite")
	if err != nil {
		return nil, fmt.Errorf("stage diagnostics slot: %w", err)
	}

	params, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode transform manifest: %w", err)
	}

	req := &workItemRequest{
		ActivityID: c.activity,
		Arguments: map[string]workItemArgument{
			argModel:       {URL: sourceURL},
			argParams:      {URL: "data:application/json," + string(params)},
			argResult:      {URL: outputURL, Verb: "put"},
			argDiagnostics: {URL: diagnosticsURL, Verb: "put"},
		},
	}

	var resp workItemResponse
	if err := c.doJSON(ctx, "POST", c.daBase+"/workitems", req, &resp); err != nil {
		return nil, fmt.Errorf("submit workitem: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("submit workitem: response carried no id")
	}

	return &models.Submission{ID: resp.ID, Output: output, Diagnostics: diagnostics}, nil
}

// Status reports the current state of a workitem.
func (c *DesignAutomationClient) Status(ctx context.Context, id string) (*models.WorkItemStatus, error) {
	var resp workItemResponse
	if err := c.doJSON(ctx, "GET", c.daBase+"/workitems/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("workitem status: %w", err)
	}

	return &models.WorkItemStatus{ID: resp.ID, Status: resp.Status, ReportURL: resp.ReportURL}, nil
}

// FetchReport reads the execution report behind a signed URL. The report
// URL already carries its credential, so no token is attached.
func (c *DesignAutomationClient) FetchReport(ctx context.Context, reportURL string) ([]byte, error) {
	resp, err := c.doSigned(ctx, "GET", reportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportSize))
	if err != nil {
		return nil, fmt.Errorf("read report body: %w", err)
	}

	return data, nil
}

// DownloadOutput retrieves a job output from the work bucket.
func (c *DesignAutomationClient) DownloadOutput(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	return c.DownloadObject(ctx, ref)
}
