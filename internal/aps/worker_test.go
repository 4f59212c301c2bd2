package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkerClient(t *testing.T) (*http.ServeMux, *httptest.Server, *DesignAutomationClient) {
	t.Helper()
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	worker := NewDesignAutomationClient(ts.URL, staticToken("app-tok"), "buildcorp.MoveElements+prod", "accmove-app")
	return mux, ts, worker
}

func testManifest() *models.TransformManifest {
	return models.NewTransformManifest([]*models.PendingChange{{
		ElementID:        101,
		ElementKey:       "aaaa-bbbb-cccc",
		ElementName:      "Basic Wall",
		OriginalPosition: models.Position{X: 1, Y: 2, Z: 0},
		NewPosition:      models.Position{X: 4, Y: 2, Z: 0},
	}})
}

func stageSubmitRoutes(mux *http.ServeMux, ts *httptest.Server) {
	mux.HandleFunc("POST /oss/v2/buckets", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	mux.HandleFunc("POST /oss/v2/buckets/{bucket}/objects/{key}/signed", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fmt.Sprintf(`{"signedUrl":%q}`, ts.URL+"/signed/"+r.PathValue("key")))
	})
}

func TestSubmit_BuildsWorkItem(t *testing.T) {
	mux, ts, worker := newWorkerClient(t)
	stageSubmitRoutes(mux, ts)

	var gotReq workItemRequest
	mux.HandleFunc("POST /da/us-east/v3/workitems", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		io.WriteString(w, `{"id":"wi-1","status":"pending"}`)
	})

	sub, err := worker.Submit(context.Background(), "https://signed.example/source.rvt", testManifest())
	require.NoError(t, err)

	assert.Equal(t, "wi-1", sub.ID)
	assert.Equal(t, "accmove-app", sub.Output.Bucket)
	assert.True(t, strings.HasSuffix(sub.Output.Key, "-result.rvt"))
	assert.Equal(t, "accmove-app", sub.Diagnostics.Bucket)
	assert.True(t, strings.HasSuffix(sub.Diagnostics.Key, "-diagnostics.zip"))

	assert.Equal(t, "buildcorp.MoveElements+prod", gotReq.ActivityID)
	assert.Equal(t, "https://signed.example/source.rvt", gotReq.Arguments[argModel].URL)
	assert.Equal(t, "put", gotReq.Arguments[argResult].Verb)
	assert.Equal(t, "put", gotReq.Arguments[argDiagnostics].Verb)

	params := gotReq.Arguments[argParams].URL
	assert.True(t, strings.HasPrefix(params, "data:application/json,"))
	assert.Contains(t, params, `"transforms"`)
	assert.Contains(t, params, `"aaaa-bbbb-cccc"`)
	assert.Contains(t, params, `"translation":{"x":3,"y":0,"z":0}`)
}

func TestSubmit_ExistingBucket(t *testing.T) {
	mux, ts, worker := newWorkerClient(t)
	mux.HandleFunc("POST /oss/v2/buckets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"reason":"Bucket already exists"}`)
	})
	mux.HandleFunc("POST /oss/v2/buckets/{bucket}/objects/{key}/signed", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fmt.Sprintf(`{"signedUrl":%q}`, ts.URL+"/signed/"+r.PathValue("key")))
	})
	mux.HandleFunc("POST /da/us-east/v3/workitems", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"wi-2","status":"pending"}`)
	})

	sub, err := worker.Submit(context.Background(), "https://signed.example/source.rvt", testManifest())
	require.NoError(t, err)
	assert.Equal(t, "wi-2", sub.ID)
}

func TestSubmit_WorkItemRejected(t *testing.T) {
	mux, ts, worker := newWorkerClient(t)
	stageSubmitRoutes(mux, ts)
	mux.HandleFunc("POST /da/us-east/v3/workitems", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":[{"code":"ACTIVITY_NOT_FOUND"}]}`)
	})

	_, err := worker.Submit(context.Background(), "https://signed.example/source.rvt", testManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit workitem")
}

func TestStatus(t *testing.T) {
	mux, _, worker := newWorkerClient(t)
	mux.HandleFunc("GET /da/us-east/v3/workitems/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wi-1", r.PathValue("id"))
		io.WriteString(w, `{"id":"wi-1","status":"success","reportUrl":"https://reports.example/wi-1"}`)
	})

	status, err := worker.Status(context.Background(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "wi-1", status.ID)
	assert.Equal(t, models.JobSuccess, status.Status)
	assert.Equal(t, "https://reports.example/wi-1", status.ReportURL)
	assert.True(t, status.Done())
	assert.False(t, status.Failed())
}

func TestStatus_FailureStates(t *testing.T) {
	for _, state := range []string{"failedInstructions", "failedLimitProcessingTime", "cancelled"} {
		status := &models.WorkItemStatus{ID: "wi-1", Status: state}
		assert.True(t, status.Done(), state)
		assert.True(t, status.Failed(), state)
	}

	for _, state := range []string{"pending", "inprogress"} {
		status := &models.WorkItemStatus{ID: "wi-1", Status: state}
		assert.False(t, status.Done(), state)
		assert.False(t, status.Failed(), state)
	}
}

func TestFetchReport_NoAuthOnSignedURL(t *testing.T) {
	mux, ts, worker := newWorkerClient(t)
	var gotAuth string
	mux.HandleFunc("GET /reports/wi-1", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, "[10:02:11] Opening model...\n[10:02:45] Done.")
	})

	report, err := worker.FetchReport(context.Background(), ts.URL+"/reports/wi-1")
	require.NoError(t, err)
	assert.Contains(t, string(report), "Opening model")
	assert.Empty(t, gotAuth)
}

func TestWorkBucketName(t *testing.T) {
	assert.Equal(t, "accmove-abc123xyz", WorkBucketName("ABC123xyz"))

	long := WorkBucketName(strings.Repeat("a", 200))
	assert.Len(t, long, 128)
}
