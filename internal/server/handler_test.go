package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/core"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssuer implements TokenIssuer for tests.
type fakeIssuer struct {
	cred *models.Credential
	err  error
}

func (f *fakeIssuer) Token(_ context.Context) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

// fakeResources implements aps.ResourceClient with canned data.
type fakeResources struct {
	hubs     []models.Hub
	projects []models.Project
	entries  []models.Entry
	listErr  error

	tip       *models.Version
	parent    string
	storage   string
	versionID string
}

var _ aps.ResourceClient = (*fakeResources)(nil)

func (f *fakeResources) ListHubs(_ context.Context) ([]models.Hub, error) {
	return f.hubs, f.listErr
}

func (f *fakeResources) ListProjects(_ context.Context, _ string) ([]models.Project, error) {
	return f.projects, f.listErr
}

func (f *fakeResources) ListTopFolders(_ context.Context, _, _ string) ([]models.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeResources) ListFolderContents(_ context.Context, _, _ string) ([]models.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeResources) LatestVersion(_ context.Context, _, _ string) (*models.Version, error) {
	return f.tip, nil
}

func (f *fakeResources) ItemParentFolder(_ context.Context, _, _ string) (string, error) {
	return f.parent, nil
}

func (f *fakeResources) SignedDownloadURL(_ context.Context, _ models.ObjectRef) (string, error) {
	return "https://signed.example/source", nil
}

func (f *fakeResources) DownloadObject(_ context.Context, _ models.ObjectRef) ([]byte, error) {
	return []byte("model"), nil
}

func (f *fakeResources) CreateStorage(_ context.Context, _, _, _ string) (string, error) {
	return f.storage, nil
}

func (f *fakeResources) UploadObject(_ context.Context, _ models.ObjectRef, _ []byte) error {
	return nil
}

func (f *fakeResources) CreateVersion(_ context.Context, _, _, _, _ string) (string, error) {
	return f.versionID, nil
}

// fakeWorker implements aps.Worker. Status blocks on gate when set, so
// tests can hold a save in its polling phase.
type fakeWorker struct {
	status *models.WorkItemStatus
	gate   chan struct{}
}

var _ aps.Worker = (*fakeWorker)(nil)

func (f *fakeWorker) Submit(_ context.Context, _ string, _ *models.TransformManifest) (*models.Submission, error) {
	return &models.Submission{
		ID:          "wi-1",
		Output:      models.ObjectRef{Bucket: "accmove-app", Key: "wi-1-result.rvt"},
		Diagnostics: models.ObjectRef{Bucket: "accmove-app", Key: "wi-1-diagnostics.zip"},
	}, nil
}

func (f *fakeWorker) Status(ctx context.Context, id string) (*models.WorkItemStatus, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.status, nil
}

func (f *fakeWorker) FetchReport(_ context.Context, _ string) ([]byte, error) {
	return []byte("[10:00] all elements moved"), nil
}

func (f *fakeWorker) DownloadOutput(_ context.Context, ref models.ObjectRef) ([]byte, error) {
	if ref.Key == "wi-1-result.rvt" {
		return []byte("transformed"), nil
	}
	return nil, &aps.RequestError{Status: http.StatusNotFound}
}

func defaultFakes() (*fakeResources, *fakeWorker) {
	resources := &fakeResources{
		hubs:      []models.Hub{{ID: "b.hub-1", Name: "BuildCo", Region: "US"}},
		projects:  []models.Project{{ID: "b.proj-1", Name: "Office Tower"}},
		entries:   []models.Entry{{ID: "urn:f.plans", Name: "Plans", Type: models.EntryFolder}},
		tip:       &models.Version{ID: "urn:v.4", Name: "Office.rvt", Number: 4, StorageURN: "urn:adsk.objects:os.object:wip.dm.prod/office.rvt"},
		parent:    "urn:f.plans",
		storage:   "urn:adsk.objects:os.object:wip.dm.prod/office-2.rvt",
		versionID: "urn:v.5",
	}
	worker := &fakeWorker{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}}
	return resources, worker
}

func newTestServer(t *testing.T, resources *fakeResources, worker *fakeWorker, issuer TokenIssuer) *httptest.Server {
	t.Helper()

	saver := core.NewSaver(resources, worker, nil)
	saver.PollInterval = time.Millisecond
	saver.PollBudget = 10

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, cleanup := Handler(&Deps{Tokens: issuer, Resources: resources, Saver: saver}, nil, logger)
	t.Cleanup(cleanup)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body interface{}, v interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func validSaveBody() map[string]interface{} {
	return map[string]interface{}{
		"project_id": "proj-1",
		"item_id":    "urn:i.office",
		"changes": []map[string]interface{}{
			{
				"element_id":  101,
				"element_key": "ep1-101",
				"from":        map[string]float64{"x": 1, "y": 2, "z": 0},
				"to":          map[string]float64{"x": 4, "y": 2, "z": 0},
			},
		},
	}
}

// waitForSave polls the save endpoint until the state leaves "running".
func waitForSave(t *testing.T, baseURL, id string) *SaveState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var state SaveState
		code := getJSON(t, baseURL+"/api/v1/saves/"+id, &state)
		require.Equal(t, http.StatusOK, code)
		if state.State != SaveStateRunning {
			return &state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("save did not settle in time")
	return nil
}

func TestHealthz(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestToken(t *testing.T) {
	resources, worker := defaultFakes()
	issuer := &fakeIssuer{cred: &models.Credential{
		AccessToken: "tok-abc",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	ts := newTestServer(t, resources, worker, issuer)

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	code := getJSON(t, ts.URL+"/api/v1/auth/token", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tok-abc", body.AccessToken)
	assert.Greater(t, body.ExpiresIn, 0)
}

func TestToken_NoSession(t *testing.T) {
	resources, worker := defaultFakes()
	issuer := &fakeIssuer{err: fmt.Errorf("not signed in")}
	ts := newTestServer(t, resources, worker, issuer)

	var body map[string]string
	code := getJSON(t, ts.URL+"/api/v1/auth/token", &body)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "auth_required", body["error"])
}

func TestListHubs(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var hubs []models.Hub
	code := getJSON(t, ts.URL+"/api/v1/hubs", &hubs)

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, hubs, 1)
	assert.Equal(t, "BuildCo", hubs[0].Name)
}

func TestListProjects(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var projects []models.Project
	code := getJSON(t, ts.URL+"/api/v1/hubs/b.hub-1/projects", &projects)

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, projects, 1)
	assert.Equal(t, "Office Tower", projects[0].Name)
}

func TestListFolderContents_UpstreamError(t *testing.T) {
	resources, worker := defaultFakes()
	resources.listErr = &aps.RequestError{Status: http.StatusNotFound, Code: "RESOURCE_NOT_FOUND", Body: "no such folder"}
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var body map[string]string
	code := getJSON(t, ts.URL+"/api/v1/projects/b.proj-1/folders/urn:f.gone/contents", &body)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestStartSave_RunsToCompletion(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var accepted map[string]string
	code := postJSON(t, ts.URL+"/api/v1/saves", validSaveBody(), &accepted)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, accepted["save_id"])

	state := waitForSave(t, ts.URL, accepted["save_id"])
	assert.Equal(t, SaveStateSucceeded, state.State)
	assert.Equal(t, "urn:v.5", state.VersionID)
	assert.Empty(t, state.Error)
	assert.False(t, state.ResolvedAt.IsZero())
}

func TestStartSave_SecondRejectedWhileBusy(t *testing.T) {
	resources, worker := defaultFakes()
	worker.gate = make(chan struct{})
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var accepted map[string]string
	code := postJSON(t, ts.URL+"/api/v1/saves", validSaveBody(), &accepted)
	require.Equal(t, http.StatusAccepted, code)

	var conflict map[string]string
	code = postJSON(t, ts.URL+"/api/v1/saves", validSaveBody(), &conflict)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "save_in_progress", conflict["error"])

	// Release the job and let the first save finish.
	close(worker.gate)
	state := waitForSave(t, ts.URL, accepted["save_id"])
	assert.Equal(t, SaveStateSucceeded, state.State)

	// A new save is accepted again.
	code = postJSON(t, ts.URL+"/api/v1/saves", validSaveBody(), nil)
	assert.Equal(t, http.StatusAccepted, code)
}

func TestStartSave_InvalidChanges(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	body := validSaveBody()
	body["changes"] = []map[string]interface{}{
		{
			"element_id":  -3,
			"element_key": "nohyphen",
			"from":        map[string]float64{"x": 1, "y": 2, "z": 0},
			"to":          map[string]float64{"x": 4, "y": 2, "z": 0},
		},
	}

	var resp map[string]string
	code := postJSON(t, ts.URL+"/api/v1/saves", body, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_changes", resp["error"])
	assert.Contains(t, resp["message"], "element id must be positive")
}

func TestStartSave_MissingContext(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	body := validSaveBody()
	delete(body, "item_id")

	var resp map[string]string
	code := postJSON(t, ts.URL+"/api/v1/saves", body, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", resp["error"])
}

func TestSaveStatus_Unknown(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var resp map[string]string
	code := getJSON(t, ts.URL+"/api/v1/saves/does-not-exist", &resp)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp["error"])
}

func TestFailedSaveCarriesReport(t *testing.T) {
	resources, worker := defaultFakes()
	worker.status = &models.WorkItemStatus{ID: "wi-1", Status: models.JobFailedInstructions, ReportURL: "https://signed.example/report"}
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	var accepted map[string]string
	code := postJSON(t, ts.URL+"/api/v1/saves", validSaveBody(), &accepted)
	require.Equal(t, http.StatusAccepted, code)

	state := waitForSave(t, ts.URL, accepted["save_id"])
	assert.Equal(t, SaveStateFailed, state.State)
	assert.NotEmpty(t, state.Error)
	assert.Contains(t, state.Report, "all elements moved")
	assert.Empty(t, state.VersionID)
}

func TestCORSPreflight(t *testing.T) {
	resources, worker := defaultFakes()
	ts := newTestServer(t, resources, worker, &fakeIssuer{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/hubs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	resources, worker := defaultFakes()

	saver := core.NewSaver(resources, worker, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 2
	h, cleanup := Handler(&Deps{Tokens: &fakeIssuer{}, Resources: resources, Saver: saver}, cfg, logger)
	t.Cleanup(cleanup)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	for i := 0; i < 2; i++ {
		code := getJSON(t, ts.URL+"/api/v1/hubs", nil)
		require.Equal(t, http.StatusOK, code)
	}

	var resp map[string]string
	code := getJSON(t, ts.URL+"/api/v1/hubs", &resp)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", resp["error"])
}
