package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResources implements aps.ResourceClient with canned responses and
// call tracking.
type fakeResources struct {
	tip        *models.Version
	tipErr     error
	signedURL  string
	parent     string
	storageURN string

	createStorageCalls int
	storageFolder      string
	storageName        string
	uploadCalls        int
	uploadedTo         models.ObjectRef
	uploadedData       []byte
	createVersionCalls int
	versionStorage     string
	versionName        string
	createVersionErr   error
}

var _ aps.ResourceClient = (*fakeResources)(nil)

func (f *fakeResources) ListHubs(context.Context) ([]models.Hub, error) { return nil, nil }

func (f *fakeResources) ListProjects(context.Context, string) ([]models.Project, error) {
	return nil, nil
}

func (f *fakeResources) ListTopFolders(context.Context, string, string) ([]models.Entry, error) {
	return nil, nil
}

func (f *fakeResources) ListFolderContents(context.Context, string, string) ([]models.Entry, error) {
	return nil, nil
}

func (f *fakeResources) LatestVersion(context.Context, string, string) (*models.Version, error) {
	if f.tipErr != nil {
		return nil, f.tipErr
	}
	return f.tip, nil
}

func (f *fakeResources) ItemParentFolder(context.Context, string, string) (string, error) {
	return f.parent, nil
}

func (f *fakeResources) SignedDownloadURL(context.Context, models.ObjectRef) (string, error) {
	return f.signedURL, nil
}

func (f *fakeResources) DownloadObject(context.Context, models.ObjectRef) ([]byte, error) {
	return nil, errors.New("not used")
}

func (f *fakeResources) CreateStorage(_ context.Context, _, folderID, name string) (string, error) {
	f.createStorageCalls++
	f.storageFolder = folderID
	f.storageName = name
	return f.storageURN, nil
}

func (f *fakeResources) UploadObject(_ context.Context, ref models.ObjectRef, data []byte) error {
	f.uploadCalls++
	f.uploadedTo = ref
	f.uploadedData = data
	return nil
}

func (f *fakeResources) CreateVersion(_ context.Context, _, _, storageURN, name string) (string, error) {
	f.createVersionCalls++
	f.versionStorage = storageURN
	f.versionName = name
	if f.createVersionErr != nil {
		return "", f.createVersionErr
	}
	return "urn:v.new?version=5", nil
}

type statusStep struct {
	status *models.WorkItemStatus
	err    error
}

// fakeWorker implements aps.Worker, popping one status step per poll. The
// final step repeats once the script runs out.
type fakeWorker struct {
	submission  *models.Submission
	submitErr   error
	submitCalls int
	sourceURL   string
	manifest    *models.TransformManifest

	statuses    []statusStep
	statusCalls int
	onStatus    func(call int)

	report    string
	reportErr error
	outputs   map[string][]byte
}

var _ aps.Worker = (*fakeWorker)(nil)

func (f *fakeWorker) Submit(_ context.Context, sourceURL string, manifest *models.TransformManifest) (*models.Submission, error) {
	f.submitCalls++
	f.sourceURL = sourceURL
	f.manifest = manifest
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submission, nil
}

func (f *fakeWorker) Status(context.Context, string) (*models.WorkItemStatus, error) {
	f.statusCalls++
	if f.onStatus != nil {
		f.onStatus(f.statusCalls)
	}

	step := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return step.status, step.err
}

func (f *fakeWorker) FetchReport(context.Context, string) ([]byte, error) {
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return []byte(f.report), nil
}

func (f *fakeWorker) DownloadOutput(_ context.Context, ref models.ObjectRef) ([]byte, error) {
	data, ok := f.outputs[ref.Key]
	if !ok {
		return nil, &aps.RequestError{Status: http.StatusNotFound, Body: "object not found"}
	}
	return data, nil
}

// memRecorder implements Recorder in memory.
type memRecorder struct {
	began           int
	record          *models.SaveRecord
	workItemID      string
	resolvedStatus  string
	resolvedVersion string
	resolvedReport  string
}

func (m *memRecorder) Begin(rec *models.SaveRecord) error {
	m.began++
	m.record = rec
	return nil
}

func (m *memRecorder) SetWorkItem(_, workItemID string) error {
	m.workItemID = workItemID
	return nil
}

func (m *memRecorder) Resolve(_, status, resultVersion, report string) error {
	m.resolvedStatus = status
	m.resolvedVersion = resultVersion
	m.resolvedReport = report
	return nil
}

func newTestSaver(resources aps.ResourceClient, worker aps.Worker, rec Recorder) *Saver {
	s := NewSaver(resources, worker, rec)
	s.PollInterval = time.Millisecond
	return s
}

func defaultResources() *fakeResources {
	return &fakeResources{
		tip: &models.Version{
			ID:         "urn:v.office?version=4",
			Name:       "Office.rvt",
			Number:     4,
			StorageURN: "urn:adsk.objects:os.object:wip.dm.prod/office.rvt",
		},
		signedURL:  "https://signed.example/office.rvt",
		parent:     "urn:f.plans",
		storageURN: "urn:adsk.objects:os.object:wip.dm.prod/office-new.rvt",
	}
}

func defaultWorker() *fakeWorker {
	return &fakeWorker{
		submission: &models.Submission{
			ID:          "wi-1",
			Output:      models.ObjectRef{Bucket: "accmove-app", Key: "wi-1-result.rvt"},
			Diagnostics: models.ObjectRef{Bucket: "accmove-app", Key: "wi-1-diagnostics.zip"},
		},
		outputs: map[string][]byte{"wi-1-result.rvt": []byte("transformed-model")},
	}
}

func validChanges() []*models.PendingChange {
	return []*models.PendingChange{
		{ElementID: 101, ElementKey: "ep1-101", ElementName: "Wall A", OriginalPosition: models.Position{X: 1}, NewPosition: models.Position{X: 4}},
		{ElementID: 202, ElementKey: "ep1-202", ElementName: "Wall B", OriginalPosition: models.Position{Y: 1}, NewPosition: models.Position{Y: 2}},
	}
}

func saveOpts() SaveOptions {
	return SaveOptions{ProjectID: "b.proj-1", ItemID: "urn:i.office"}
}

func TestSave_Success(t *testing.T) {
	resources := defaultResources()
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobPending}},
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobInProgress}},
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	rec := &memRecorder{}
	s := newTestSaver(resources, worker, rec)

	var phases []string
	progress := func(phase string, _, _ int) {
		if len(phases) == 0 || phases[len(phases)-1] != phase {
			phases = append(phases, phase)
		}
	}

	result, err := s.Save(context.Background(), validChanges(), saveOpts(), progress)
	require.NoError(t, err)

	assert.Equal(t, "wi-1", result.JobID)
	assert.Equal(t, "urn:v.new?version=5", result.VersionID)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Skipped)
	assert.NotEmpty(t, result.SaveID)

	// The submitted manifest carries both changes.
	require.NotNil(t, worker.manifest)
	assert.Len(t, worker.manifest.Transforms, 2)
	assert.Equal(t, "https://signed.example/office.rvt", worker.sourceURL)

	// The transformed bytes land in fresh storage next to the item.
	assert.Equal(t, []byte("transformed-model"), resources.uploadedData)
	assert.Equal(t, "urn:f.plans", resources.storageFolder)
	assert.Equal(t, "wip.dm.prod", resources.uploadedTo.Bucket)
	assert.Equal(t, resources.storageURN, resources.versionStorage)
	assert.Equal(t, "Office.rvt", resources.versionName)

	assert.Equal(t, "wi-1", rec.workItemID)
	assert.Equal(t, models.SaveStatusSucceeded, rec.resolvedStatus)
	assert.Equal(t, "urn:v.new?version=5", rec.resolvedVersion)

	assert.Equal(t, []string{
		"validating", "resolving source", "submitting", "polling",
		"downloading result", "uploading", "creating version",
	}, phases)
}

func TestSave_NameOverride(t *testing.T) {
	resources := defaultResources()
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	s := newTestSaver(resources, worker, &memRecorder{})

	opts := saveOpts()
	opts.Name = "Office rev B.rvt"
	_, err := s.Save(context.Background(), validChanges(), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, "Office rev B.rvt", resources.storageName)
	assert.Equal(t, "Office rev B.rvt", resources.versionName)
}

func TestSave_PinnedSaveID(t *testing.T) {
	resources := defaultResources()
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	rec := &memRecorder{}
	s := newTestSaver(resources, worker, rec)

	opts := saveOpts()
	opts.ID = "save-7af3"
	result, err := s.Save(context.Background(), validChanges(), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, "save-7af3", result.SaveID)
	require.NotNil(t, rec.record)
	assert.Equal(t, "save-7af3", rec.record.ID)
}

func TestSave_ReportsSkippedElements(t *testing.T) {
	resources := defaultResources()
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess, ReportURL: "https://reports.example/wi-1"}},
	}
	worker.report = "[10:01:02] Applying transforms\nSKIP:ep1-202 element not found in model\n[10:01:09] Done"
	s := newTestSaver(resources, worker, &memRecorder{})

	result, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ep1-202"}, result.Skipped)
	assert.NotEmpty(t, result.VersionID)
}

func TestSave_ValidationRejectsWholeBatch(t *testing.T) {
	worker := defaultWorker()
	rec := &memRecorder{}
	s := newTestSaver(defaultResources(), worker, rec)

	changes := append(validChanges(), &models.PendingChange{
		ElementID: 0, ElementKey: "nohyphen", ElementName: "Ghost",
	})
	_, err := s.Save(context.Background(), changes, saveOpts(), nil)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
	assert.Equal(t, 0, worker.submitCalls)
	assert.Equal(t, 0, rec.began)
}

func TestSave_EmptyBatch(t *testing.T) {
	s := newTestSaver(defaultResources(), defaultWorker(), &memRecorder{})

	_, err := s.Save(context.Background(), nil, saveOpts(), nil)
	assert.ErrorIs(t, err, ErrNothingToSave)
}

func TestSave_RequiresWorkContext(t *testing.T) {
	s := newTestSaver(defaultResources(), defaultWorker(), &memRecorder{})

	_, err := s.Save(context.Background(), validChanges(), SaveOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project and item")
}

func TestSave_SecondSaveRejectedWhileBusy(t *testing.T) {
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	s := newTestSaver(defaultResources(), worker, &memRecorder{})

	require.True(t, s.tryAcquire())
	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)
	assert.ErrorIs(t, err, ErrSaveInProgress)

	// Once the flag clears, saving works again.
	s.release()
	_, err = s.Save(context.Background(), validChanges(), saveOpts(), nil)
	assert.NoError(t, err)
}

func TestSave_FailedJobCarriesReportAndDiagnostics(t *testing.T) {
	resources := defaultResources()
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobInProgress}},
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobFailedInstructions, ReportURL: "https://reports.example/wi-1"}},
	}
	worker.report = "ERROR: transaction could not be committed"
	worker.outputs["wi-1-diagnostics.zip"] = makeZip(t, map[string]string{
		"journal.txt": "Jrn.Directive Version 2024",
	})
	rec := &memRecorder{}
	s := newTestSaver(resources, worker, rec)

	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)

	var je *JobError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, models.JobFailedInstructions, je.Status)
	assert.Contains(t, je.Report, "transaction could not be committed")
	require.Len(t, je.Diagnostics, 1)
	assert.Equal(t, "journal.txt", je.Diagnostics[0].Name)

	// Nothing was published.
	assert.Equal(t, 0, resources.createStorageCalls)
	assert.Equal(t, 0, resources.createVersionCalls)

	assert.Equal(t, models.SaveStatusFailed, rec.resolvedStatus)
	assert.Contains(t, rec.resolvedReport, "transaction could not be committed")
}

func TestSave_FailedJobWithoutDiagnostics(t *testing.T) {
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobFailedInstructions}},
	}
	s := newTestSaver(defaultResources(), worker, &memRecorder{})

	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)

	var je *JobError
	require.ErrorAs(t, err, &je)
	assert.Empty(t, je.Report)
	assert.Empty(t, je.Diagnostics)
}

func TestSave_PollBudgetExhausted(t *testing.T) {
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobInProgress}},
	}
	rec := &memRecorder{}
	s := newTestSaver(defaultResources(), worker, rec)
	s.PollBudget = 3

	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)

	assert.ErrorIs(t, err, ErrJobTimedOut)
	assert.Equal(t, 3, worker.statusCalls)
	assert.Equal(t, models.SaveStatusTimedOut, rec.resolvedStatus)
}

func TestSave_StatusErrorsSpendBudget(t *testing.T) {
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{err: errors.New("gateway hiccup")},
		{err: errors.New("gateway hiccup")},
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	s := newTestSaver(defaultResources(), worker, &memRecorder{})

	result, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
}

func TestSave_CancelAbandonsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobInProgress}},
	}
	worker.onStatus = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	rec := &memRecorder{}
	s := newTestSaver(defaultResources(), worker, rec)

	_, err := s.Save(ctx, validChanges(), saveOpts(), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SaveStatusFailed, rec.resolvedStatus)
}

func TestSave_PublishFailureLeavesPartialState(t *testing.T) {
	resources := defaultResources()
	resources.createVersionErr = errors.New("version quota exceeded")
	worker := defaultWorker()
	worker.statuses = []statusStep{
		{status: &models.WorkItemStatus{ID: "wi-1", Status: models.JobSuccess}},
	}
	rec := &memRecorder{}
	s := newTestSaver(resources, worker, rec)

	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create version")

	// The uploaded storage object stays; nothing is rolled back.
	assert.Equal(t, 1, resources.createStorageCalls)
	assert.Equal(t, 1, resources.uploadCalls)
	assert.Equal(t, models.SaveStatusFailed, rec.resolvedStatus)
}

func TestSave_TipWithoutStorage(t *testing.T) {
	resources := defaultResources()
	resources.tip.StorageURN = ""
	worker := defaultWorker()
	s := newTestSaver(resources, worker, &memRecorder{})

	_, err := s.Save(context.Background(), validChanges(), saveOpts(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file storage")
	assert.Equal(t, 0, worker.submitCalls)
}
