package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/models"
)

// ErrSaveInProgress rejects a save started while another one is running.
var ErrSaveInProgress = errors.New("a save is already in progress")

// ErrNothingToSave rejects a save with no pending changes.
var ErrNothingToSave = errors.New("no pending changes to save")

// Recorder persists the lifecycle of save jobs. The history log implements
// it; a nil recorder means no history is kept.
type Recorder interface {
	Begin(rec *models.SaveRecord) error
	SetWorkItem(id, workItemID string) error
	Resolve(id, status, resultVersion, report string) error
}

type noopRecorder struct{}

func (noopRecorder) Begin(*models.SaveRecord) error { return nil }

func (noopRecorder) SetWorkItem(string, string) error { return nil }

func (noopRecorder) Resolve(string, string, string, string) error { return nil }

// SaveOptions configures a save operation.
type SaveOptions struct {
	ProjectID string
	ItemID    string

	// Name overrides the file name of the new version. Empty keeps the
	// name of the version being transformed.
	Name string

	// ID pins the save record id. Empty generates one.
	ID string
}

// SaveResult contains the outcome of a completed save.
type SaveResult struct {
	SaveID    string
	JobID     string
	VersionID string
	Attempts  int
	Skipped   []string
}

// SaveProgress is called during a save to report phase transitions.
type SaveProgress func(phase string, current, total int)

// Saver runs the full save pipeline: validate the batch, submit it to the
// apply worker, poll until the job settles, then either publish the result
// as a new version or diagnose the failure. One save at a time; a second
// caller is turned away rather than queued.
type Saver struct {
	resources aps.ResourceClient
	worker    aps.Worker
	recorder  Recorder

	// PollInterval and PollBudget bound the wait for a submitted job.
	// Adjust them before the first Save call.
	PollInterval time.Duration
	PollBudget   int

	mu   sync.Mutex
	busy bool
}

// NewSaver wires a saver from its collaborators.
func NewSaver(resources aps.ResourceClient, worker aps.Worker, recorder Recorder) *Saver {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Saver{
		resources:    resources,
		worker:       worker,
		recorder:     recorder,
		PollInterval: 10 * time.Second,
		PollBudget:   60,
	}
}

// Save pushes a batch of pending changes through the apply worker and
// publishes the transformed model as a new version of the item. The caller
// owns the pending changes and clears them only after a successful save.
func (s *Saver) Save(ctx context.Context, changes []*models.PendingChange, opts SaveOptions, progress SaveProgress) (*SaveResult, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	if !s.tryAcquire() {
		return nil, ErrSaveInProgress
	}
	defer s.release()

	if len(changes) == 0 {
		return nil, ErrNothingToSave
	}
	if opts.ProjectID == "" || opts.ItemID == "" {
		return nil, fmt.Errorf("save needs a project and item: run 'accmove use'")
	}

	// All changes must be valid before anything is submitted.
	progress("validating", 0, len(changes))
	if err := ValidateChanges(changes); err != nil {
		return nil, err
	}

	saveID := opts.ID
	if saveID == "" {
		saveID = uuid.New().String()
	}
	record := &models.SaveRecord{
		ID:          saveID,
		ProjectID:   opts.ProjectID,
		ItemID:      opts.ItemID,
		ChangeCount: len(changes),
	}
	if err := s.recorder.Begin(record); err != nil {
		return nil, fmt.Errorf("record save: %w", err)
	}

	result, err := s.run(ctx, saveID, changes, opts, progress)
	if err != nil {
		s.resolve(saveID, err)
		return nil, err
	}

	_ = s.recorder.Resolve(saveID, models.SaveStatusSucceeded, result.VersionID, "")
	result.SaveID = saveID

	return result, nil
}

func (s *Saver) run(ctx context.Context, saveID string, changes []*models.PendingChange, opts SaveOptions, progress SaveProgress) (*SaveResult, error) {
	// Resolve the tip version and its storage object.
	progress("resolving source", 0, 0)
	tip, err := s.resources.LatestVersion(ctx, opts.ProjectID, opts.ItemID)
	if err != nil {
		return nil, fmt.Errorf("resolve latest version: %w", err)
	}
	if tip.StorageURN == "" {
		return nil, fmt.Errorf("item has no file storage to transform")
	}

	source, err := aps.ParseObjectURN(tip.StorageURN)
	if err != nil {
		return nil, err
	}
	sourceURL, err := s.resources.SignedDownloadURL(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("sign source download: %w", err)
	}

	// Submit the job.
	progress("submitting", 0, 0)
	sub, err := s.worker.Submit(ctx, sourceURL, models.NewTransformManifest(changes))
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	_ = s.recorder.SetWorkItem(saveID, sub.ID)

	// Poll until it settles.
	status, attempts, err := s.awaitJob(ctx, sub.ID, progress)
	if err != nil {
		return nil, err
	}

	if status.Failed() {
		return nil, s.diagnose(ctx, status, sub)
	}

	// Fetch the report even on success; skipped elements are named there.
	var skipped []string
	if status.ReportURL != "" {
		if report, err := s.worker.FetchReport(ctx, status.ReportURL); err == nil {
			skipped = extractSkipped(string(report))
		}
	}

	versionID, err := s.publish(ctx, tip, sub, opts, progress)
	if err != nil {
		return nil, err
	}

	return &SaveResult{JobID: sub.ID, VersionID: versionID, Attempts: attempts, Skipped: skipped}, nil
}

// publish downloads the transformed model and attaches it to the item as a
// new version. A failure partway through leaves whatever was already
// created in place; nothing is rolled back.
func (s *Saver) publish(ctx context.Context, tip *models.Version, sub *models.Submission, opts SaveOptions, progress SaveProgress) (string, error) {
	progress("downloading result", 0, 0)
	data, err := s.worker.DownloadOutput(ctx, sub.Output)
	if err != nil {
		return "", fmt.Errorf("download result: %w", err)
	}

	folderID, err := s.resources.ItemParentFolder(ctx, opts.ProjectID, opts.ItemID)
	if err != nil {
		return "", fmt.Errorf("resolve parent folder: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = tip.Name
	}

	progress("uploading", 0, 0)
	storageURN, err := s.resources.CreateStorage(ctx, opts.ProjectID, folderID, name)
	if err != nil {
		return "", fmt.Errorf("create storage: %w", err)
	}
	target, err := aps.ParseObjectURN(storageURN)
	if err != nil {
		return "", err
	}
	if err := s.resources.UploadObject(ctx, target, data); err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}

	progress("creating version", 0, 0)
	versionID, err := s.resources.CreateVersion(ctx, opts.ProjectID, opts.ItemID, storageURN, name)
	if err != nil {
		return "", fmt.Errorf("create version: %w", err)
	}

	return versionID, nil
}

// diagnose turns a failed job into a JobError carrying the worker's report
// and any diagnostics archive the add-in wrote. Diagnosis is best-effort:
// a missing report or archive never masks the failure itself.
func (s *Saver) diagnose(ctx context.Context, status *models.WorkItemStatus, sub *models.Submission) error {
	je := &JobError{Status: status.Status}

	if status.ReportURL != "" {
		if report, err := s.worker.FetchReport(ctx, status.ReportURL); err == nil {
			je.Report = string(report)
		}
	}

	if archive, err := s.worker.DownloadOutput(ctx, sub.Diagnostics); err == nil {
		if entries, err := ExtractDiagnostics(archive); err == nil {
			je.Diagnostics = entries
		}
	}

	return je
}

// resolve records the terminal state of a failed save.
func (s *Saver) resolve(saveID string, err error) {
	status := models.SaveStatusFailed
	if errors.Is(err, ErrJobTimedOut) {
		status = models.SaveStatusTimedOut
	}

	report := ""
	var je *JobError
	if errors.As(err, &je) {
		report = je.Report
	}

	_ = s.recorder.Resolve(saveID, status, "", report)
}

func (s *Saver) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Saver) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
