package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/accmove/internal/core"
	"github.com/kilupskalvis/accmove/internal/models"
)

// Save registry states.
const (
	SaveStateRunning   = "running"
	SaveStateSucceeded = "succeeded"
	SaveStateFailed    = "failed"
)

// SaveState is the live view of one background save. The id doubles as the
// save record id in the history log.
type SaveState struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Phase      string    `json:"phase,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	VersionID  string    `json:"version_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Report     string    `json:"report,omitempty"`
	Skipped    []string  `json:"skipped,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// SaveRegistry runs saves in the background and keeps their state for
// polling. One save at a time is enforced here as well, so a second request
// gets a synchronous 409 instead of an asynchronous failure.
type SaveRegistry struct {
	saver  *core.Saver
	logger *slog.Logger

	mu     sync.Mutex
	active string
	saves  map[string]*SaveState
}

// NewSaveRegistry creates an empty registry around a shared saver.
func NewSaveRegistry(saver *core.Saver, logger *slog.Logger) *SaveRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveRegistry{
		saver:  saver,
		logger: logger,
		saves:  make(map[string]*SaveState),
	}
}

// Start launches a save in the background and returns its id.
func (reg *SaveRegistry) Start(changes []*models.PendingChange, opts core.SaveOptions) (string, error) {
	reg.mu.Lock()
	if reg.active != "" {
		reg.mu.Unlock()
		return "", core.ErrSaveInProgress
	}
	id := uuid.New().String()
	reg.active = id
	reg.saves[id] = &SaveState{
		ID:        id,
		State:     SaveStateRunning,
		Phase:     "validating",
		StartedAt: time.Now().UTC(),
	}
	reg.mu.Unlock()

	opts.ID = id
	go reg.run(id, changes, opts)

	return id, nil
}

// run drives one save to completion. It deliberately uses a background
// context: the save outlives the request that started it.
func (reg *SaveRegistry) run(id string, changes []*models.PendingChange, opts core.SaveOptions) {
	result, err := reg.saver.Save(context.Background(), changes, opts, func(phase string, current, total int) {
		reg.mu.Lock()
		if st := reg.saves[id]; st != nil {
			st.Phase = phase
		}
		reg.mu.Unlock()
	})

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.active = ""
	st := reg.saves[id]
	st.ResolvedAt = time.Now().UTC()
	st.Phase = ""

	if err != nil {
		st.State = SaveStateFailed
		st.Error = err.Error()
		var jobErr *core.JobError
		if errors.As(err, &jobErr) {
			st.Report = jobErr.Report
		}
		reg.logger.Error("save failed", "save_id", id, "error", err)
		return
	}

	st.State = SaveStateSucceeded
	st.Attempts = result.Attempts
	st.VersionID = result.VersionID
	st.Skipped = result.Skipped
	reg.logger.Info("save succeeded", "save_id", id, "version", result.VersionID, "attempts", result.Attempts)
}

// Get returns a copy of the save state.
func (reg *SaveRegistry) Get(id string) (*SaveState, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	st, ok := reg.saves[id]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}
