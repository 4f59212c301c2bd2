package core

import (
	"context"
	"errors"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
)

// ErrJobTimedOut reports a job that did not settle within the poll budget.
// The remote job may still be running; it is abandoned, not cancelled.
var ErrJobTimedOut = errors.New("apply job timed out")

// awaitJob polls the worker at a fixed interval until the job settles or
// the poll budget runs out. Status errors on individual ticks are
// swallowed; they spend budget like any other tick.
func (s *Saver) awaitJob(ctx context.Context, id string, progress SaveProgress) (*models.WorkItemStatus, int, error) {
	for attempt := 1; attempt <= s.PollBudget; attempt++ {
		if err := sleep(ctx, s.PollInterval); err != nil {
			return nil, attempt, err
		}

		status, err := s.worker.Status(ctx, id)
		progress("polling", attempt, s.PollBudget)
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempt, ctx.Err()
			}
			continue
		}

		if status.Done() {
			return status, attempt, nil
		}
	}

	return nil, s.PollBudget, ErrJobTimedOut
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
