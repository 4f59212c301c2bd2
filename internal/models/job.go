package models

import (
	"strings"
	"time"
)

// Work item states reported by the apply worker.
const (
	JobPending            = "pending"
	JobInProgress         = "inprogress"
	JobSuccess            = "success"
	JobCancelled          = "cancelled"
	JobFailedInstructions = "failedInstructions"
)

// WorkItemStatus is a point-in-time view of a submitted work item.
type WorkItemStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl,omitempty"`
}

// Done reports whether the work item has reached a terminal state.
func (s *WorkItemStatus) Done() bool {
	return s.Status == JobSuccess || s.Failed()
}

// Failed reports whether the work item ended without producing a result.
func (s *WorkItemStatus) Failed() bool {
	return strings.HasPrefix(s.Status, "failed") || s.Status == JobCancelled
}

// Submission identifies a work item accepted by the worker and the object
// locations it will write to.
type Submission struct {
	ID          string    `json:"id"`
	Output      ObjectRef `json:"output"`
	Diagnostics ObjectRef `json:"diagnostics"`
}

// Save attempt statuses recorded in the history log.
const (
	SaveStatusRunning   = "running"
	SaveStatusSucceeded = "succeeded"
	SaveStatusFailed    = "failed"
	SaveStatusTimedOut  = "timed_out"
)

// SaveRecord is one save attempt in the append-only history log.
type SaveRecord struct {
	ID            string    `json:"id"`
	WorkItemID    string    `json:"workitem_id"`
	ProjectID     string    `json:"project_id"`
	ItemID        string    `json:"item_id"`
	ChangeCount   int       `json:"change_count"`
	Status        string    `json:"status"`
	ResultVersion string    `json:"result_version,omitempty"`
	Report        string    `json:"report,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	ResolvedAt    time.Time `json:"resolved_at,omitempty"`
}
