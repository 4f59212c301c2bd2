package models

import "time"

// PendingChange represents a recorded move of a single element that has not
// been saved back to the hosted model yet.
type PendingChange struct {
	ElementID        int64     `json:"element_id"`
	ElementKey       string    `json:"element_key"`
	ElementName      string    `json:"element_name"`
	OriginalPosition Position  `json:"original_position"`
	NewPosition      Position  `json:"new_position"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Translation returns the componentwise offset from the original position to
// the new one. It is always derived, never stored.
func (c *PendingChange) Translation() Position {
	return c.NewPosition.Sub(c.OriginalPosition)
}
