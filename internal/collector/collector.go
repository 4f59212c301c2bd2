// Package collector accumulates element moves before they are saved. It is
// a plain in-memory container; persistence and validation live elsewhere.
package collector

import (
	"errors"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
)

// ErrInvalidGeometry rejects positions with NaN or infinite coordinates.
var ErrInvalidGeometry = errors.New("position coordinates must be finite")

// Collector holds pending element moves keyed by element id. Re-recording
// an element keeps its first original position and replaces the rest, so a
// chain of moves collapses to one transform from the first origin to the
// latest target.
type Collector struct {
	order []int64
	byID  map[int64]*models.PendingChange
	now   func() time.Time
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{
		byID: make(map[int64]*models.PendingChange),
		now:  time.Now,
	}
}

// RecordMove registers a move for one element.
func (c *Collector) RecordMove(elementID int64, elementKey, elementName string, original, next models.Position) error {
	if !original.Finite() || !next.Finite() {
		return ErrInvalidGeometry
	}

	if existing, ok := c.byID[elementID]; ok {
		// Keep the first origin; only the destination advances.
		existing.ElementKey = elementKey
		existing.ElementName = elementName
		existing.NewPosition = next
		return nil
	}

	c.byID[elementID] = &models.PendingChange{
		ElementID:        elementID,
		ElementKey:       elementKey,
		ElementName:      elementName,
		OriginalPosition: original,
		NewPosition:      next,
		RecordedAt:       c.now(),
	}
	c.order = append(c.order, elementID)

	return nil
}

// Len reports the number of pending changes.
func (c *Collector) Len() int {
	return len(c.byID)
}

// Get returns the pending change for an element, if any.
func (c *Collector) Get(elementID int64) (*models.PendingChange, bool) {
	change, ok := c.byID[elementID]
	if !ok {
		return nil, false
	}
	cp := *change
	return &cp, true
}

// List returns the pending changes in first-recorded order. The returned
// changes are copies; mutating them does not touch the container.
func (c *Collector) List() []*models.PendingChange {
	out := make([]*models.PendingChange, 0, len(c.order))
	for _, id := range c.order {
		cp := *c.byID[id]
		out = append(out, &cp)
	}
	return out
}

// Clear drops all pending changes.
func (c *Collector) Clear() {
	c.order = nil
	c.byID = make(map[int64]*models.PendingChange)
}

// Restore replaces the container contents with previously persisted changes,
// preserving their order.
func (c *Collector) Restore(changes []*models.PendingChange) {
	c.order = make([]int64, 0, len(changes))
	c.byID = make(map[int64]*models.PendingChange, len(changes))

	for _, change := range changes {
		cp := *change
		if _, ok := c.byID[cp.ElementID]; !ok {
			c.order = append(c.order, cp.ElementID)
		}
		c.byID[cp.ElementID] = &cp
	}
}
