package core

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/accmove/internal/models"
)

// ValidationError reports every invalid change found in a batch. A batch
// with any invalid change is rejected whole; nothing is submitted.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid changes: %s", strings.Join(e.Problems, "; "))
}

// ValidateChanges checks a batch of pending changes before submission.
func ValidateChanges(changes []*models.PendingChange) error {
	var problems []string

	for _, change := range changes {
		name := change.ElementName
		if name == "" {
			name = fmt.Sprintf("element %d", change.ElementID)
		}

		if change.ElementID <= 0 {
			problems = append(problems, fmt.Sprintf("%s: element id must be positive", name))
		}
		if !validElementKey(change.ElementKey) {
			problems = append(problems, fmt.Sprintf("%s: element key %q is not a valid unique id", name, change.ElementKey))
		}

		switch {
		case !change.OriginalPosition.Finite() || !change.NewPosition.Finite():
			problems = append(problems, fmt.Sprintf("%s: position coordinates must be finite", name))
		case !change.Translation().Finite():
			problems = append(problems, fmt.Sprintf("%s: translation overflows", name))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// validElementKey accepts Revit unique ids: non-empty, with at least one
// hyphen separating the episode GUID from the element part.
func validElementKey(key string) bool {
	return key != "" && strings.Contains(key, "-")
}
