package models

// TransformManifest is the wire format handed to the apply worker. Entries
// are keyed by element key.
type TransformManifest struct {
	Transforms map[string]ManifestEntry `json:"transforms"`
}

// ManifestEntry describes a single element move inside a manifest.
type ManifestEntry struct {
	ElementID        int64    `json:"elementId"`
	UniqueID         string   `json:"uniqueId"`
	ElementName      string   `json:"elementName"`
	OriginalPosition Position `json:"originalPosition"`
	NewPosition      Position `json:"newPosition"`
	Translation      Position `json:"translation"`
}

// NewTransformManifest builds a manifest from pending changes.
func NewTransformManifest(changes []*PendingChange) *TransformManifest {
	m := &TransformManifest{Transforms: make(map[string]ManifestEntry, len(changes))}
	for _, c := range changes {
		m.Transforms[c.ElementKey] = ManifestEntry{
			ElementID:        c.ElementID,
			UniqueID:         c.ElementKey,
			ElementName:      c.ElementName,
			OriginalPosition: c.OriginalPosition,
			NewPosition:      c.NewPosition,
			Translation:      c.Translation(),
		}
	}
	return m
}
