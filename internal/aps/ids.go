package aps

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/accmove/internal/models"
)

// objectURNPrefix is the scheme every storage URN starts with.
const objectURNPrefix = "urn:adsk.objects:os.object:"

// NormalizeProjectID ensures the "b." prefix the data management endpoints
// expect on BIM 360/ACC project ids.
func NormalizeProjectID(id string) string {
	if id == "" || strings.HasPrefix(id, "b.") {
		return id
	}
	return "b." + id
}

// DisplayProjectID strips the "b." prefix for display and comparison.
func DisplayProjectID(id string) string {
	return strings.TrimPrefix(id, "b.")
}

// ParseObjectURN splits a storage URN like
// urn:adsk.objects:os.object:bucket/dir/file.rvt into bucket and key.
func ParseObjectURN(urn string) (models.ObjectRef, error) {
	if !strings.HasPrefix(urn, objectURNPrefix) {
		return models.ObjectRef{}, fmt.Errorf("unexpected storage urn %q", urn)
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(urn, objectURNPrefix), "/")
	if !ok || bucket == "" || key == "" {
		return models.ObjectRef{}, fmt.Errorf("unexpected storage urn %q", urn)
	}

	return models.ObjectRef{Bucket: bucket, Key: key}, nil
}
