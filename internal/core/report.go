package core

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// skipMarker prefixes report lines naming elements the add-in could not
// move. The rest of the batch was applied without them.
const skipMarker = "SKIP:"

// maxDiagnosticEntry caps how much of a single diagnostics file is kept.
const maxDiagnosticEntry = 500 * 1024

// JobError reports a job that ran and failed. The report carries the
// worker's own account of what went wrong; diagnostics hold whatever the
// add-in managed to write before giving up.
type JobError struct {
	Status      string
	Report      string
	Diagnostics []DiagnosticEntry
}

func (e *JobError) Error() string {
	if e.Report == "" {
		return fmt.Sprintf("apply job ended %s", e.Status)
	}
	return fmt.Sprintf("apply job ended %s: %s", e.Status, firstLine(e.Report))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// extractSkipped scans a report for skip markers and returns the element
// keys named by them. Anything after the key on the same line is a
// human-readable reason and is dropped.
func extractSkipped(report string) []string {
	var skipped []string

	for _, line := range strings.Split(report, "\n") {
		i := strings.Index(line, skipMarker)
		if i < 0 {
			continue
		}

		key := strings.TrimSpace(line[i+len(skipMarker):])
		if j := strings.IndexAny(key, " \t"); j >= 0 {
			key = key[:j]
		}
		if key != "" {
			skipped = append(skipped, key)
		}
	}

	return skipped
}

// DiagnosticEntry is one readable file pulled from a diagnostics archive.
type DiagnosticEntry struct {
	Name    string
	Content string
}

// ExtractDiagnostics unpacks the text entries of a diagnostics archive.
// Oversized or unreadable entries are skipped rather than failing the
// whole diagnosis.
func ExtractDiagnostics(archive []byte) ([]DiagnosticEntry, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open diagnostics archive: %w", err)
	}

	var entries []DiagnosticEntry
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isTextEntry(f.Name) {
			continue
		}
		if f.UncompressedSize64 > maxDiagnosticEntry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxDiagnosticEntry+1))
		rc.Close()
		if err != nil || len(content) > maxDiagnosticEntry {
			continue
		}

		entries = append(entries, DiagnosticEntry{Name: f.Name, Content: string(content)})
	}

	return entries, nil
}

func isTextEntry(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".log", ".json":
		return true
	}
	return false
}
