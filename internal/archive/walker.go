// Package archive enumerates the spreadsheet members of a zip archive.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// Walk reads every .xlsx member of the archive at path in order and passes
// its name and raw bytes to fn. Members whose name contains one of the skip
// patterns are left out; those hold layouts the parser cannot handle.
// A non-nil error from fn aborts the walk and is returned as-is.
func Walk(path string, skipPatterns []string, fn func(name string, content []byte) error) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer reader.Close()

	for _, member := range reader.File {
		if !strings.HasSuffix(member.Name, ".xlsx") {
			continue
		}
		if matchesAny(member.Name, skipPatterns) {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("open member %s: %w", member.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read member %s: %w", member.Name, err)
		}

		if err := fn(member.Name, content); err != nil {
			return err
		}
	}

	return nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
