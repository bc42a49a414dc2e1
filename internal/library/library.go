// Package library manages the media and IQ file libraries: directory-backed
// stores served and mutated through the control surface.
package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidPath rejects paths outside the library root.
	ErrInvalidPath = errors.New("library: invalid path")
	// ErrNotFound means the addressed file does not exist.
	ErrNotFound = errors.New("library: file not found")
	// ErrRejected means an upload failed validation.
	ErrRejected = errors.New("library: upload rejected")
)

var unsafeChars = regexp.MustCompile(`[^\w\s.-]`)

// sanitizeFilename strips unsafe characters and spaces from an uploaded
// filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.ReplaceAll(name, " ", "-")
}

// confine resolves rel against root and rejects any path escaping it.
func confine(root, rel string) (string, error) {
	path := filepath.Join(root, rel)
	resolved, err := filepath.Rel(root, path)
	if err != nil || resolved == ".." || strings.HasPrefix(resolved, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return path, nil
}
