// Package track provides the Track domain entity.
package track

import (
	"path/filepath"
	"strings"
)

// Track represents a single audio file in the music library.
// Immutable once loaded; owned by the playlist that enumerated it.
type Track struct {
	Path        string // Absolute or directory-relative file path
	DisplayName string // File name without extension, used for voice lookup
}

// New creates a Track from a file path, deriving the display name
// from the base name with the extension stripped.
func New(path string) Track {
	base := filepath.Base(path)
	return Track{
		Path:        path,
		DisplayName: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

// Ext returns the lower-cased file extension, including the dot.
func (t Track) Ext() string {
	return strings.ToLower(filepath.Ext(t.Path))
}
