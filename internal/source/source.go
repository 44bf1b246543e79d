// Package source holds the file-location vocabulary shared by talkpoints,
// breakpoints and the protocol clients.
package source

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Location is a document URI plus a 0-based line.
type Location struct {
	URI  string `json:"uri"`
	Line int    `json:"line"`
}

// Path returns the file path of the location's document.
func (l Location) Path() string {
	return Path(l.URI)
}

// Key returns the stable join key of the location.
func (l Location) Key() Key {
	return Key{Path: l.Path(), Line: l.Line}
}

// String renders the location with a 1-based line for people.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", filepath.Base(l.Path()), l.Line+1)
}

// Key is the durable identity of a source line: (file path, 0-based line).
type Key struct {
	Path string
	Line int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Path, k.Line)
}

// Path extracts a cleaned file path from a file:// URI or a bare path.
func Path(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		if u, err := url.Parse(uri); err == nil {
			return filepath.Clean(filepath.FromSlash(u.Path))
		}
	}
	if uri == "" {
		return ""
	}
	return filepath.Clean(uri)
}

// FileURI converts a file path to a file:// URI. Relative paths are made
// absolute first.
func FileURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
