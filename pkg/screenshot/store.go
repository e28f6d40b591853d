// Package screenshot persists captured page images and hands out the
// reference paths stored on sessions.
package screenshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RefPrefix is the URL-style prefix every stored reference carries.
const RefPrefix = "/screenshots/"

// Store writes screenshots to a flat directory, one PNG per capture.
type Store struct {
	dir string
}

// NewStore creates the backing directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("screenshot directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data and returns the reference path callers store on the
// session. Filenames are timestamped so repeated captures never collide.
func (s *Store) Save(sessionID, name string, data []byte) (string, error) {
	timestamp := time.Now().Format("20060102_150405.000")
	filename := fmt.Sprintf("%s_%s_%s.png", sanitize(sessionID), sanitize(name), strings.ReplaceAll(timestamp, ".", ""))
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return RefPrefix + filename, nil
}

// Path maps a stored reference back to the file on disk. References that do
// not carry the expected prefix or try to escape the directory are rejected.
func (s *Store) Path(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, RefPrefix)
	if name == "" || name != filepath.Base(name) {
		return "", false
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// sanitize strips path separators and whitespace from filename components.
func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\n', '\r', '\t':
			return '_'
		}
		return r
	}, v)
}
