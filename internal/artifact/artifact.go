// Package artifact writes downloaded crash logs and screenshots to the data
// directory.
//
// Layout:
//
//	<data dir>/logs/<local id>.ips
//	<data dir>/screenshots/<local id>.<ext>
//
// Files are written to a temporary name and renamed into place, so a path
// recorded in the store always points at a complete file.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asccrash/asccrash/internal/model"
)

// CrashLogExtension is the extension of stored crash logs.
const CrashLogExtension = "ips"

// mediaTypeExtensions maps screenshot media types to file extensions.
var mediaTypeExtensions = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/gif":       "gif",
	"image/heic":      "heic",
	"video/quicktime": "mov",
	"video/mp4":       "mp4",
}

// ExtensionFor returns the file extension for a media type, "bin" when unknown.
// Parameters such as "; charset=..." are ignored.
func ExtensionFor(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := mediaTypeExtensions[mt]; ok {
		return ext
	}
	return "bin"
}

// Sink stores artifacts under a data directory.
type Sink struct {
	root string
}

// NewSink returns a sink rooted at dataDir.
func NewSink(dataDir string) *Sink {
	return &Sink{root: dataDir}
}

// EnsureDirs creates the per-kind artifact directories.
func (s *Sink) EnsureDirs() error {
	for _, kind := range model.Kinds {
		if err := os.MkdirAll(filepath.Join(s.root, kind.ArtifactDir()), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", kind.ArtifactDir(), err)
		}
	}
	return nil
}

// PathFor returns where the artifact of submission id is stored.
func (s *Sink) PathFor(kind model.Kind, id int64, mediaType string) string {
	ext := CrashLogExtension
	if kind == model.KindFeedback {
		ext = ExtensionFor(mediaType)
	}
	return filepath.Join(s.root, kind.ArtifactDir(), fmt.Sprintf("%d.%s", id, ext))
}

// Write stores data for submission id and returns the final path.
// An existing file at that path is replaced.
func (s *Sink) Write(kind model.Kind, id int64, mediaType string, data []byte) (string, error) {
	path := s.PathFor(kind, id, mediaType)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind.ArtifactDir(), err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	return path, nil
}
