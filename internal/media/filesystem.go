package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files outside the accepted video formats
var ErrUnsupportedType = errors.New("unsupported video file type")

// AllowedExtensions lists the video formats accepted for upload
var AllowedExtensions = []string{".mp4", ".mkv", ".avi", ".mov"}

// Storage persists uploaded video files and hands back their location
type Storage interface {
	Save(filename string, data io.Reader) (string, error)
	Delete(location string) error
	EnsureDir() error
}

// FileSystemStore stores uploaded videos under a local root directory.
type FileSystemStore struct {
	basePath string
	newID    func() string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{
		basePath: basePath,
		newID:    func() string { return uuid.NewString()[:8] },
	}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data under a unique name derived from filename and returns the
// stored path, which callers keep verbatim as the movie's video location.
func (fs *FileSystemStore) Save(filename string, data io.Reader) (string, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(fs.basePath, fs.newID()+"_"+name)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		// Clean up partial file on error
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to flush file %s: %w", filePath, err)
	}

	return filePath, nil
}

// Delete removes a stored file. Locations outside the root (such as remote
// URLs) and files already gone are ignored.
func (fs *FileSystemStore) Delete(location string) error {
	if !fs.owns(location) {
		return nil
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", location, err)
	}
	return nil
}

func (fs *FileSystemStore) owns(location string) bool {
	rel, err := filepath.Rel(fs.basePath, location)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// cleanName reduces an uploaded filename to a safe base name with an allowed extension
func cleanName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)

	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, e := range AllowedExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed || strings.TrimSuffix(name, filepath.Ext(name)) == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filename)
	}
	return name, nil
}
