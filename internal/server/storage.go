package server

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Storage defines the interface for scratch file operations
type Storage interface {
	// Save saves a file and returns its name within the storage
	Save(filename string, data []byte) (string, error)

	// Path returns the filesystem path of a saved file
	Path(name string) string

	// Delete removes a file
	Delete(name string) error

	// Clear removes every file and returns how many were deleted
	Clear() (int, error)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	name := filepath.Base(filename)
	if err := os.WriteFile(l.Path(name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Path returns the full path of a file in local storage
func (l *LocalStorage) Path(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(name string) error {
	if err := os.Remove(l.Path(name)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Clear removes all regular files from local storage
func (l *LocalStorage) Clear() (int, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return 0, fmt.Errorf("reading storage directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(l.basePath, entry.Name())); err != nil {
			return deleted, fmt.Errorf("deleting file %s: %w", entry.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}

var (
	reFilenameJunk = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = reFilenameJunk.ReplaceAllString(base, "")
	base = reWhitespace.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "upload"
	}

	return base + ext
}
