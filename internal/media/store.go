package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// extensionPattern constrains extensions to one alphanumeric path element;
// anything with separators or dots could address files outside the store
var extensionPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidExtension reports whether the extension is safe to use in a file name
func ValidExtension(extension string) bool {
	return extensionPattern.MatchString(extension)
}

// ContentHash returns the hex SHA-256 digest used for attachment deduplication
func ContentHash(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Store keeps image files on disk, keyed by resource ID and extension
type Store struct {
	dir string
}

// NewStore creates the media directory if needed and returns a Store over it
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the on-disk path for a resource
func (s *Store) Path(resourceID, extension string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s", resourceID, extension))
}

// Write persists the file for a resource
func (s *Store) Write(resourceID, extension string, data []byte) error {
	if !ValidExtension(extension) {
		return fmt.Errorf("invalid media extension %q", extension)
	}
	if err := os.WriteFile(s.Path(resourceID, extension), data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}

// Read loads the file for a resource
func (s *Store) Read(resourceID, extension string) ([]byte, error) {
	if !ValidExtension(extension) {
		return nil, fmt.Errorf("invalid media extension %q", extension)
	}
	data, err := os.ReadFile(s.Path(resourceID, extension))
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// Remove deletes the file for a resource
func (s *Store) Remove(resourceID, extension string) error {
	if !ValidExtension(extension) {
		return fmt.Errorf("invalid media extension %q", extension)
	}
	if err := os.Remove(s.Path(resourceID, extension)); err != nil {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}
