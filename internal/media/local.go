package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

func (s *LocalStore) getPath(id string) string {
	if len(id) < 2 {
		return filepath.Join(s.root, id)
	}
	return filepath.Join(s.root, id[:2], id)
}

// Save sniffs the content type, rejects anything that is not an image and
// writes the bytes atomically (temp file + rename).
func (s *LocalStore) Save(data []byte) (string, error) {
	if !filetype.IsImage(data) {
		return "", ErrUnsupportedType
	}

	id := uuid.NewString()
	path := s.getPath(id)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name()) // Clean up if rename fails
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to rename file: %w", err)
	}

	return fmt.Sprintf("%s/api/images/%s", s.baseURL, id), nil
}

func (s *LocalStore) Get(id string) ([]byte, string, error) {
	f, err := os.Open(s.getPath(id))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image %s: %w", id, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", id, err)
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return nil, "", err
	}
	return data, kind.MIME.Value, nil
}
