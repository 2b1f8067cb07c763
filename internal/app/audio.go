package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AudioStore keeps uploaded recordings on local disk under a flat
// directory, one file per submission, named by a fresh UUID so uploads
// never collide or overwrite each other.
type AudioStore struct {
	dir     string
	maxSize int64
}

func NewAudioStore(dir string, maxSizeMB int64) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &AudioStore{
		dir:     dir,
		maxSize: maxSizeMB * 1024 * 1024,
	}, nil
}

func (a *AudioStore) MaxSize() int64 {
	return a.maxSize
}

func (a *AudioStore) Save(data []byte, ext string) (string, error) {
	if int64(len(data)) > a.maxSize {
		return "", fmt.Errorf("%w: audio exceeds %d bytes", ErrValidation, a.maxSize)
	}

	ext = strings.ToLower(filepath.Ext(ext))
	if ext == "" {
		ext = ".wav"
	}

	name := uuid.NewString() + ext
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save audio file: %w", err)
	}

	return path, nil
}

func (a *AudioStore) Open(path string) ([]byte, error) {
	// refuse paths escaping the uploads dir
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(a.dir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("%w: audio path outside uploads dir", ErrValidation)
	}
	data, err := os.ReadFile(clean)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: audio file", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return data, nil
}

func (a *AudioStore) Remove(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(a.dir)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: audio path outside uploads dir", ErrValidation)
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove audio file: %w", err)
	}
	return nil
}
