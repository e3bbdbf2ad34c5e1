package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bushta-cyber/fastmed/pkg/interfaces"
)

// FileStorage persists session slots as files under a directory. Writes go
// through a temp file and rename, so a crash never leaves a partially
// written slot behind.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the storage directory if needed
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Read returns the slot's value, or the empty string when the slot does
// not exist
func (fs *FileStorage) Read(slot string) (string, error) {
	data, err := os.ReadFile(fs.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return string(data), nil
}

// Write atomically replaces the slot's value
func (fs *FileStorage) Write(slot, value string) error {
	tmp := fs.path(slot) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	if err := os.Rename(tmp, fs.path(slot)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit slot %s: %w", slot, err)
	}
	return nil
}

// Delete removes a single slot; deleting an absent slot is a no-op
func (fs *FileStorage) Delete(slot string) error {
	if err := os.Remove(fs.path(slot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete slot %s: %w", slot, err)
	}
	return nil
}

// Clear removes every known slot
func (fs *FileStorage) Clear() error {
	for _, slot := range []string{interfaces.SlotAccess, interfaces.SlotRefresh, interfaces.SlotUser} {
		if err := fs.Delete(slot); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStorage) path(slot string) string {
	return filepath.Join(fs.dir, slot)
}
