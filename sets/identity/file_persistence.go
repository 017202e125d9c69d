package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// ErrNoIdentity is returned by Load when nothing was saved.
var ErrNoIdentity = errors.New("no stored identity")

// FilePersistence implements Persistence with a single JSON file.
type FilePersistence struct {
	path string
}

// NewFilePersistence stores the identity at path. The directory is created
// on first save.
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

// DefaultPath returns <user config dir>/sets/identity.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "sets", "identity.json"), nil
}

// Save persists user to the JSON file.
func (fp *FilePersistence) Save(user model.User) error {
	if err := os.MkdirAll(filepath.Dir(fp.path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := os.WriteFile(fp.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}

// Load reads the saved user.
func (fp *FilePersistence) Load() (model.User, error) {
	data, err := os.ReadFile(fp.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.User{}, ErrNoIdentity
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to read identity file: %w", err)
	}
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return model.User{}, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	if user.UserID == "" {
		return model.User{}, ErrNoIdentity
	}
	return user, nil
}

// Clear removes the file.
func (fp *FilePersistence) Clear() error {
	if err := os.Remove(fp.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove identity file: %w", err)
	}
	return nil
}
