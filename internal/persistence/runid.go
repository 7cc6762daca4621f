package persistence

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const runIDFile = "run.id"

// LoadOrCreateRunID returns the run identifier anchored to the namespace
// root. The first invocation against a namespace generates and persists a
// new id; resumes of the same namespace reuse it, so checkpoints, state
// and metadata of an interrupted run stay attributed to one run.
func LoadOrCreateRunID(root string) (string, error) {
	path := filepath.Join(root, runIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, []byte(id+"\n")); err != nil {
		return "", err
	}
	return id, nil
}

// ResetRunID removes the persisted run identifier so the next invocation
// starts a fresh run. Called during end-of-run cleanup.
func ResetRunID(root string) error {
	err := os.Remove(filepath.Join(root, runIDFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
