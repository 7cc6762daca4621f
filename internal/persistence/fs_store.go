package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/petrijr/stepflow/pkg/api"
)

// The filesystem stores implement the stable on-disk layout of a run
// namespace:
//
//	checkpoints/<step>.done
//	state/<step>/raw_data.json        (opaque document payloads)
//	state/<step>/<artifact>.csv       (tabular payloads)
//	metrics/<step>/metadata.json      (append-only history array)
//
// Durability discipline: every payload file is written to a temp file in
// the same directory and renamed into place, so a reader never observes a
// partial write.

const (
	doneSuffix  = ".done"
	docFileName = "raw_data.json"
	metaFile    = "metadata.json"
)

// writeFileAtomic writes data to path via a temp file + rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// removeContents deletes everything inside dir, keeping dir itself.
func removeContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// FSCheckpointStore is a CheckpointStore backed by <step>.done marker
// files in a single directory. A marker file's existence is the boolean
// completion evidence; its content is empty.
type FSCheckpointStore struct {
	dir string
}

var _ CheckpointStore = (*FSCheckpointStore)(nil)

// NewFSCheckpointStore creates the checkpoint directory if needed and
// returns a store rooted there.
func NewFSCheckpointStore(dir string) (*FSCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSCheckpointStore{dir: dir}, nil
}

func (s *FSCheckpointStore) markerPath(step string) string {
	return filepath.Join(s.dir, step+doneSuffix)
}

func (s *FSCheckpointStore) MarkDone(step string) error {
	f, err := os.OpenFile(s.markerPath(step), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *FSCheckpointStore) IsDone(step string) (bool, error) {
	_, err := os.Stat(s.markerPath(step))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSCheckpointStore) ListDone() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}

	done := make(map[string]struct{})
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, doneSuffix) {
			continue
		}
		done[strings.TrimSuffix(name, doneSuffix)] = struct{}{}
	}
	return done, nil
}

func (s *FSCheckpointStore) Clear() error {
	return removeContents(s.dir)
}

// FSStateStore is a StateStore backed by one subdirectory per step.
type FSStateStore struct {
	dir string
}

var _ StateStore = (*FSStateStore)(nil)

// NewFSStateStore creates the state directory if needed and returns a
// store rooted there.
func NewFSStateStore(dir string) (*FSStateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStateStore{dir: dir}, nil
}

func (s *FSStateStore) stepDir(step string) string {
	return filepath.Join(s.dir, step)
}

func (s *FSStateStore) Save(step string, payload api.Payload) error {
	stepDir := s.stepDir(step)
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return err
	}

	// A rerun of the same step overwrites its record entirely; stale
	// artifacts from a prior attempt must not survive.
	if err := removeContents(stepDir); err != nil {
		return err
	}

	if len(payload.Doc) > 0 {
		return writeFileAtomic(filepath.Join(stepDir, docFileName), payload.Doc)
	}

	for name, table := range payload.Tables {
		data, err := EncodeTable(table)
		if err != nil {
			return fmt.Errorf("encode artifact %s: %w", name, err)
		}
		if err := writeFileAtomic(filepath.Join(stepDir, name+".csv"), data); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSStateStore) Load(step string) (api.Payload, error) {
	stepDir := s.stepDir(step)
	entries, err := os.ReadDir(stepDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.Payload{}, ErrStateNotFound
		}
		return api.Payload{}, err
	}
	if len(entries) == 0 {
		return api.Payload{}, ErrStateNotFound
	}

	var payload api.Payload
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(stepDir, name))
		if err != nil {
			return api.Payload{}, err
		}

		switch {
		case name == docFileName:
			payload.Doc = data
		case strings.HasSuffix(name, ".csv"):
			table, err := DecodeTable(data)
			if err != nil {
				return api.Payload{}, fmt.Errorf("decode artifact %s: %w", name, err)
			}
			if payload.Tables == nil {
				payload.Tables = make(map[string]*api.Table)
			}
			payload.Tables[strings.TrimSuffix(name, ".csv")] = table
		}
	}

	if payload.IsZero() {
		return api.Payload{}, ErrStateNotFound
	}
	return payload, nil
}

func (s *FSStateStore) Exists(step string) (bool, error) {
	entries, err := os.ReadDir(s.stepDir(step))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			return true, nil
		}
	}
	return false, nil
}

func (s *FSStateStore) Clear() error {
	return removeContents(s.dir)
}

// FSMetadataStore appends step execution metadata to
// metrics/<step>/metadata.json, a JSON array that grows across runs and is
// never removed by cleanup.
type FSMetadataStore struct {
	dir string
}

var _ MetadataStore = (*FSMetadataStore)(nil)

// NewFSMetadataStore creates the metrics directory if needed and returns
// a store rooted there.
func NewFSMetadataStore(dir string) (*FSMetadataStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSMetadataStore{dir: dir}, nil
}

func (s *FSMetadataStore) metaPath(step string) string {
	return filepath.Join(s.dir, step, metaFile)
}

func (s *FSMetadataStore) Append(step string, md api.StepMetadata) error {
	history, err := s.History(step)
	if err != nil {
		return err
	}
	history = append(history, md)

	if err := os.MkdirAll(filepath.Join(s.dir, step), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.metaPath(step), data)
}

func (s *FSMetadataStore) History(step string) ([]api.StepMetadata, error) {
	data, err := os.ReadFile(s.metaPath(step))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var history []api.StepMetadata
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("corrupt metadata history for step %s: %w", step, err)
	}
	return history, nil
}
