// Package store persists snapshots as pretty-printed JSON documents, one
// file per snapshot name.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alc6/schematrack/schema"
)

const fileExt = ".json"

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("snapshot not found")

// NotFoundError reports a snapshot name missing from the store
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("snapshot not found: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FileStore keeps snapshots under a root directory as <name>.json
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store on it.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage path is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the storage directory
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid snapshot name: %q", name)
	}
	return filepath.Join(s.root, name+fileExt), nil
}

// Exists reports whether a snapshot with that name is stored.
func (s *FileStore) Exists(name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat snapshot %s: %w", name, err)
}

// Get loads a snapshot by name. A missing snapshot yields a *NotFoundError.
func (s *FileStore) Get(name string) (*schema.Snapshot, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, &NotFoundError{Name: name}
	}
	snap, err := readSnapshot(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List loads every readable snapshot sorted by ascending timestamp. Files
// that do not decode, or whose name does not match the file name, are
// skipped with a warning.
func (s *FileStore) List() ([]schema.Snapshot, error) {
	files, err := filepath.Glob(filepath.Join(s.root, "*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snapshots := make([]schema.Snapshot, 0, len(files))
	for _, file := range files {
		snap, err := readSnapshot(file)
		if err != nil {
			slog.Warn("skipping unreadable snapshot", "file", file, "error", err)
			continue
		}
		if base := strings.TrimSuffix(filepath.Base(file), fileExt); snap.Name != base {
			slog.Warn("skipping snapshot stored under another name", "file", file, "name", snap.Name)
			continue
		}
		snapshots = append(snapshots, *snap)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].Name < snapshots[j].Name
		}
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	slog.Debug("listed snapshots", "root", s.root, "count", len(snapshots))
	return snapshots, nil
}

// Latest returns the most recent snapshot, or a *NotFoundError when the
// store is empty.
func (s *FileStore) Latest() (*schema.Snapshot, error) {
	snapshots, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, &NotFoundError{}
	}
	latest := snapshots[len(snapshots)-1]
	return &latest, nil
}

// Save writes the snapshot, replacing any file with the same name. The
// document is written to a temporary file first and renamed into place.
func (s *FileStore) Save(snap *schema.Snapshot) error {
	path, err := s.path(snap.Name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", snap.Name, err)
	}

	tmp, err := os.CreateTemp(s.root, "."+snap.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot %s: %w", snap.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", snap.Name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", snap.Name, err)
	}

	slog.Debug("saved snapshot", "name", snap.Name, "path", path)
	return nil
}

// Delete removes a snapshot, reporting whether one was removed.
func (s *FileStore) Delete(name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, nil
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete snapshot %s: %w", name, err)
	}
	return true, nil
}

func readSnapshot(path string) (*schema.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// UseNumber keeps integer defaults beyond 2^53 exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var snap schema.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if snap.Name == "" {
		return nil, fmt.Errorf("snapshot %s has no name", path)
	}
	if snap.Schema == nil {
		snap.Schema = schema.Schema{}
	}
	for _, table := range snap.Schema {
		for name, col := range table.Columns {
			col.Default = schema.Normalize(col.Default)
			table.Columns[name] = col
		}
	}
	return &snap, nil
}
