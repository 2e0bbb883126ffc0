package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"token_sync/internal/domain"
)

// Snapshot represents a point-in-time capture of the token table.
// Readers receive snapshots instead of touching the live store.
type Snapshot struct {
	Seq        uint64                             `json:"seq"` // Last processed sequence number
	TsUnix     int64                              `json:"ts"`  // Snapshot creation timestamp (Unix seconds)
	Categories map[domain.Category][]domain.Token `json:"categories"`
	Flashes    []domain.Flash                     `json:"flashes,omitempty"`
}

// Tokens returns the tokens of one category, or nil.
func (s *Snapshot) Tokens(c domain.Category) []domain.Token {
	if s == nil {
		return nil
	}
	return s.Categories[c]
}

// CreateSnapshot creates a snapshot from current state.
func CreateSnapshot(seq uint64, store *TokenStore, flashes []domain.Flash) *Snapshot {
	flashCopy := make([]domain.Flash, len(flashes))
	copy(flashCopy, flashes)

	return &Snapshot{
		Seq:        seq,
		TsUnix:     time.Now().Unix(),
		Categories: store.All(),
		Flashes:    flashCopy,
	}
}

// SnapshotManager handles saving and loading snapshot files.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a new snapshot manager.
// dir: directory to store snapshot files.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// Save writes a snapshot to disk and returns its path.
func (sm *SnapshotManager) Save(snap *Snapshot) (string, error) {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	filename := fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix)
	path := filepath.Join(sm.dir, filename)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	slog.Info("Snapshot saved",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", path))

	return path, nil
}

// LoadLatest loads the most recent snapshot from disk.
// Returns nil if no snapshot exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	files, err := sm.list()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return LoadSnapshotFile(files[0].path)
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	files, err := sm.list()
	if err != nil {
		return err
	}
	if len(files) <= keepCount {
		return nil
	}

	for _, f := range files[keepCount:] {
		if err := os.Remove(f.path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", f.path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", f.path))
		}
	}
	return nil
}

type snapFile struct {
	path string
	seq  uint64
}

// list returns snapshot files ordered by sequence, newest first.
func (sm *SnapshotManager) list() ([]snapFile, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		return nil, err
	}

	var files []snapFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		if _, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &seq, &ts); err != nil {
			continue // Not a snapshot file
		}
		files = append(files, snapFile{path: filepath.Join(sm.dir, entry.Name()), seq: seq})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files, nil
}

// LoadSnapshotFile reads a single snapshot file. It is also used to seed the
// engine from a hand-written fixture.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	slog.Info("Snapshot loaded",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", path))

	return &snap, nil
}
