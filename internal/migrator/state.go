package migrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/viscontia/expensefx/internal/models"
)

// loadState reads the persisted run state. A missing or corrupted file is
// "no prior state": the run starts over.
func loadState(path string) *models.MigrationState {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var state models.MigrationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	if state.RunID == "" {
		return nil
	}
	return &state
}

// saveState atomically rewrites the state file: write a sibling temp file,
// fsync, rename over the original.
func saveState(path string, state *models.MigrationState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal migration state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// removeState deletes the state file after a rollback.
func removeState(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// runLog appends ISO-8601-timestamped lines to the migration log file.
type runLog struct {
	f *os.File
}

func openRunLog(path string) (*runLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open migration log: %w", err)
	}
	return &runLog{f: f}, nil
}

func (l *runLog) Printf(format string, args ...any) {
	if l == nil || l.f == nil {
		return
	}
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	_, _ = l.f.WriteString(line)
}

func (l *runLog) Close() {
	if l != nil && l.f != nil {
		_ = l.f.Close()
	}
}
