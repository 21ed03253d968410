// Package pause persists paused execution snapshots across process
// boundaries.
//
// A snapshot is created only when a confirm step suspends a run, and is
// destroyed on resume, cancel, or timeout-driven default resolution. Writes
// are atomic from a reader's point of view (temp file + rename under a file
// lock), so an orphaned partial snapshot cannot exist. Snapshots carry a
// format version so future step-kind additions do not silently break
// resumption of in-flight paused runs.
package pause

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/skillrunner/internal/filelock"
	"github.com/harrison/skillrunner/internal/models"
)

// Version is the current snapshot format version.
const Version = 1

// ErrNotFound is returned when no paused state exists for an execution ID.
// A second resume of the same ID surfaces this as "execution not found".
var ErrNotFound = errors.New("paused execution not found")

// State is the full serialization of a suspended run: the execution
// context, the cursor of the suspended step, and the pending request.
type State struct {
	Version int                        `json:"version"`
	Context *models.ExecutionContext   `json:"context"`
	// Cursor is the path of step indices to the suspended confirm step
	// (outer list index, then branch indices for nested steps).
	Cursor  []int                      `json:"cursor"`
	Request models.ConfirmationRequest `json:"request"`
	SavedAt time.Time                  `json:"saved_at"`
}

// Store persists paused states, one JSON file per execution ID, guarded by
// a directory-wide file lock for cross-process safety.
type Store struct {
	dir  string
	lock *filelock.FileLock
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create paused-state directory: %w", err)
	}
	return &Store{
		dir:  dir,
		lock: filelock.New(filepath.Join(dir, ".lock")),
	}, nil
}

func (s *Store) path(executionID string) string {
	return filepath.Join(s.dir, executionID+".json")
}

// Save writes a paused state atomically. The state's version is stamped
// here; callers never set it.
func (s *Store) Save(state *State) error {
	if state.Context == nil {
		return fmt.Errorf("paused state requires an execution context")
	}
	state.Version = Version
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal paused state: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	if err := filelock.AtomicWrite(s.path(state.Context.ExecutionID), data); err != nil {
		return fmt.Errorf("write paused state: %w", err)
	}
	return nil
}

// Load reads the paused state for an execution ID without consuming it.
func (s *Store) Load(executionID string) (*State, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()
	return s.load(executionID)
}

func (s *Store) load(executionID string) (*State, error) {
	data, err := os.ReadFile(s.path(executionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read paused state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal paused state: %w", err)
	}
	if state.Version != Version {
		return nil, fmt.Errorf("unsupported paused state version %d (want %d)", state.Version, Version)
	}
	return &state, nil
}

// Take loads and deletes the paused state in one locked operation. This is
// the exactly-once consumption point: a second Take for the same execution
// ID returns ErrNotFound, which rejects stale or duplicate resolutions.
func (s *Store) Take(executionID string) (*State, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	state, err := s.load(executionID)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(s.path(executionID)); err != nil {
		return nil, fmt.Errorf("consume paused state: %w", err)
	}
	return state, nil
}

// Delete removes a paused state. Used by cancellation: an orphaned paused
// record is a leak, not just stale data. Deleting a missing state is not an
// error.
func (s *Store) Delete(executionID string) error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	err := os.Remove(s.path(executionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete paused state: %w", err)
	}
	return nil
}

// List returns all paused states, oldest first.
func (s *Store) List() ([]*State, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read paused-state directory: %w", err)
	}

	var states []*State
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		state, err := s.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Skip records another process is mid-replacing or that a
			// newer version wrote.
			continue
		}
		states = append(states, state)
	}

	sortStates(states)
	return states, nil
}

func sortStates(states []*State) {
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j].SavedAt.Before(states[j-1].SavedAt); j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}
}
