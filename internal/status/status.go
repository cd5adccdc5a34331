// Package status persists onboarding progress: the current stage and the
// username chosen so far. The record lives in a small JSON file, rewritten
// atomically after every transition, and is the only durable state of the
// onboarding.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"kanoinit/internal/logging"
)

// DefaultPath is where the status file lives on a device.
const DefaultPath = "/var/cache/kano-init/status.json"

var (
	// ErrTaskConflict is returned when scheduling a task while another is
	// pending.
	ErrTaskConflict = errors.New("a task is already scheduled")
	// ErrCorrupt describes an unreadable status file. Open heals it instead
	// of returning it.
	ErrCorrupt = errors.New("status file corrupt")
	// ErrNotInitialized is returned by package-level helpers before
	// Initialize.
	ErrNotInitialized = errors.New("status not initialized")
)

// Status is the persisted record.
type Status struct {
	Stage    Stage   `json:"stage"`
	Username *string `json:"username"`
}

// Default is the record of a device with nothing scheduled.
func Default() Status {
	return Status{Stage: StageDisabled}
}

// User returns the username, or "" when none is set.
func (s Status) User() string {
	if s.Username == nil {
		return ""
	}
	return *s.Username
}

func (s Status) equal(o Status) bool {
	if s.Stage != o.Stage || (s.Username == nil) != (o.Username == nil) {
		return false
	}
	return s.Username == nil || *s.Username == *o.Username
}

// Option adjusts a record during a transition.
type Option func(*Status)

// WithUsername sets the username.
func WithUsername(name string) Option {
	return func(s *Status) { s.Username = &name }
}

// ClearUsername removes the username.
func ClearUsername() Option {
	return func(s *Status) { s.Username = nil }
}

// Recorder is told about every transition that changed the record.
type Recorder func(from, to Status)

// Store owns the status file.
type Store struct {
	mu     sync.Mutex
	path   string
	cur    Status
	record Recorder
}

// Open loads the status file at path. A missing file is created with the
// default record; a corrupt one is reset to it and rewritten.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating status dir: %w", err)
	}
	s := &Store{path: path}

	st, err := Read(path)
	switch {
	case err == nil:
		s.cur = st
		logging.Status("status loaded: stage=%s", st.Stage)
		return s, nil
	case errors.Is(err, fs.ErrNotExist):
		logging.Status("no status file at %s, starting disabled", path)
	case errors.Is(err, ErrCorrupt):
		logging.Get(logging.CategoryStatus).Warn("%v, resetting to %s", err, StageDisabled)
	default:
		return nil, err
	}

	s.cur = Default()
	if err := write(path, s.cur); err != nil {
		return nil, err
	}
	return s, nil
}

// Read decodes the status file without healing it. Undecodable content or an
// unknown stage is reported as ErrCorrupt.
func Read(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, fmt.Errorf("reading status: %w", err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !st.Stage.Valid() {
		return Status{}, fmt.Errorf("%w: unknown stage %q", ErrCorrupt, st.Stage)
	}
	return st, nil
}

// write replaces the file atomically: temp file in the same dir, then rename.
func write(path string, st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.json")
	if err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing status: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing status: %w", err)
	}
	return nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// SetRecorder installs r, replacing any previous recorder.
func (s *Store) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = r
}

// Status returns a copy of the current record.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Status {
	st := s.cur
	if st.Username != nil {
		name := *st.Username
		st.Username = &name
	}
	return st
}

// Stage returns the current stage.
func (s *Store) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Stage
}

// AdvanceTo moves the record to stage and persists it before returning.
// Repeating an identical call leaves the record unchanged.
func (s *Store) AdvanceTo(stage Stage, opts ...Option) error {
	if !stage.Valid() {
		return &UnknownStageError{Name: string(stage)}
	}

	s.mu.Lock()
	prev := s.copyLocked()
	next := s.copyLocked()
	next.Stage = stage
	for _, opt := range opts {
		opt(&next)
	}
	if err := write(s.path, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cur = next
	record := s.record
	s.mu.Unlock()

	if !prev.equal(next) {
		logging.Status("stage %s -> %s", prev.Stage, next.Stage)
		if record != nil {
			record(prev, next)
		}
	}
	return nil
}

// Schedule records a maintenance task for the next boot. Only one task may
// be pending: when the stage is not disabled it fails with ErrTaskConflict
// and leaves the record alone.
func (s *Store) Schedule(task Stage, username string) error {
	if !task.IsMaintenance() || task == StageDisabled {
		return fmt.Errorf("%q is not a schedulable task", task)
	}

	s.mu.Lock()
	cur := s.cur.Stage
	s.mu.Unlock()
	if cur != StageDisabled {
		return fmt.Errorf("%w: %s is pending", ErrTaskConflict, cur)
	}

	opt := ClearUsername()
	if username != "" {
		opt = WithUsername(username)
	}
	return s.AdvanceTo(task, opt)
}

var (
	instanceMu sync.Mutex
	instance   *Store
)

// Initialize opens the process-wide store. It must be paired with Shutdown.
func Initialize(path string) (*Store, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, fmt.Errorf("status already initialized from %s", instance.path)
	}
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	instance = s
	return s, nil
}

// Instance returns the process-wide store.
func Instance() (*Store, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// Shutdown releases the process-wide store.
func Shutdown() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
