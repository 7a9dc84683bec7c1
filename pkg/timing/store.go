package timing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/orthoforge/pkg/logging"
)

// Entry is the persisted remaining time of one session.
type Entry struct {
	TimeLeftMs int64     `json:"timeLeftMs"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Remaining returns the entry as a duration.
func (e Entry) Remaining() time.Duration {
	return time.Duration(e.TimeLeftMs) * time.Millisecond
}

// FileStore persists remaining session times as JSON. It is the Sink the
// session timers report to, and the data startup reconciliation reads.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
	log     *logging.Logger
}

var _ Sink = (*FileStore)(nil)

// NewFileStore loads path if it exists. If path is empty, defaults to
// ~/.orthoforge/session-times.json. Save failures during Report go to log.
func NewFileStore(path string, log *logging.Logger) (*FileStore, error) {
	if log == nil {
		log = logging.Discard()
	}
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".orthoforge", "session-times.json")
	}

	s := &FileStore{
		path:    path,
		entries: make(map[string]Entry),
		now:     time.Now,
		log:     log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session times: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("failed to decode session times from %s: %w", path, err)
		}
	}
	return s, nil
}

// Report records the remaining time of sessionID and saves the file. A failed
// save is logged; the next report retries.
func (s *FileStore) Report(sessionID string, left time.Duration) {
	if left < 0 {
		left = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sessionID] = Entry{TimeLeftMs: left.Milliseconds(), UpdatedAt: s.now()}
	if err := s.save(); err != nil {
		s.log.With(sessionID).Warnf("failed to save remaining time (%s left): %v", FormatRemaining(left), err)
	}
}

// Get returns the persisted entry of sessionID.
func (s *FileStore) Get(sessionID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	return e, ok
}

// Forget removes sessionID, used when an account is reset.
func (s *FileStore) Forget(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; !ok {
		return nil
	}
	delete(s.entries, sessionID)
	return s.save()
}

// IDs returns the ids with a persisted entry, sorted.
func (s *FileStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// save must be called with s.mu held.
func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create session times directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp session times file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.entries); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session times: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
