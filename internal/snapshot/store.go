// Package snapshot keeps a small per-session record on local durable storage
// so the bot can show which workout days are in progress before the database
// answers, and can recover counters that never reached the database.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const keyPrefix = "workout-session:"

// Entry is the local record of one workout session
type Entry struct {
	SessionID string    `json:"session_id"`
	StudentID int64     `json:"student_id"`
	DayIndex  int       `json:"day_index"`
	Started   bool      `json:"started"`
	Duration  int       `json:"duration_seconds"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the typed view over a KV. The last local write always wins;
// UpdatedAt is only used for expiry.
type Store struct {
	kv  KV
	now func() time.Time

	// serializes read-modify-write sequences across timers sharing the store
	mu sync.Mutex
}

// NewStore creates a Store on top of kv
func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// WithClock replaces the clock used for write timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// Persist upserts the entry for a session, or deletes it when started is false.
// A journaled duration already on the entry is kept.
func (s *Store) Persist(sessionID string, studentID int64, dayIndex int, started bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !started {
		return s.kv.Remove(key(sessionID))
	}

	entry, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &Entry{SessionID: sessionID}
	}
	entry.StudentID = studentID
	entry.DayIndex = dayIndex
	entry.Started = true

	return s.put(entry)
}

// Journal records the latest local counter value for a session that already
// has an entry
func (s *Store) Journal(sessionID string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no snapshot for session %s", sessionID)
	}
	if seconds > entry.Duration {
		entry.Duration = seconds
	}

	return s.put(entry)
}

// Get returns the entry for a session, or nil
func (s *Store) Get(sessionID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(sessionID)
}

// Remove deletes the entry for a session
func (s *Store) Remove(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Remove(key(sessionID))
}

// All returns every entry ordered by session id
func (s *Store) All() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.all()
}

// ForStudent returns the entries that belong to one student
func (s *Store) ForStudent(studentID int64) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.all()
	if err != nil {
		return nil, err
	}

	var out []*Entry
	for _, e := range entries {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// StartedDays returns the sorted day indices a student has marked as started
func (s *Store) StartedDays(studentID int64) ([]int, error) {
	entries, err := s.ForStudent(studentID)
	if err != nil {
		return nil, err
	}

	var days []int
	for _, e := range entries {
		if e.Started {
			days = append(days, e.DayIndex)
		}
	}
	return uniqueSorted(days), nil
}

// PurgeOlderThan removes entries written more than maxAge ago and returns
// how many were removed
func (s *Store) PurgeOlderThan(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.all()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.UpdatedAt.Before(cutoff) {
			if err := s.kv.Remove(key(e.SessionID)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *Store) get(sessionID string) (*Entry, error) {
	data, ok, err := s.kv.Get(key(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", sessionID, err)
	}
	return &entry, nil
}

func (s *Store) put(entry *Entry) error {
	entry.UpdatedAt = s.now()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.kv.Set(key(entry.SessionID), data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *Store) all() ([]*Entry, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var entries []*Entry
	for _, k := range keys {
		if !strings.HasPrefix(k, keyPrefix) {
			continue
		}
		entry, err := s.get(strings.TrimPrefix(k, keyPrefix))
		if err != nil {
			// A corrupt entry must not hide the others
			log.Printf("Error reading snapshot %s: %v", k, err)
			continue
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func uniqueSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	sort.Ints(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
