package availability

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"sync"

	"github.com/benbjohnson/clock"
)

// Persister is the durable storage behind a Store. Save receives the full
// map and must replace whatever was stored before.
type Persister interface {
	Load(ctx context.Context) (map[string]Entry, error)
	Save(ctx context.Context, entries map[string]Entry) error
}

// RefStore persists the panel reference, independently of the entries.
type RefStore interface {
	LoadRef(ctx context.Context) (PanelRef, error)
	SaveRef(ctx context.Context, ref PanelRef) error
}

// Store maps user IDs to at most one Entry each.
//
// Every mutation runs under the store mutex and is written through the
// Persister before the lock is released. If the write fails the in-memory
// change is undone (except for SweepExpired, which never resurrects expired
// entries) and the returned error wraps ErrPersistence. A nil Persister keeps
// the store in memory only.
type Store struct {
	mu        sync.Mutex
	entries   map[string]Entry
	persister Persister
	clock     clock.Clock
	lastSweep int64
}

// NewStore returns an empty store. Call Load to pull persisted state.
func NewStore(p Persister, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		entries:   make(map[string]Entry),
		persister: p,
		clock:     clk,
	}
}

// Load replaces the in-memory contents with the persisted ones.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	if loaded == nil {
		loaded = make(map[string]Entry)
	}
	s.mu.Lock()
	s.entries = loaded
	s.mu.Unlock()
	return nil
}

// Now returns the store clock as Unix seconds.
func (s *Store) Now() int64 {
	return s.clock.Now().Unix()
}

// Set declares userID available for activity during the next minutes,
// replacing any previous entry. The activity is stored as supplied.
func (s *Store) Set(ctx context.Context, userID, activity string, minutes int) (Entry, error) {
	if userID == "" {
		return Entry{}, ErrInvalidUser
	}
	if err := validateActivity(activity); err != nil {
		return Entry{}, err
	}
	if err := validateMinutes(minutes); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Activity: activity, ExpiresAt: s.Now() + int64(minutes)*60}
	prev, had := s.entries[userID]
	s.entries[userID] = e
	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(userID, prev, had)
		return Entry{}, err
	}
	return e, nil
}

// UpdateActivity changes the activity of an existing entry. The expiry is
// left untouched.
func (s *Store) UpdateActivity(ctx context.Context, userID, activity string) (Entry, error) {
	if userID == "" {
		return Entry{}, ErrInvalidUser
	}
	if err := validateActivity(activity); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[userID]
	if !ok {
		return Entry{}, ErrNoActiveEntry
	}
	e := prev
	e.Activity = activity
	s.entries[userID] = e
	if err := s.saveLocked(ctx); err != nil {
		s.entries[userID] = prev
		return Entry{}, err
	}
	return e, nil
}

// UpdateDuration recomputes the expiry of an existing entry from the current
// time; the old expiry is not extended.
func (s *Store) UpdateDuration(ctx context.Context, userID string, minutes int) (Entry, error) {
	if userID == "" {
		return Entry{}, ErrInvalidUser
	}
	if err := validateMinutes(minutes); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[userID]
	if !ok {
		return Entry{}, ErrNoActiveEntry
	}
	e := prev
	e.ExpiresAt = s.Now() + int64(minutes)*60
	s.entries[userID] = e
	if err := s.saveLocked(ctx); err != nil {
		s.entries[userID] = prev
		return Entry{}, err
	}
	return e, nil
}

// Remove deletes the entry for userID. Removing an absent entry is a no-op
// and does not touch storage. The bool reports whether anything was deleted.
func (s *Store) Remove(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[userID]
	if !ok {
		return false, nil
	}
	delete(s.entries, userID)
	if err := s.saveLocked(ctx); err != nil {
		s.entries[userID] = prev
		return false, err
	}
	return true, nil
}

// SweepExpired deletes every entry with ExpiresAt <= now and reports whether
// anything was removed. Storage is written only when something was.
func (s *Store) SweepExpired(ctx context.Context, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for id, e := range s.entries {
		if e.ExpiresAt <= now {
			delete(s.entries, id)
			removed = true
		}
	}
	if now > s.lastSweep {
		s.lastSweep = now
	}
	if !removed {
		return false, nil
	}
	return true, s.saveLocked(ctx)
}

// Get returns the entry for userID, expired or not.
func (s *Store) Get(userID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	return e, ok
}

// AllActive yields the entries that still have time left at now, without
// modifying the store. The snapshot is taken when iteration starts, in no
// particular order.
func (s *Store) AllActive(now int64) iter.Seq[Active] {
	return func(yield func(Active) bool) {
		s.mu.Lock()
		snap := make([]Active, 0, len(s.entries))
		for id, e := range s.entries {
			if rem := e.ExpiresAt - now; rem > 0 {
				snap = append(snap, Active{UserID: id, Entry: e, Remaining: rem})
			}
		}
		s.mu.Unlock()
		for _, a := range snap {
			if !yield(a) {
				return
			}
		}
	}
}

// Len returns the number of stored entries, including not-yet-swept expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LastSweep returns the timestamp passed to the most recent SweepExpired.
func (s *Store) LastSweep() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, maps.Clone(s.entries)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) restoreLocked(userID string, prev Entry, had bool) {
	if had {
		s.entries[userID] = prev
		return
	}
	delete(s.entries, userID)
}
