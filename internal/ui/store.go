package ui

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type storeEntry struct {
	model    *ViewModel
	lastSeen time.Time
}

// Store keeps one ViewModel per session and forgets sessions idle for longer than ttl.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	initial View
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewStore constructs a session store. A positive ttl starts a background
// pruner that runs until Stop is called.
func NewStore(initial View, ttl time.Duration) *Store {
	s := &Store{
		entries: make(map[string]*storeEntry),
		initial: initial,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if ttl > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}

	return s
}

// Stop halts the background pruner and waits for it to exit. The store stays
// usable afterwards.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Store) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pruneStale()
		}
	}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id looks like an identifier minted by NewSessionID.
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// Get returns the view model for id, creating it on first use.
func (s *Store) Get(id string) *ViewModel {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		entry = &storeEntry{model: NewViewModel(id, s.initial)}
		s.entries[id] = entry
	}
	entry.lastSeen = now

	return entry.model
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) pruneStale() {
	if s.ttl <= 0 {
		return
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if now.Sub(entry.lastSeen) > s.ttl {
			delete(s.entries, id)
		}
	}
}
