package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoID is returned when a session operation is given an empty id.
var ErrNoID = errors.New("session id is empty")

// Store holds session contexts. Get creates an empty context on first access;
// Commit replaces the stored context atomically.
type Store interface {
	Get(ctx context.Context, id string) (Context, error)
	Commit(ctx context.Context, id string, c Context) error
	Delete(ctx context.Context, id string) error
	Expire(ctx context.Context, idleSince time.Time) (int, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	clock Clock

	mu       sync.RWMutex
	sessions map[string]Context
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(realClock{})
}

// NewMemoryStoreWithClock creates a MemoryStore with a custom clock (for testing).
func NewMemoryStoreWithClock(clock Clock) *MemoryStore {
	return &MemoryStore{clock: clock, sessions: make(map[string]Context)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Context, error) {
	if id == "" {
		return Context{}, ErrNoID
	}
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}
	return New(id, s.clock.Now()), nil
}

func (s *MemoryStore) Commit(ctx context.Context, id string, c Context) error {
	if id == "" {
		return ErrNoID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c = c.Clone()
	c.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = c
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, idleSince time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.sessions {
		if c.UpdatedAt.Before(idleSince) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
