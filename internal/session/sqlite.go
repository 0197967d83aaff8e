package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

// DocumentStore is the persistence the SQLiteStore needs. Implemented by
// storage.Store.
type DocumentStore interface {
	SaveSession(ctx context.Context, id, stateJSON string, at time.Time) error
	GetSession(ctx context.Context, id string) (storage.SessionRow, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists each session as one JSON document, so a commit is a
// single upsert and therefore atomic.
type SQLiteStore struct {
	docs  DocumentStore
	clock Clock
}

// NewSQLiteStore wraps a document store.
func NewSQLiteStore(docs DocumentStore) *SQLiteStore {
	return &SQLiteStore{docs: docs, clock: realClock{}}
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Context, error) {
	if id == "" {
		return Context{}, ErrNoID
	}
	row, err := s.docs.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return New(id, s.clock.Now()), nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("loading session: %w", err)
	}

	var c Context
	if err := json.Unmarshal([]byte(row.StateJSON), &c); err != nil {
		return Context{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	c.ID = id
	return c, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, id string, c Context) error {
	if id == "" {
		return ErrNoID
	}
	c.ID = id
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.clock.Now()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", id, err)
	}
	return s.docs.SaveSession(ctx, id, string(data), c.UpdatedAt)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	err := s.docs.DeleteSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (s *SQLiteStore) Expire(ctx context.Context, idleSince time.Time) (int, error) {
	return s.docs.DeleteSessionsBefore(ctx, idleSince)
}
