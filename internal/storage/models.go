package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRow is a persisted session document.
type SessionRow struct {
	ID        string
	StateJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one entry of the interaction log: what the shopper said and how
// the assistant answered.
type Turn struct {
	ID         string
	SessionID  string
	CreatedAt  time.Time
	Utterance  string
	Intent     string
	ReplyKind  string
	Tier       string
	Confidence float64
	Reply      string
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
