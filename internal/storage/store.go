// Package storage persists document events and snapshots. The coordinator
// only sees the EventStore interface; backends are pluggable (in-memory for
// tests, Postgres or bbolt for durable deployments).
package storage

import (
	"context"
	"errors"

	"collabtext/internal/ot"
)

// ErrAppendFailed wraps backend failures on the durable append path so
// callers can classify them as retryable.
var ErrAppendFailed = errors.New("storage: append failed")

// Record is one committed operation, immutable once appended. LogPos is
// assigned by the store: ignored on append, populated on replay.
type Record struct {
	Op            ot.Operation
	NewVersion    int
	ClientID      string
	ClientVersion int
	RequestID     string
	LogPos        int64
}

// Snapshot is a point-in-time capture of a document, keyed by the log
// position of the last event folded into it.
type Snapshot struct {
	Content string
	Version int
	LogPos  int64
}

// EventStore is the durable log and snapshot collaborator. AppendEvent must
// not return before the record is durable; replay returns records in
// ascending log order.
type EventStore interface {
	// AppendEvent durably appends rec and returns its log position.
	AppendEvent(ctx context.Context, docID string, rec Record) (int64, error)

	// LoadLatestSnapshot returns the newest snapshot, or nil if none exists.
	LoadLatestSnapshot(ctx context.Context, docID string) (*Snapshot, error)

	// ReplayEventsSince returns all records with log position > logPos,
	// ascending.
	ReplayEventsSince(ctx context.Context, docID string, logPos int64) ([]Record, error)

	// SaveSnapshot stores snap, replacing any older snapshot.
	SaveSnapshot(ctx context.Context, docID string, snap Snapshot) error

	// Close releases backend resources.
	Close() error
}
