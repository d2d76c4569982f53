package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps events and snapshots in process memory. Used by tests
// and single-node development runs; contents do not survive a restart.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[string][]Record
	snapshots map[string]Snapshot
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string][]Record),
		snapshots: make(map[string]Snapshot),
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, docID string, rec Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := int64(len(s.events[docID]) + 1)
	rec.LogPos = pos
	s.events[docID] = append(s.events[docID], rec)
	return pos, nil
}

func (s *MemoryStore) LoadLatestSnapshot(_ context.Context, docID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[docID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *MemoryStore) ReplayEventsSince(_ context.Context, docID string, logPos int64) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.events[docID]
	if logPos >= int64(len(all)) {
		return nil, nil
	}
	out := make([]Record, len(all[logPos:]))
	copy(out, all[logPos:])
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, docID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[docID] = snap
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
