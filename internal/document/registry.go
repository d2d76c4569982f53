package document

import (
	"context"
	"sync"

	"collabtext/internal/notify"
	"collabtext/internal/storage"
)

// Registry lazily creates and indexes one coordinator per document id.
// Concurrent first access for the same id yields a single coordinator;
// creation (which recovers from the store) happens under the lock.
type Registry struct {
	store storage.EventStore
	pub   notify.Publisher
	opts  Options

	mu     sync.Mutex
	docs   map[string]*Coordinator
	closed bool
}

func NewRegistry(store storage.EventStore, pub notify.Publisher, opts Options) *Registry {
	return &Registry{
		store: store,
		pub:   pub,
		opts:  opts,
		docs:  make(map[string]*Coordinator),
	}
}

// Get returns the coordinator for docID, recovering and starting it on
// first access. A failed recovery is not cached; the next Get retries.
func (r *Registry) Get(ctx context.Context, docID string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.docs[docID]; ok {
		return c, nil
	}
	c, err := NewCoordinator(ctx, docID, r.store, r.pub, r.opts)
	if err != nil {
		return nil, err
	}
	r.docs[docID] = c
	return c, nil
}

// Close stops every coordinator and rejects further lookups.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, c := range r.docs {
		c.Close()
	}
	r.docs = nil
}
