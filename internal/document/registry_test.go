package document_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/document"
	"collabtext/internal/notify"
	"collabtext/internal/storage"
)

func TestRegistrySingleCreationUnderConcurrency(t *testing.T) {
	r := document.NewRegistry(storage.NewMemoryStore(), notify.NopPublisher{}, document.Options{})
	defer r.Close()

	const callers = 16
	coords := make([]*document.Coordinator, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.Get(context.Background(), "shared-doc")
			assert.NoError(t, err)
			coords[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, coords[0], coords[i])
	}
}

func TestRegistryIsolatesDocuments(t *testing.T) {
	r := document.NewRegistry(storage.NewMemoryStore(), notify.NopPublisher{}, document.Options{})
	defer r.Close()

	a, err := r.Get(context.Background(), "doc-a")
	require.NoError(t, err)
	b, err := r.Get(context.Background(), "doc-b")
	require.NoError(t, err)
	require.NotSame(t, a, b)

	mustSubmit(t, a, insertOp(t, 0, "only in a"), "alice", 0)

	st, err := b.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, document.State{Content: "", Version: 0}, st)
}

func TestRegistryCloseStopsCoordinators(t *testing.T) {
	r := document.NewRegistry(storage.NewMemoryStore(), notify.NopPublisher{}, document.Options{})

	c, err := r.Get(context.Background(), "doc")
	require.NoError(t, err)

	r.Close()

	_, err = r.Get(context.Background(), "doc")
	require.ErrorIs(t, err, document.ErrClosed)

	_, err = c.GetState(context.Background())
	require.ErrorIs(t, err, document.ErrClosed)
}
