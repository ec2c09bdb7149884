package manifest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOne(t *testing.T, id string) *Set {
	t.Helper()
	set, err := Compile([]byte(`
capabilities:
  - id: ` + id + `
    image: ` + id + `:1
    network:
      port: 8080
`))
	require.NoError(t, err)
	return set
}

func TestStore_SwapPublishesCompleteSet(t *testing.T) {
	old := compileOne(t, "alpha")
	store := NewStore(old)

	captured := store.Current()

	next := compileOne(t, "beta")
	previous := store.Swap(next)
	assert.Same(t, old, previous)

	// A reader that captured the old set keeps seeing it.
	_, ok := captured.Get("alpha")
	assert.True(t, ok)

	// New readers see only the new set.
	_, ok = store.Get("alpha")
	assert.False(t, ok)
	_, ok = store.Get("beta")
	assert.True(t, ok)
}

func TestStore_EmptyStore(t *testing.T) {
	store := NewStore(nil)
	_, ok := store.Get("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Current().Len())
}

func TestStore_ConcurrentReadersAndSwaps(t *testing.T) {
	store := NewStore(compileOne(t, "cap"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				set := store.Current()
				// A reader always observes a complete set.
				for _, id := range set.IDs() {
					_, ok := set.Get(id)
					assert.True(t, ok)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			store.Swap(compileOne(t, "cap"))
		}
	}()
	wg.Wait()
}
