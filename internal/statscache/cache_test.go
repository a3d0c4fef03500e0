package statscache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbrpg/partyhub/internal/model"
)

func TestCache_BindAndUnbind_EvictsOnLastHolder(t *testing.T) {
	c := New()
	c.AddSocket("P1")

	loads := 0
	load := func() (*model.Snapshot, error) {
		loads++
		return &model.Snapshot{ID: "char1", Name: "Alice"}, nil
	}

	snap1, err := c.BindCharacter("P1", "char1", load)
	require.NoError(t, err)
	snap2, err := c.BindCharacter("P1", "char1", load)
	require.NoError(t, err)
	assert.Same(t, snap1, snap2, "second bind must reuse the cached snapshot")
	assert.Equal(t, 1, loads, "loader must only run once while a snapshot is cached")

	_, ok := c.Get("P1", "char1")
	assert.True(t, ok)

	c.UnbindCharacter("P1", "char1")
	_, ok = c.Get("P1", "char1")
	assert.True(t, ok, "still held by the second binder")

	c.UnbindCharacter("P1", "char1")
	_, ok = c.Get("P1", "char1")
	assert.False(t, ok, "must be evicted once all holders release")
}

func TestCache_RemoveSocket_DisposesPartyEntry(t *testing.T) {
	c := New()
	c.AddSocket("P1")
	assert.True(t, c.PartyExists("P1"))

	c.RemoveSocket("P1")
	assert.False(t, c.PartyExists("P1"))
}

func TestCache_FindByName_NormalizesUnderscoreAndCase(t *testing.T) {
	c := New()
	c.AddSocket("P1")
	_, err := c.BindCharacter("P1", "char1", func() (*model.Snapshot, error) {
		return &model.Snapshot{ID: "char1", Name: "Evil_Queen"}, nil
	})
	require.NoError(t, err)

	snap, ok := c.FindByName("P1", "evil queen")
	require.True(t, ok)
	assert.Equal(t, "char1", snap.ID)
}

func TestCache_ConcurrentBind_SingleLoad(t *testing.T) {
	c := New()
	c.AddSocket("P1")

	var loads int
	var mu sync.Mutex
	load := func() (*model.Snapshot, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return &model.Snapshot{ID: "char1", Name: "Alice"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.BindCharacter("P1", "char1", load)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, loads)
}

func TestCache_Mutation_IsVisibleThroughCache(t *testing.T) {
	c := New()
	c.AddSocket("P1")
	snap, err := c.BindCharacter("P1", "char1", func() (*model.Snapshot, error) {
		return &model.Snapshot{ID: "char1", Name: "Alice", DP: 10, DPMax: 10}, nil
	})
	require.NoError(t, err)

	snap.ApplyDamage(4)

	again, ok := c.Get("P1", "char1")
	require.True(t, ok)
	assert.Equal(t, 6, again.DP)
}
