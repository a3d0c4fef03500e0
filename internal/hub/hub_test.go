package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbrpg/partyhub/internal/config"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/statscache"
)

func newTestHub(st *fakeStore) (*Hub, *statscache.Cache) {
	cache := statscache.New()
	return New(st, cache, nil, StaticAuthResolver{}, config.DefaultServer()), cache
}

func TestHub_BootstrapCache_BindsCharacter(t *testing.T) {
	st := newFakeStore()
	st.characters["c1"] = &model.Character{
		ID: "c1", PartyID: "P1", Name: "Alice",
		PP: 2, IP: 2, SP: 2, Level: 1, DP: 20, DPMax: 20, Edge: 1,
		AttackStyle: "1d4", DefenseDie: "1d6", Status: model.StatusActive,
	}
	h, cache := newTestHub(st)

	name, bound := h.bootstrapCache(context.Background(), "P1", "c1", "u1")
	assert.Equal(t, "c1", bound)
	assert.Equal(t, "Alice", name)

	snap, ok := cache.Get("P1", "c1")
	require.True(t, ok)
	assert.Equal(t, model.TargetCharacter, snap.Type)
}

func TestHub_BootstrapCache_FallsBackToNPC(t *testing.T) {
	st := newFakeStore()
	st.npcs["n1"] = &model.NPC{
		ID: "n1", PartyID: "P1", Name: "Goblin King",
		PP: 2, IP: 2, SP: 2, Level: 3, DP: 15, DPMax: 15, Edge: 1,
		AttackStyle: "2d4", DefenseDie: "1d6", Status: model.StatusActive,
		VisibleToPlayers: false, Type: model.NPCTypeHostile,
	}
	h, cache := newTestHub(st)

	name, bound := h.bootstrapCache(context.Background(), "P1", "n1", "sw1")
	assert.Equal(t, "n1", bound)
	assert.Equal(t, "Goblin King", name)

	snap, ok := cache.Get("P1", "n1")
	require.True(t, ok)
	assert.Equal(t, model.TargetNPC, snap.Type)
}

func TestHub_BootstrapCache_UnknownOrForeignIDAdmitsUnbound(t *testing.T) {
	st := newFakeStore()
	st.characters["c1"] = &model.Character{ID: "c1", PartyID: "P2", Name: "Elsewhere"}
	st.npcs["n1"] = &model.NPC{ID: "n1", PartyID: "P2", Name: "AlsoElsewhere"}
	h, cache := newTestHub(st)

	for _, id := range []string{"ghost", "c1", "n1"} {
		name, bound := h.bootstrapCache(context.Background(), "P1", id, "u1")
		assert.Empty(t, bound)
		assert.Equal(t, "u1", name, "the user id stands in as the display name")
	}
	assert.False(t, cache.PartyExists("P1"))
}
