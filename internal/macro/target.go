package macro

import (
	"context"
	"fmt"

	"github.com/tbrpg/partyhub/internal/mention"
	"github.com/tbrpg/partyhub/internal/model"
)

// loadTargetSnapshot resolves a mention into a Snapshot. A live cache
// entry — a connected character, or an NPC an SW socket has bound — is
// returned directly so handler mutations are immediately visible to the
// rest of the session; everything else is loaded fresh from the store as a
// transient snapshot.
func (d *Dispatcher) loadTargetSnapshot(ctx context.Context, partyID string, m mention.Mention) (*model.Snapshot, error) {
	if snap, ok := d.cache.Get(partyID, m.ID); ok {
		return snap, nil
	}

	if m.Type == model.TargetCharacter {
		c, err := d.store.LoadCharacter(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("loading character %s: %w", m.ID, err)
		}
		if c == nil {
			return nil, fmt.Errorf("character %s no longer exists", m.ID)
		}
		return model.SnapshotFromCharacter(c, nil), nil
	}

	n, err := d.store.LoadNPC(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading npc %s: %w", m.ID, err)
	}
	if n == nil {
		return nil, fmt.Errorf("npc %s no longer exists", m.ID)
	}
	return model.SnapshotFromNPC(n), nil
}

// dpState is the subset of Snapshot fields a revertible DP mutation touches.
type dpState struct {
	DP        int
	Status    model.CharacterStatus
	InCalling bool
}

func captureDPState(s *model.Snapshot) dpState {
	return dpState{DP: s.DP, Status: s.Status, InCalling: s.InCalling}
}

func restoreDPState(s *model.Snapshot, st dpState) {
	s.DP, s.Status, s.InCalling = st.DP, st.Status, st.InCalling
}

// writeThroughDP persists a Snapshot's current DP/Status to whichever
// durable record it came from — handlers mutate DP directly on the
// snapshot and flush to the Entity Store at each mutation point.
func (d *Dispatcher) writeThroughDP(ctx context.Context, m mention.Mention, snap *model.Snapshot) error {
	if m.Type == model.TargetCharacter {
		return d.store.UpdateCharacterDP(ctx, m.ID, snap.DP, snap.Status)
	}
	return d.store.UpdateNPCDP(ctx, m.ID, snap.DP, snap.Status)
}
