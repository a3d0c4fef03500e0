// Package encounter implements the per-party initiative/encounter state
// machine: none -> open -> ended, an ordered
// roster of InitiativeRolls, role-filtered views, and ability-budget reset
// on end.
package encounter

import (
	"context"
	"fmt"
	"sort"

	"github.com/tbrpg/partyhub/internal/model"
)

// Store is the narrow slice of the persistence adapter this package needs.
type Store interface {
	StartEncounter(ctx context.Context, partyID string) (string, error)
	EndEncounter(ctx context.Context, id string, restoreBudgets bool) error
	ActiveEncounter(ctx context.Context, partyID string) (*model.Encounter, error)
	UpsertInitiativeRoll(ctx context.Context, row *model.InitiativeRoll) error
	ListInitiativeRolls(ctx context.Context, encounterID string) ([]*model.InitiativeRoll, error)
	ResetAbilityBudgets(ctx context.Context, partyID string) error
	ListPartyCharacters(ctx context.Context, partyID string) ([]*model.Character, error)
}

// CacheWriter is the Stats Cache slice needed to keep cached ability
// budgets consistent with the store after an `/initiative end` reset.
type CacheWriter interface {
	AllCharacters(partyID string) []*model.Snapshot
}

// Machine drives the state machine for every party. It holds no per-party
// state itself beyond what the Store already persists; callers serialize
// access per party via the Party Hub's single-owner actor.
type Machine struct {
	store Store
	cache CacheWriter
}

// New builds a Machine over the given store and cache.
func New(store Store, cache CacheWriter) *Machine {
	return &Machine{store: store, cache: cache}
}

// RollInput is one combatant's initiative entry to register.
type RollInput struct {
	CharacterID *string
	NPCID       *string
	DisplayName string
	RollResult  int
	Silent      bool
	RolledBySW  bool
	BasePP      int
	BaseIP      int
	BaseSP      int
}

// Roll registers an initiative entry for partyID, opening a new encounter if
// none is active — including re-arming one if the last encounter already
// Ended — a fresh `/initiative` after an encounter ends starts the next
// fight rather than rejecting. A duplicate roll for the same combatant
// within an Open encounter replaces the prior entry (latest wins).
func (m *Machine) Roll(ctx context.Context, partyID string, in RollInput) error {
	if in.CharacterID == nil && in.NPCID == nil {
		return fmt.Errorf("encounter: roll must target exactly one of character or npc")
	}

	enc, err := m.store.ActiveEncounter(ctx, partyID)
	if err != nil {
		return fmt.Errorf("loading active encounter for party %s: %w", partyID, err)
	}

	var encounterID string
	if enc != nil && enc.Active {
		encounterID = enc.ID
	} else {
		encounterID, err = m.store.StartEncounter(ctx, partyID)
		if err != nil {
			return fmt.Errorf("starting encounter for party %s: %w", partyID, err)
		}
	}

	row := &model.InitiativeRoll{
		EncounterID: encounterID,
		CharacterID: in.CharacterID,
		NPCID:       in.NPCID,
		DisplayName: in.DisplayName,
		RollResult:  in.RollResult,
		Silent:      in.Silent,
		RolledBySW:  in.RolledBySW,
		BasePP:      in.BasePP,
		BaseIP:      in.BaseIP,
		BaseSP:      in.BaseSP,
	}
	if err := m.store.UpsertInitiativeRoll(ctx, row); err != nil {
		return fmt.Errorf("upserting initiative roll for party %s: %w", partyID, err)
	}
	return nil
}

// Row is one line of a rendered `/initiative show` view.
type Row struct {
	CombatantID string
	DisplayName string
	RollResult  int
	IsCharacter bool
}

// Show returns the turn order for partyID sorted by roll_result descending,
// broken by base PP, then IP, then SP, then insertion order. For a
// non-SW viewer, silent entries not owned by the viewer are omitted; the
// caller is responsible for NPC visibility filtering upstream since that
// requires the NPC's visible_to_players flag, which this package does not
// load.
func (m *Machine) Show(ctx context.Context, partyID string, viewerIsSW bool, viewerCharacterID string) ([]Row, error) {
	enc, err := m.store.ActiveEncounter(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("loading active encounter for party %s: %w", partyID, err)
	}
	if enc == nil {
		return nil, model.NewDomainError(model.KindState, "no active encounter for this party")
	}

	rolls, err := m.store.ListInitiativeRolls(ctx, enc.ID)
	if err != nil {
		return nil, fmt.Errorf("listing initiative rolls for encounter %s: %w", enc.ID, err)
	}
	if len(rolls) == 0 {
		return nil, model.NewDomainError(model.KindState, "no initiative entries yet")
	}

	visible := make([]*model.InitiativeRoll, 0, len(rolls))
	for _, r := range rolls {
		if !viewerIsSW && r.Silent && r.CombatantID() != viewerCharacterID {
			continue
		}
		visible = append(visible, r)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if a.RollResult != b.RollResult {
			return a.RollResult > b.RollResult
		}
		if a.BasePP != b.BasePP {
			return a.BasePP > b.BasePP
		}
		if a.BaseIP != b.BaseIP {
			return a.BaseIP > b.BaseIP
		}
		return a.BaseSP > b.BaseSP
	})

	out := make([]Row, 0, len(visible))
	for _, r := range visible {
		out = append(out, Row{
			CombatantID: r.CombatantID(),
			DisplayName: r.DisplayName,
			RollResult:  r.RollResult,
			IsCharacter: r.IsCharacter(),
		})
	}
	return out, nil
}

// End deactivates the party's active encounter and restores every current
// party member's ability budgets to 3x their level. Calling End with no
// active encounter is an idempotent
// no-op that surfaces a private StateError.
func (m *Machine) End(ctx context.Context, partyID string) error {
	enc, err := m.store.ActiveEncounter(ctx, partyID)
	if err != nil {
		return fmt.Errorf("loading active encounter for party %s: %w", partyID, err)
	}
	if enc == nil {
		return model.NewDomainError(model.KindState, "no active encounter to end")
	}

	if err := m.store.EndEncounter(ctx, enc.ID, true); err != nil {
		return fmt.Errorf("ending encounter %s: %w", enc.ID, err)
	}
	if err := m.store.ResetAbilityBudgets(ctx, partyID); err != nil {
		return fmt.Errorf("resetting ability budgets for party %s: %w", partyID, err)
	}

	for _, snap := range m.cache.AllCharacters(partyID) {
		snap.RestoreAbilityBudgets()
	}
	return nil
}

// Clear deactivates the party's active encounter without restoring ability
// budgets ("Open -> Ended via /initiative clear").
func (m *Machine) Clear(ctx context.Context, partyID string) error {
	enc, err := m.store.ActiveEncounter(ctx, partyID)
	if err != nil {
		return fmt.Errorf("loading active encounter for party %s: %w", partyID, err)
	}
	if enc == nil {
		return model.NewDomainError(model.KindState, "no active encounter to clear")
	}
	if err := m.store.EndEncounter(ctx, enc.ID, false); err != nil {
		return fmt.Errorf("clearing encounter %s: %w", enc.ID, err)
	}
	return nil
}
