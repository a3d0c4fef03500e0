package encounter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbrpg/partyhub/internal/model"
)

type fakeStore struct {
	encounters map[string]*model.Encounter
	rolls      map[string][]*model.InitiativeRoll // encounterID -> rolls
	nextID     int
	resetCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		encounters: make(map[string]*model.Encounter),
		rolls:      make(map[string][]*model.InitiativeRoll),
	}
}

func (f *fakeStore) StartEncounter(ctx context.Context, partyID string) (string, error) {
	f.nextID++
	id := "enc" + string(rune('0'+f.nextID))
	f.encounters[partyID] = &model.Encounter{ID: id, PartyID: partyID, Active: true}
	return id, nil
}

func (f *fakeStore) EndEncounter(ctx context.Context, id string, restoreBudgets bool) error {
	for _, e := range f.encounters {
		if e.ID == id {
			e.Active = false
		}
	}
	return nil
}

func (f *fakeStore) ActiveEncounter(ctx context.Context, partyID string) (*model.Encounter, error) {
	e, ok := f.encounters[partyID]
	if !ok || !e.Active {
		return nil, nil
	}
	return e, nil
}

func (f *fakeStore) UpsertInitiativeRoll(ctx context.Context, row *model.InitiativeRoll) error {
	existing := f.rolls[row.EncounterID]
	for i, r := range existing {
		if r.CombatantID() == row.CombatantID() {
			existing[i] = row
			f.rolls[row.EncounterID] = existing
			return nil
		}
	}
	f.rolls[row.EncounterID] = append(existing, row)
	return nil
}

func (f *fakeStore) ListInitiativeRolls(ctx context.Context, encounterID string) ([]*model.InitiativeRoll, error) {
	return f.rolls[encounterID], nil
}

func (f *fakeStore) ResetAbilityBudgets(ctx context.Context, partyID string) error {
	f.resetCalls++
	return nil
}

func (f *fakeStore) ListPartyCharacters(ctx context.Context, partyID string) ([]*model.Character, error) {
	return nil, nil
}

type fakeCache struct {
	snaps map[string][]*model.Snapshot
}

func (f *fakeCache) AllCharacters(partyID string) []*model.Snapshot {
	return f.snaps[partyID]
}

func strPtr(s string) *string { return &s }

func TestMachine_Roll_OpensEncounterOnFirstRoll(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})

	err := m.Roll(context.Background(), "P1", RollInput{
		CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 9,
	})
	require.NoError(t, err)

	enc, err := store.ActiveEncounter(context.Background(), "P1")
	require.NoError(t, err)
	require.NotNil(t, enc)
	assert.True(t, enc.Active)
}

func TestMachine_Roll_DuplicateReplacesPriorEntry(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 5}))
	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 11}))

	enc, _ := store.ActiveEncounter(ctx, "P1")
	rolls, _ := store.ListInitiativeRolls(ctx, enc.ID)
	require.Len(t, rolls, 1)
	assert.Equal(t, 11, rolls[0].RollResult)
}

func TestMachine_Roll_ReArmsAfterEnded(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{snaps: map[string][]*model.Snapshot{}})
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 5}))
	require.NoError(t, m.End(ctx, "P1"))

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 7}))

	enc, err := store.ActiveEncounter(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, enc, "a fresh /initiative after Ended must open a new encounter rather than reject")
	assert.True(t, enc.Active)
}

func TestMachine_Show_SortsByRollThenTiebreak(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 8, BasePP: 1}))
	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c2"), DisplayName: "Bob", RollResult: 8, BasePP: 3}))
	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c3"), DisplayName: "Cara", RollResult: 12}))

	rows, err := m.Show(ctx, "P1", true, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Cara", rows[0].DisplayName)
	assert.Equal(t, "Bob", rows[1].DisplayName, "tied roll breaks by higher base PP")
	assert.Equal(t, "Alice", rows[2].DisplayName)
}

func TestMachine_Show_FiltersSilentEntriesForNonOwner(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 8}))
	require.NoError(t, m.Roll(ctx, "P1", RollInput{NPCID: strPtr("n1"), DisplayName: "Shadow", RollResult: 14, Silent: true, RolledBySW: true}))

	playerRows, err := m.Show(ctx, "P1", false, "c1")
	require.NoError(t, err)
	require.Len(t, playerRows, 1)
	assert.Equal(t, "Alice", playerRows[0].DisplayName)

	swRows, err := m.Show(ctx, "P1", true, "")
	require.NoError(t, err)
	assert.Len(t, swRows, 2)
}

func TestMachine_Show_NoActiveEncounterIsStateError(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})

	_, err := m.Show(context.Background(), "P1", true, "")
	require.Error(t, err)
	var de *model.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, model.KindState, de.Kind)
}

func TestMachine_End_ResetsBudgetsAndIsIdempotent(t *testing.T) {
	store := newFakeStore()
	ability := &model.Ability{MaxUses: 3, UsesRemaining: 0}
	cache := &fakeCache{snaps: map[string][]*model.Snapshot{
		"P1": {{ID: "c1", Level: 4, Abilities: []*model.Ability{ability}}},
	}}
	m := New(store, cache)
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 5}))
	require.NoError(t, m.End(ctx, "P1"))

	assert.Equal(t, 1, store.resetCalls)
	assert.Equal(t, 12, ability.UsesRemaining, "cache-side ability budgets restore to 3x level")

	err := m.End(ctx, "P1")
	require.Error(t, err)
	var de *model.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, model.KindState, de.Kind)
}

func TestMachine_Clear_DoesNotResetBudgets(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeCache{})
	ctx := context.Background()

	require.NoError(t, m.Roll(ctx, "P1", RollInput{CharacterID: strPtr("c1"), DisplayName: "Alice", RollResult: 5}))
	require.NoError(t, m.Clear(ctx, "P1"))

	assert.Equal(t, 0, store.resetCalls)
}
