//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/store"
	"github.com/tbrpg/partyhub/internal/testutil"
)

func newTestStore(t *testing.T) *store.PostgresStore {
	pool := testutil.SetupTestDB(t)
	return store.NewFromPool(pool)
}

func TestPostgresStore_CharacterRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	partyID := uuid.NewString()
	ownerID := uuid.NewString()
	charID := uuid.NewString()

	_, err := s.Pool().Exec(ctx, `INSERT INTO parties (id, type) VALUES ($1, 'story')`, partyID)
	require.NoError(t, err)

	_, err = s.Pool().Exec(ctx, `
		INSERT INTO characters
			(id, party_id, owner_user_id, name, pp, ip, sp, level, dp, dp_max,
			 edge, bap, attack_style, defense_die, status)
		VALUES ($1, $2, $3, 'Lyra', 2, 2, 2, 3, 20, 20, 2, 1, '1d6', '1d6', 'active')
	`, charID, partyID, ownerID)
	require.NoError(t, err)

	loaded, err := s.LoadCharacter(ctx, charID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "Lyra", loaded.Name)
	require.Equal(t, model.StatusActive, loaded.Status)

	require.NoError(t, s.UpdateCharacterDP(ctx, charID, -12, model.StatusUnconscious))
	reloaded, err := s.LoadCharacter(ctx, charID)
	require.NoError(t, err)
	require.Equal(t, -12, reloaded.DP)
	require.True(t, reloaded.InCalling)

	list, err := s.ListPartyCharacters(ctx, partyID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPostgresStore_EncounterLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	partyID := uuid.NewString()
	_, err := s.Pool().Exec(ctx, `INSERT INTO parties (id, type) VALUES ($1, 'standard')`, partyID)
	require.NoError(t, err)

	encID, err := s.StartEncounter(ctx, partyID)
	require.NoError(t, err)

	active, err := s.ActiveEncounter(ctx, partyID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, encID, active.ID)

	charID := uuid.NewString()
	_, err = s.Pool().Exec(ctx, `
		INSERT INTO characters
			(id, party_id, owner_user_id, name, pp, ip, sp, level, dp, dp_max,
			 edge, bap, attack_style, defense_die, status)
		VALUES ($1, $2, $3, 'Lyra', 2, 2, 2, 3, 20, 20, 2, 1, '1d6', '1d6', 'active')
	`, charID, partyID, uuid.NewString())
	require.NoError(t, err)

	require.NoError(t, s.UpsertInitiativeRoll(ctx, &model.InitiativeRoll{
		EncounterID: encID,
		CharacterID: &charID,
		DisplayName: "Lyra",
		RollResult:  8,
	}))

	rolls, err := s.ListInitiativeRolls(ctx, encID)
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	require.Equal(t, 8, rolls[0].RollResult)

	// Re-rolling the same combatant replaces, not appends.
	require.NoError(t, s.UpsertInitiativeRoll(ctx, &model.InitiativeRoll{
		EncounterID: encID,
		CharacterID: &charID,
		DisplayName: "Lyra",
		RollResult:  3,
	}))
	rolls, err = s.ListInitiativeRolls(ctx, encID)
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	require.Equal(t, 3, rolls[0].RollResult)

	require.NoError(t, s.EndEncounter(ctx, encID, true))
	active, err = s.ActiveEncounter(ctx, partyID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestPostgresStore_AppendMessageIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	partyID := uuid.NewString()
	senderID := uuid.NewString()
	_, err := s.Pool().Exec(ctx, `INSERT INTO parties (id, type) VALUES ($1, 'standard')`, partyID)
	require.NoError(t, err)

	row := &model.ChatMessage{
		PartyID:    partyID,
		SenderID:   senderID,
		SenderName: "Alice",
		Type:       model.MessageChat,
		Mode:       model.ModeIC,
		Content:    "Hello",
	}
	require.NoError(t, s.AppendMessage(ctx, row))
	require.NoError(t, s.AppendMessage(ctx, row)) // same row, same created_at -> no-op

	var count int
	require.NoError(t, s.Pool().QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE party_id = $1`, partyID).Scan(&count))
	require.Equal(t, 1, count)
}
