package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tbrpg/partyhub/internal/model"
)

// StartEncounter creates a new active Encounter for partyID and returns its
// id (lifecycle: "created on the first /initiative roll for a party").
func (s *PostgresStore) StartEncounter(ctx context.Context, partyID string) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO encounters (id, party_id, active) VALUES ($1, $2, true)`
	if _, err := s.pool.Exec(ctx, query, id, partyID); err != nil {
		return "", fmt.Errorf("starting encounter for party %s: %w", partyID, err)
	}
	return id, nil
}

// EndEncounter deactivates an encounter and stamps ended_at. restoreBudgets
// is accepted for interface symmetry but the actual budget reset
// is a separate ResetAbilityBudgets call driven by encounter.Machine.End —
// this method only flips the encounter's own state.
func (s *PostgresStore) EndEncounter(ctx context.Context, id string, restoreBudgets bool) error {
	const query = `UPDATE encounters SET active = false, ended_at = now() WHERE id = $1 AND active = true`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ending encounter %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("encounter %s not found or already inactive", id)
	}
	return nil
}

// ActiveEncounter returns the party's currently active encounter, or
// nil, nil if none. Only one encounter per party is active at a time.
func (s *PostgresStore) ActiveEncounter(ctx context.Context, partyID string) (*model.Encounter, error) {
	const query = `
		SELECT id, party_id, active, started_at, ended_at
		FROM encounters
		WHERE party_id = $1 AND active = true
		ORDER BY started_at DESC
		LIMIT 1
	`
	var e model.Encounter
	err := s.pool.QueryRow(ctx, query, partyID).Scan(&e.ID, &e.PartyID, &e.Active, &e.StartedAt, &e.EndedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active encounter for party %s: %w", partyID, err)
	}
	return &e, nil
}

// UpsertInitiativeRoll inserts a combatant's roll, or replaces it if one
// already exists for that combatant in this encounter — duplicates for
// the same combatant replace the prior roll, latest wins.
func (s *PostgresStore) UpsertInitiativeRoll(ctx context.Context, row *model.InitiativeRoll) error {
	const query = `
		INSERT INTO initiative_rolls
			(encounter_id, character_id, npc_id, display_name, roll_result,
			 silent, rolled_by_sw, base_pp, base_ip, base_sp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (encounter_id, COALESCE(character_id, npc_id)) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			roll_result  = EXCLUDED.roll_result,
			silent       = EXCLUDED.silent,
			rolled_by_sw = EXCLUDED.rolled_by_sw,
			base_pp      = EXCLUDED.base_pp,
			base_ip      = EXCLUDED.base_ip,
			base_sp      = EXCLUDED.base_sp,
			created_at   = now()
	`
	_, err := s.pool.Exec(ctx, query,
		row.EncounterID, row.CharacterID, row.NPCID, row.DisplayName, row.RollResult,
		row.Silent, row.RolledBySW, row.BasePP, row.BaseIP, row.BaseSP,
	)
	if err != nil {
		return fmt.Errorf("upserting initiative roll for encounter %s: %w", row.EncounterID, err)
	}
	return nil
}

// ListInitiativeRolls returns every roll registered for encounterID, in
// insertion order (the encounter.Machine does the role-filtered sort).
func (s *PostgresStore) ListInitiativeRolls(ctx context.Context, encounterID string) ([]*model.InitiativeRoll, error) {
	const query = `
		SELECT character_id, npc_id, display_name, roll_result, silent,
		       rolled_by_sw, base_pp, base_ip, base_sp
		FROM initiative_rolls
		WHERE encounter_id = $1
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, encounterID)
	if err != nil {
		return nil, fmt.Errorf("listing initiative rolls for encounter %s: %w", encounterID, err)
	}
	defer rows.Close()

	var out []*model.InitiativeRoll
	for rows.Next() {
		r := &model.InitiativeRoll{EncounterID: encounterID}
		if err := rows.Scan(
			&r.CharacterID, &r.NPCID, &r.DisplayName, &r.RollResult, &r.Silent,
			&r.RolledBySW, &r.BasePP, &r.BaseIP, &r.BaseSP,
		); err != nil {
			return nil, fmt.Errorf("scanning initiative roll row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating initiative rolls for encounter %s: %w", encounterID, err)
	}
	return out, nil
}
