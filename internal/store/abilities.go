package store

import (
	"context"
	"fmt"

	"github.com/tbrpg/partyhub/internal/model"
)

// ListAbilities loads every ability owned by characterID, ordered by slot —
// installed into the Stats Cache snapshot at connect and consumed by the
// per-character macro lookup.
func (s *PostgresStore) ListAbilities(ctx context.Context, characterID string) ([]*model.Ability, error) {
	const query = `
		SELECT id, character_id, slot, type, display_name, macro_command,
		       power_source, effect, die, aoe, max_uses, uses_remaining
		FROM abilities
		WHERE character_id = $1
		ORDER BY slot
	`

	rows, err := s.pool.Query(ctx, query, characterID)
	if err != nil {
		return nil, fmt.Errorf("listing abilities for character %s: %w", characterID, err)
	}
	defer rows.Close()

	var out []*model.Ability
	for rows.Next() {
		var a model.Ability
		var abilityType, effect string
		if err := rows.Scan(
			&a.ID, &a.CharacterID, &a.Slot, &abilityType, &a.DisplayName, &a.MacroCommand,
			&a.PowerSource, &effect, &a.Die, &a.AoE, &a.MaxUses, &a.UsesRemaining,
		); err != nil {
			return nil, fmt.Errorf("scanning ability row: %w", err)
		}
		a.Type = model.AbilityType(abilityType)
		a.Effect = model.EffectType(effect)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating abilities for character %s: %w", characterID, err)
	}
	return out, nil
}

// DecrementAbilityUse write-throughs a successful cast's budget decrement
//. remaining is the authoritative post-decrement
// value computed by the cache snapshot, so this is a plain set, not a
// `remaining - 1` UPDATE — avoids a lost-update race with a concurrent
// reset from `/initiative end` (both paths go through the single party
// actor anyway, but the write stays idempotent given identical inputs).
func (s *PostgresStore) DecrementAbilityUse(ctx context.Context, abilityID string, remaining int) error {
	const query = `UPDATE abilities SET uses_remaining = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, abilityID, remaining)
	if err != nil {
		return fmt.Errorf("decrementing ability %s: %w", abilityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ability %s not found", abilityID)
	}
	return nil
}

// ResetAbilityBudgets restores uses_remaining = 3 x level for every ability
// owned by a character currently a member of partyID — current members
// only, not every historical character record (see DESIGN.md).
func (s *PostgresStore) ResetAbilityBudgets(ctx context.Context, partyID string) error {
	const query = `
		UPDATE abilities a
		SET max_uses = $2 * c.level,
		    uses_remaining = $2 * c.level
		FROM characters c
		WHERE a.character_id = c.id AND c.party_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, partyID, model.AbilityMaxUsesPerLevel); err != nil {
		return fmt.Errorf("resetting ability budgets for party %s: %w", partyID, err)
	}
	return nil
}
