package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tbrpg/partyhub/internal/model"
)

// LoadCharacter loads a character by id. Returns nil, nil if not found
// (connect treats a missing character as "admit unbound", not an error).
func (s *PostgresStore) LoadCharacter(ctx context.Context, id string) (*model.Character, error) {
	const query = `
		SELECT id, party_id, owner_user_id, name, pp, ip, sp, level,
		       dp, dp_max, edge, bap, attack_style, defense_die, status,
		       in_calling, weapon_bonus, armor_bonus
		FROM characters
		WHERE id = $1
	`

	var c model.Character
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.PartyID, &c.OwnerUserID, &c.Name, &c.PP, &c.IP, &c.SP, &c.Level,
		&c.DP, &c.DPMax, &c.Edge, &c.BAP, &c.AttackStyle, &c.DefenseDie, &status,
		&c.InCalling, &c.WeaponBonus, &c.ArmorBonus,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying character %s: %w", id, err)
	}
	c.Status = model.CharacterStatus(status)
	return &c, nil
}

// ListPartyCharacters loads every character bound to partyID, ordered by
// name — consumed by the mention resolver's store lookup and by /who.
func (s *PostgresStore) ListPartyCharacters(ctx context.Context, partyID string) ([]*model.Character, error) {
	const query = `
		SELECT id, party_id, owner_user_id, name, pp, ip, sp, level,
		       dp, dp_max, edge, bap, attack_style, defense_die, status,
		       in_calling, weapon_bonus, armor_bonus
		FROM characters
		WHERE party_id = $1
		ORDER BY name
	`

	rows, err := s.pool.Query(ctx, query, partyID)
	if err != nil {
		return nil, fmt.Errorf("listing characters for party %s: %w", partyID, err)
	}
	defer rows.Close()

	var out []*model.Character
	for rows.Next() {
		var c model.Character
		var status string
		if err := rows.Scan(
			&c.ID, &c.PartyID, &c.OwnerUserID, &c.Name, &c.PP, &c.IP, &c.SP, &c.Level,
			&c.DP, &c.DPMax, &c.Edge, &c.BAP, &c.AttackStyle, &c.DefenseDie, &status,
			&c.InCalling, &c.WeaponBonus, &c.ArmorBonus,
		); err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		c.Status = model.CharacterStatus(status)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating characters for party %s: %w", partyID, err)
	}
	return out, nil
}

// UpdateCharacterDP writes through a DP/status mutation made by a combat or
// ability handler; cached mutations are flushed here at each mutation
// point.
func (s *PostgresStore) UpdateCharacterDP(ctx context.Context, id string, newDP int, newStatus model.CharacterStatus) error {
	const query = `UPDATE characters SET dp = $2, status = $3, in_calling = in_calling OR $2 <= -10 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, newDP, string(newStatus))
	if err != nil {
		return fmt.Errorf("updating dp for character %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("character %s not found", id)
	}
	return nil
}
