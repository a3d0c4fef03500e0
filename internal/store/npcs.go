package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tbrpg/partyhub/internal/model"
)

// LoadNPC loads an NPC by id. Returns nil, nil if not found.
func (s *PostgresStore) LoadNPC(ctx context.Context, id string) (*model.NPC, error) {
	const query = `
		SELECT id, party_id, creator_user_id, name, pp, ip, sp, level,
		       dp, dp_max, edge, bap, attack_style, defense_die, status,
		       in_calling, weapon_bonus, armor_bonus, visible_to_players, type
		FROM npcs
		WHERE id = $1
	`

	var n model.NPC
	var status, npcType string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.PartyID, &n.CreatorUserID, &n.Name, &n.PP, &n.IP, &n.SP, &n.Level,
		&n.DP, &n.DPMax, &n.Edge, &n.BAP, &n.AttackStyle, &n.DefenseDie, &status,
		&n.InCalling, &n.WeaponBonus, &n.ArmorBonus, &n.VisibleToPlayers, &npcType,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying npc %s: %w", id, err)
	}
	n.Status = model.CharacterStatus(status)
	n.Type = model.NPCType(npcType)
	return &n, nil
}

// ListPartyNPCs loads every NPC bound to partyID. When includeHidden is
// false, NPCs with visible_to_players=false are excluded at the query level
// — the Mention Resolver and /who never even see a hidden NPC's name for a
// player sender (priority 3, visibility boundary).
func (s *PostgresStore) ListPartyNPCs(ctx context.Context, partyID string, includeHidden bool) ([]*model.NPC, error) {
	query := `
		SELECT id, party_id, creator_user_id, name, pp, ip, sp, level,
		       dp, dp_max, edge, bap, attack_style, defense_die, status,
		       in_calling, weapon_bonus, armor_bonus, visible_to_players, type
		FROM npcs
		WHERE party_id = $1
	`
	if !includeHidden {
		query += ` AND visible_to_players = true`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, partyID)
	if err != nil {
		return nil, fmt.Errorf("listing npcs for party %s: %w", partyID, err)
	}
	defer rows.Close()

	var out []*model.NPC
	for rows.Next() {
		var n model.NPC
		var status, npcType string
		if err := rows.Scan(
			&n.ID, &n.PartyID, &n.CreatorUserID, &n.Name, &n.PP, &n.IP, &n.SP, &n.Level,
			&n.DP, &n.DPMax, &n.Edge, &n.BAP, &n.AttackStyle, &n.DefenseDie, &status,
			&n.InCalling, &n.WeaponBonus, &n.ArmorBonus, &n.VisibleToPlayers, &npcType,
		); err != nil {
			return nil, fmt.Errorf("scanning npc row: %w", err)
		}
		n.Status = model.CharacterStatus(status)
		n.Type = model.NPCType(npcType)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating npcs for party %s: %w", partyID, err)
	}
	return out, nil
}

// UpdateNPCDP write-throughs a DP/status mutation to an NPC target of an
// attack or ability.
func (s *PostgresStore) UpdateNPCDP(ctx context.Context, id string, newDP int, newStatus model.CharacterStatus) error {
	const query = `UPDATE npcs SET dp = $2, status = $3, in_calling = in_calling OR $2 <= -10 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, newDP, string(newStatus))
	if err != nil {
		return fmt.Errorf("updating dp for npc %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("npc %s not found", id)
	}
	return nil
}
