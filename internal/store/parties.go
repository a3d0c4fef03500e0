package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tbrpg/partyhub/internal/model"
)

// LoadParty loads a party by id. Returns nil, nil if not found.
func (s *PostgresStore) LoadParty(ctx context.Context, id string) (*model.Party, error) {
	var p model.Party
	var swID *string
	var partyType string
	err := s.pool.QueryRow(ctx,
		`SELECT id, story_weaver_user_id, type FROM parties WHERE id = $1`, id,
	).Scan(&p.ID, &swID, &partyType)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying party %s: %w", id, err)
	}
	p.StoryWeaverUserID = swID
	p.Type = model.PartyType(partyType)
	return &p, nil
}
