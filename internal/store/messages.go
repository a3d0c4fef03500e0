package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tbrpg/partyhub/internal/model"
)

// contentHash computes the idempotency key component the unique index
// (party_id, sender_id, created_at, content_hash) relies on.
func contentHash(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AppendMessage persists a ChatMessage row. A retried append with identical
// (party, sender, timestamp, content) is a no-op thanks to the unique index
// — ON CONFLICT DO NOTHING makes that explicit rather than surfacing a
// constraint-violation error to the caller.
func (s *PostgresStore) AppendMessage(ctx context.Context, row *model.ChatMessage) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	var extra []byte
	if row.ExtraData != nil {
		var err error
		extra, err = json.Marshal(row.ExtraData)
		if err != nil {
			return fmt.Errorf("marshaling extra_data for message: %w", err)
		}
	}

	const query = `
		INSERT INTO messages
			(id, party_id, campaign_id, sender_id, sender_name, type, mode,
			 content, extra_data, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (party_id, sender_id, created_at, content_hash) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		row.ID, row.PartyID, nullableString(row.CampaignID), row.SenderID, row.SenderName,
		string(row.Type), string(row.Mode), row.Content, extra, contentHash(row.Content), row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending message for party %s: %w", row.PartyID, err)
	}
	return nil
}

// AppendCombatTurn persists a combat/ability-cast/initiative detail row,
// distinct from the plain chat log.
func (s *PostgresStore) AppendCombatTurn(ctx context.Context, row *CombatTurn) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	var extra []byte
	if row.ExtraData != nil {
		var err error
		extra, err = json.Marshal(row.ExtraData)
		if err != nil {
			return fmt.Errorf("marshaling extra_data for combat turn: %w", err)
		}
	}

	const query = `
		INSERT INTO combat_turns (id, party_id, actor_id, actor_name, kind, extra_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		row.ID, row.PartyID, row.ActorID, row.ActorName, row.Kind, extra, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending combat turn for party %s: %w", row.PartyID, err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
