// Package store defines the narrow persistence-adapter interface the core
// consumes and a Postgres-backed implementation of it. The
// core never imports a storage technology directly — handlers and the Party
// Hub depend only on the Store interface below.
package store

import (
	"context"
	"time"

	"github.com/tbrpg/partyhub/internal/model"
)

// CombatTurn is one appended row of combat/ability resolution detail,
// persisted alongside (but distinct from) plain ChatMessage rows (//).
type CombatTurn struct {
	ID        string
	PartyID   string
	ActorID   string
	ActorName string
	Kind      string // "attack" | "ability_cast" | "initiative"
	ExtraData map[string]any
	CreatedAt time.Time
}

// Store is the persistence adapter consumed by the core. Every method that
// can fail due to store unavailability returns an error the caller maps to
// a StoreError reply; nothing about the storage technology leaks
// through this interface.
type Store interface {
	LoadCharacter(ctx context.Context, id string) (*model.Character, error)
	LoadNPC(ctx context.Context, id string) (*model.NPC, error)
	LoadParty(ctx context.Context, id string) (*model.Party, error)

	ListPartyCharacters(ctx context.Context, partyID string) ([]*model.Character, error)
	ListPartyNPCs(ctx context.Context, partyID string, includeHidden bool) ([]*model.NPC, error)
	ListAbilities(ctx context.Context, characterID string) ([]*model.Ability, error)

	AppendMessage(ctx context.Context, row *model.ChatMessage) error
	AppendCombatTurn(ctx context.Context, row *CombatTurn) error

	StartEncounter(ctx context.Context, partyID string) (string, error)
	EndEncounter(ctx context.Context, id string, restoreBudgets bool) error
	ActiveEncounter(ctx context.Context, partyID string) (*model.Encounter, error)

	UpsertInitiativeRoll(ctx context.Context, row *model.InitiativeRoll) error
	ListInitiativeRolls(ctx context.Context, encounterID string) ([]*model.InitiativeRoll, error)

	ResetAbilityBudgets(ctx context.Context, partyID string) error
	DecrementAbilityUse(ctx context.Context, abilityID string, remaining int) error

	UpdateCharacterDP(ctx context.Context, id string, newDP int, newStatus model.CharacterStatus) error
	UpdateNPCDP(ctx context.Context, id string, newDP int, newStatus model.CharacterStatus) error
}
