package model

import "time"

// Encounter is the durable record of a party's turn-order lifecycle.
type Encounter struct {
	ID        string
	PartyID   string
	Active    bool
	StartedAt time.Time
	EndedAt   *time.Time
}

// InitiativeRoll is one combatant's turn-order entry within an Encounter.
// Exactly one of CharacterID/NPCID is set.
type InitiativeRoll struct {
	EncounterID string
	CharacterID *string
	NPCID       *string
	DisplayName string
	RollResult  int

	Silent     bool
	RolledBySW bool

	// Tiebreak fields, captured at roll time so /initiative show can sort
	// without a further store round-trip.
	BasePP, BaseIP, BaseSP int
}

// CombatantID returns whichever of CharacterID/NPCID is set.
func (r *InitiativeRoll) CombatantID() string {
	if r.CharacterID != nil {
		return *r.CharacterID
	}
	if r.NPCID != nil {
		return *r.NPCID
	}
	return ""
}

// IsCharacter reports whether this roll belongs to a Character (vs an NPC).
func (r *InitiativeRoll) IsCharacter() bool {
	return r.CharacterID != nil
}
