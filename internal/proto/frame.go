// Package proto defines the JSON frame shapes exchanged over the party
// WebSocket session. Inbound frames are decoded into Inbound;
// outbound frames are one of the concrete *Frame types below, each
// marshaled with its own "type" discriminator.
package proto

import "time"

// Inbound is the single shape every inbound client frame decodes into.
type Inbound struct {
	Type        string `json:"type"`
	Actor       string `json:"actor"`
	Text        string `json:"text"`
	Mode        string `json:"mode,omitempty"`
	Context     string `json:"context,omitempty"`
	EncounterID string `json:"encounter_id,omitempty"`
}

// ChatFrame is a plain chat broadcast.
type ChatFrame struct {
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Text      string    `json:"text"`
	Mode      string    `json:"mode"`
	PartyID   string    `json:"party_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChat builds a ChatFrame, defaulting Mode to "IC" when unset.
func NewChat(actor, text, mode, partyID string, ts time.Time) ChatFrame {
	if mode == "" {
		mode = "IC"
	}
	return ChatFrame{Type: "chat", Actor: actor, Text: text, Mode: mode, PartyID: partyID, Timestamp: ts}
}

// SystemFrame carries an error or a join/leave/state notice. Unicast for
// errors, broadcast for lifecycle notices.
type SystemFrame struct {
	Type          string    `json:"type"`
	Text          string    `json:"text"`
	PartyID       string    `json:"party_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewSystem builds a SystemFrame.
func NewSystem(text, partyID string, ts time.Time) SystemFrame {
	return SystemFrame{Type: "system", Text: text, PartyID: partyID, Timestamp: ts}
}

// DiceRollFrame reports a /roll evaluation.
type DiceRollFrame struct {
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Dice      string    `json:"dice"`
	Breakdown []int     `json:"breakdown"`
	Modifier  int       `json:"modifier"`
	Result    int       `json:"result"`
	Text      string    `json:"text"`
	PartyID   string    `json:"party_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StatRollFrame reports a /pp, /ip, or /sp check — a dice_roll with the
// stat letter attached.
type StatRollFrame struct {
	DiceRollFrame
	Stat string `json:"stat"`
}

// InitiativeFrame reports a registered turn-order roll.
type InitiativeFrame struct {
	DiceRollFrame
	Silent        bool   `json:"silent"`
	RolledBySW    bool   `json:"rolled_by_sw"`
	CombatantName string `json:"combatant_name"`
}

// DieResultFrame is one attacker die's contribution within CombatResultFrame.
type DieResultFrame struct {
	A      int `json:"a"`
	D      int `json:"d"`
	Margin int `json:"margin"`
	Damage int `json:"damage"`
}

// CombatResultFrame reports an /attack resolution.
type CombatResultFrame struct {
	Type            string           `json:"type"`
	Attacker        string           `json:"attacker"`
	Defender        string           `json:"defender"`
	IndividualRolls []DieResultFrame `json:"individual_rolls"`
	TotalDamage     int              `json:"total_damage"`
	Outcome         string           `json:"outcome"`
	DefenderNewDP   int              `json:"defender_new_dp"`
	Narrative       string           `json:"narrative"`
	PartyID         string           `json:"party_id"`
	Timestamp       time.Time        `json:"timestamp"`
}

// AbilityCastFrame reports a macro ability resolution.
type AbilityCastFrame struct {
	Type          string         `json:"type"`
	Caster        string         `json:"caster"`
	Ability       string         `json:"ability"`
	Targets       []string       `json:"targets"`
	Resolution    map[string]any `json:"resolution"`
	UsesRemaining int            `json:"uses_remaining"`
	PartyID       string         `json:"party_id"`
	Timestamp     time.Time      `json:"timestamp"`
}
