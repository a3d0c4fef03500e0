package model

import "time"

// MessageType discriminates the persisted row's origin.
type MessageType string

const (
	MessageChat      MessageType = "chat"
	MessageCombat    MessageType = "combat"
	MessageSystem    MessageType = "system"
	MessageNarration MessageType = "narration"
	MessageDiceRoll  MessageType = "dice_roll"
)

// Mode tags a message as in-character or out-of-character.
type Mode string

const (
	ModeIC   Mode = "IC"
	ModeOOC  Mode = "OOC"
	ModeNone Mode = ""
)

// ChatMessage is a persisted row appended by the Party Hub or Macro
// Dispatcher. ExtraData carries structured breakdowns (dice
// rolls, combat details) for clients that want to re-render history.
type ChatMessage struct {
	ID         string
	PartyID    string
	CampaignID string
	SenderID   string
	SenderName string
	Type       MessageType
	Mode       Mode
	Content    string
	ExtraData  map[string]any
	CreatedAt  time.Time
}
