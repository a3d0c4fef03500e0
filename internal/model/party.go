package model

// PartyType tags a party's chat channel flavor. The core treats all four
// uniformly; routing differences are presentation-only and live
// client-side.
type PartyType string

const (
	PartyTypeStory    PartyType = "story"
	PartyTypeOOC      PartyType = "ooc"
	PartyTypeStandard PartyType = "standard"
	PartyTypeWhisper  PartyType = "whisper"
)

// Party is the durable party record loaded from the Entity Store. It is not
// the live, in-memory party-with-sockets state (the hub's per-party actor
// and the party's statscache entry) — the Party Hub owns live state; the
// store owns this record.
type Party struct {
	ID               string
	StoryWeaverUserID *string
	Type             PartyType
}

// IsStoryWeaver reports whether userID is this party's Story Weaver.
func (p *Party) IsStoryWeaver(userID string) bool {
	return p.StoryWeaverUserID != nil && *p.StoryWeaverUserID == userID
}
