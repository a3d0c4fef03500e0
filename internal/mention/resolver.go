// Package mention implements the @mention target resolver: tokenize
// @words, resolve against the live Stats Cache first, then the Entity
// Store's characters and NPCs, respecting NPC visibility.
package mention

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tbrpg/partyhub/internal/model"
)

// tokenRe matches @word tokens (word chars plus underscore, per the
// @First_Last multi-word-name convention).
var tokenRe = regexp.MustCompile(`@(\w+)`)

// CacheReader is the read side of the Stats Cache the resolver consults
// first (priority 1).
type CacheReader interface {
	FindByName(partyID, normalizedName string) (*model.Snapshot, bool)
}

// StoreReader is the narrow slice of the Entity Store the resolver needs for
// priority 2/3 lookups.
type StoreReader interface {
	ListPartyCharacters(ctx context.Context, partyID string) ([]*model.Character, error)
	ListPartyNPCs(ctx context.Context, partyID string, includeHidden bool) ([]*model.NPC, error)
}

// Candidate is one possible resolution for an ambiguous token.
type Candidate struct {
	ID   string
	Name string
	Type model.TargetType
}

// Mention is a single resolved @token.
type Mention struct {
	Token string
	ID    string
	Name  string
	Type  model.TargetType
}

// Ambiguous records a token with more than one same-priority candidate.
type Ambiguous struct {
	Token      string
	Candidates []Candidate
}

// Result is the full output of Resolve.
type Result struct {
	Mentions   []Mention
	Unresolved []string
	Ambiguous  []Ambiguous
}

// Resolver resolves @mention tokens against the live cache and store.
type Resolver struct {
	cache CacheReader
	store StoreReader
}

// New builds a Resolver over the given cache and store.
func New(cache CacheReader, store StoreReader) *Resolver {
	return &Resolver{cache: cache, store: store}
}

// Normalize lowercases a token and replaces underscores with spaces, so
// "@Evil_Queen", "@evil queen" (already space-separated text without the
// @-token form) and "@EVIL_QUEEN" compare equal.
func Normalize(token string) string {
	return strings.ReplaceAll(strings.ToLower(token), "_", " ")
}

// Tokens extracts every @word occurrence in text, unnormalized (original
// case preserved for the returned Mention/Ambiguous/Unresolved display).
func Tokens(text string) []string {
	matches := tokenRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Resolve runs the priority lookup: live cache first, then store
// characters, then store NPCs (filtered by visibility for non-SW senders).
// The same token appearing twice in text yields two entries; callers dedupe
// as needed.
func (r *Resolver) Resolve(ctx context.Context, text, partyID string, senderIsSW bool) (Result, error) {
	var res Result

	tokens := Tokens(text)
	if len(tokens) == 0 {
		return res, nil
	}

	characters, err := r.store.ListPartyCharacters(ctx, partyID)
	if err != nil {
		return res, fmt.Errorf("listing party characters: %w", err)
	}
	npcs, err := r.store.ListPartyNPCs(ctx, partyID, senderIsSW)
	if err != nil {
		return res, fmt.Errorf("listing party npcs: %w", err)
	}

	for _, tok := range tokens {
		norm := Normalize(tok)

		// A cache hit may be an NPC bound by an SW socket; hidden NPCs
		// stay invisible to player senders and fall through to the
		// visibility-filtered store lookup.
		if snap, ok := r.cache.FindByName(partyID, norm); ok {
			if senderIsSW || snap.Type != model.TargetNPC || snap.VisibleToPlayers {
				res.Mentions = append(res.Mentions, Mention{Token: tok, ID: snap.ID, Name: snap.Name, Type: snap.Type})
				continue
			}
		}

		var candidates []Candidate
		for _, c := range characters {
			if Normalize(c.Name) == norm {
				candidates = append(candidates, Candidate{ID: c.ID, Name: c.Name, Type: model.TargetCharacter})
			}
		}
		if len(candidates) == 0 {
			for _, n := range npcs {
				if Normalize(n.Name) == norm {
					candidates = append(candidates, Candidate{ID: n.ID, Name: n.Name, Type: model.TargetNPC})
				}
			}
		}

		switch len(candidates) {
		case 0:
			res.Unresolved = append(res.Unresolved, tok)
		case 1:
			res.Mentions = append(res.Mentions, Mention{Token: tok, ID: candidates[0].ID, Name: candidates[0].Name, Type: candidates[0].Type})
		default:
			res.Ambiguous = append(res.Ambiguous, Ambiguous{Token: tok, Candidates: candidates})
		}
	}

	return res, nil
}

// ResolveSingle resolves text and requires exactly one mention; optionally
// enforces a single expected target type.
func (r *Resolver) ResolveSingle(ctx context.Context, text, partyID string, senderIsSW bool, expectedType model.TargetType) (Mention, error) {
	res, err := r.Resolve(ctx, text, partyID, senderIsSW)
	if err != nil {
		return Mention{}, err
	}

	switch {
	case len(res.Ambiguous) > 0:
		return Mention{}, fmt.Errorf("ambiguous target @%s", res.Ambiguous[0].Token)
	case len(res.Unresolved) > 0:
		return Mention{}, fmt.Errorf("target not found: @%s", res.Unresolved[0])
	case len(res.Mentions) != 1:
		return Mention{}, fmt.Errorf("expected exactly one target, got %d", len(res.Mentions))
	}

	m := res.Mentions[0]
	if expectedType != "" && m.Type != expectedType {
		return Mention{}, fmt.Errorf("target @%s is a %s, expected %s", m.Token, m.Type, expectedType)
	}
	return m, nil
}
