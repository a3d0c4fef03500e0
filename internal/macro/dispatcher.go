// Package macro implements the macro dispatcher: parse the leading slash
// token, route to a handler, enforce throttle and
// verbosity policy, and produce the broadcast/persistence/private-reply
// tuple the Party Hub fans out.
package macro

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbrpg/partyhub/internal/config"
	"github.com/tbrpg/partyhub/internal/dice"
	"github.com/tbrpg/partyhub/internal/encounter"
	"github.com/tbrpg/partyhub/internal/mention"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/proto"
	"github.com/tbrpg/partyhub/internal/statscache"
	"github.com/tbrpg/partyhub/internal/store"
)

// Request is everything a dispatch needs about the sender and the raw
// text. The hub builds this from the
// Connection it owns; the dispatcher never touches socket I/O directly.
type Request struct {
	PartyID      string
	SenderUserID string
	SenderName   string
	IsSW         bool
	CharacterID  string // "" if the sending socket is unbound
	Text         string
	Now          time.Time
}

// Result is the structured outcome of a dispatch: the frame to fan out to
// the whole party (nil if none), a private reply to the sender only (nil if
// none), and the persistence rows to write through (nil if the verbosity
// policy or command kind says not to persist).
type Result struct {
	Broadcast     any
	Private       *proto.SystemFrame
	Persist       *model.ChatMessage
	CombatPersist *store.CombatTurn
}

// Dispatcher routes a parsed macro command to its handler.
type Dispatcher struct {
	dice      *dice.Engine
	mention   *mention.Resolver
	cache     *statscache.Cache
	encounter *encounter.Machine
	store     store.Store
	cfg       config.Server

	throttleMu sync.Mutex
	throttle   map[string]time.Time // "partyID\x00actor" -> last accepted time
}

// New builds a Dispatcher over its collaborators: the dispatcher sits
// above dice/mention/cache/encounter, below the party hub.
func New(d *dice.Engine, m *mention.Resolver, c *statscache.Cache, enc *encounter.Machine, st store.Store, cfg config.Server) *Dispatcher {
	return &Dispatcher{
		dice:      d,
		mention:   m,
		cache:     c,
		encounter: enc,
		store:     st,
		cfg:       cfg,
		throttle:  make(map[string]time.Time),
	}
}

// handler is a tier-1 built-in command implementation.
type handler func(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error)

// commandTable is the closed set of built-in macros — tier 1 of the
// two-tier dispatch table; per-character ability commands are the open
// tier 2.
var commandTable = map[string]handler{
	"/roll":       handleRoll,
	"/pp":         handleStatCheck,
	"/ip":         handleStatCheck,
	"/sp":         handleStatCheck,
	"/initiative": handleInitiative,
	"/attack":     handleAttack,
	"/who":        handleWho,
}

// Dispatch parses the leading whitespace-delimited token as the command,
// enforces the throttle, and routes to tier 1 or tier 2. text is expected to
// begin with "/" — callers (the Party Hub) route non-slash text to the
// plain-chat path instead.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	fields := strings.Fields(req.Text)
	if len(fields) == 0 {
		return Result{}, model.NewDomainError(model.KindInput, "empty command")
	}
	cmd := strings.ToLower(fields[0])
	args := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Text), fields[0]))

	if reply, throttled := d.checkThrottle(req); throttled {
		return Result{Private: reply}, nil
	}

	if h, ok := commandTable[cmd]; ok {
		res, err := h(ctx, d, req, args)
		if err == nil {
			d.markAccepted(req)
		}
		return res, err
	}

	if req.CharacterID != "" {
		if snap, ok := d.cache.Get(req.PartyID, req.CharacterID); ok {
			if ability := snap.FindAbility(cmd); ability != nil {
				res, err := d.castAbility(ctx, req, snap, ability, args)
				if err == nil {
					d.markAccepted(req)
				}
				return res, err
			}
		}
	}

	return Result{}, model.NewDomainError(model.KindInput, fmt.Sprintf("Unknown command: %s", cmd))
}

// checkThrottle enforces the per-(party,actor) MACRO_THROTTLE_MS window.
// Returns a private reply and true if the command must be rejected.
func (d *Dispatcher) checkThrottle(req Request) (*proto.SystemFrame, bool) {
	key := req.PartyID + "\x00" + req.SenderUserID
	window := time.Duration(d.cfg.MacroThrottleMS) * time.Millisecond
	if window <= 0 {
		window = 700 * time.Millisecond
	}

	d.throttleMu.Lock()
	defer d.throttleMu.Unlock()

	last, ok := d.throttle[key]
	if ok && req.Now.Sub(last) < window {
		frame := proto.NewSystem("Slow down — try again in a moment.", req.PartyID, req.Now)
		return &frame, true
	}
	return nil, false
}

// swOnlyViolation is the response to a player invoking a Story-Weaver-only
// command: a private rejection by default, or nothing at all under the
// "ignore" visibility policy.
func (d *Dispatcher) swOnlyViolation(cmd string) (Result, error) {
	if d.cfg.VisibilityPolicy == config.VisibilityIgnore {
		return Result{}, nil
	}
	return Result{}, model.NewDomainError(model.KindPermission, cmd+" is Story-Weaver only")
}

func (d *Dispatcher) markAccepted(req Request) {
	key := req.PartyID + "\x00" + req.SenderUserID
	d.throttleMu.Lock()
	d.throttle[key] = req.Now
	d.throttleMu.Unlock()
}

// eventKind tags what kind of macro output was produced, independent of the
// ChatMessage.Type enum, so shouldPersist can apply the verbosity rule
// ("minimal: only dice_roll and initiative") even though attack/ability
// rows are written as store.CombatTurn rather than model.ChatMessage.
type eventKind int8

const (
	kindDiceRoll eventKind = iota
	kindInitiative
	kindAttack
	kindAbility
	kindSystem
)

// shouldPersist applies WS_LOG_VERBOSITY. The broadcast itself
// is never affected by this setting — only whether a persistence row is
// written.
func (d *Dispatcher) shouldPersist(kind eventKind) bool {
	switch d.cfg.WSLogVerbosity {
	case config.VerbosityOff:
		return false
	case config.VerbosityMinimal:
		return kind == kindDiceRoll || kind == kindInitiative
	default:
		return true
	}
}

func newMessageID() string { return uuid.NewString() }
