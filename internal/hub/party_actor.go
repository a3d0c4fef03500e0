package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbrpg/partyhub/internal/config"
	"github.com/tbrpg/partyhub/internal/macro"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/proto"
	"github.com/tbrpg/partyhub/internal/statscache"
	"github.com/tbrpg/partyhub/internal/store"
)

// eventKind tags an inbound item on a partyActor's inbox.
type eventKind int8

const (
	eventJoin eventKind = iota
	eventLeave
	eventFrame
)

type actorEvent struct {
	kind    eventKind
	conn    *Connection
	payload []byte
}

// storeOpTimeout bounds the Entity Store work a single frame can hold the
// party actor for.
const storeOpTimeout = 5 * time.Second

// partyActor is the single goroutine that owns one party's live state.
// Every mutation of the party's socket set and every dispatch for its
// sockets happens on this goroutine, processing events strictly in arrival
// order — a single cooperative task consuming from a party-scoped queue.
type partyActor struct {
	partyID string
	inbox   chan actorEvent
	sockets map[*Connection]bool

	store      store.Store
	cache      *statscache.Cache
	dispatcher *macro.Dispatcher
	cfg        config.Server
}

func newPartyActor(partyID string, st store.Store, cache *statscache.Cache, disp *macro.Dispatcher, cfg config.Server) *partyActor {
	bufSize := cfg.InboxBufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &partyActor{
		partyID:    partyID,
		inbox:      make(chan actorEvent, bufSize),
		sockets:    make(map[*Connection]bool),
		store:      st,
		cache:      cache,
		dispatcher: disp,
		cfg:        cfg,
	}
}

func (a *partyActor) run() {
	for ev := range a.inbox {
		switch ev.kind {
		case eventJoin:
			a.handleJoin(ev.conn)
		case eventLeave:
			a.handleLeave(ev.conn)
		case eventFrame:
			a.handleFrame(ev.conn, ev.payload)
		}
	}
}

// handleJoin finishes admitting a socket. The snapshot is already
// bootstrapped by the caller (bootstrapCache, run before the socket is
// handed to this actor; a failed or unknown load admits the socket
// unbound); here we just register the socket and announce it.
func (a *partyActor) handleJoin(conn *Connection) {
	a.sockets[conn] = true
	a.cache.AddSocket(a.partyID)

	role := "player"
	if conn.IsSW {
		role = "SW"
	}
	text := fmt.Sprintf("%s (%s) joined the party", conn.DisplayName, role)
	a.broadcast(proto.NewSystem(text, a.partyID, time.Now()))
}

// handleLeave removes the socket, evicts its character snapshot if it was
// the last holder, and announces the departure.
func (a *partyActor) handleLeave(conn *Connection) {
	if !a.sockets[conn] {
		return
	}
	delete(a.sockets, conn)
	a.cache.RemoveSocket(a.partyID)
	if conn.CharacterID != "" {
		a.cache.UnbindCharacter(a.partyID, conn.CharacterID)
	}

	text := fmt.Sprintf("%s left the party", conn.DisplayName)
	a.broadcast(proto.NewSystem(text, a.partyID, time.Now()))
}

// handleFrame validates the inbound JSON and routes by the leading
// character of text; a handler error never breaks the socket.
func (a *partyActor) handleFrame(conn *Connection, raw []byte) {
	var in proto.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		a.reply(conn, "Malformed frame: invalid JSON")
		return
	}
	if in.Type == "" {
		a.reply(conn, "Malformed frame: missing type")
		return
	}
	if in.Type != "message" {
		a.reply(conn, fmt.Sprintf("Unknown frame type: %s", in.Type))
		return
	}

	// Every Entity Store call made on behalf of a frame carries a deadline;
	// on timeout the sender gets a private error reply and nothing is
	// broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	now := time.Now()

	if len(in.Text) > 0 && in.Text[0] == '/' {
		a.dispatchMacro(ctx, conn, in, now)
		return
	}
	a.dispatchChat(ctx, conn, in, now)
}

func (a *partyActor) dispatchChat(ctx context.Context, conn *Connection, in proto.Inbound, now time.Time) {
	actor := actorName(in, conn)
	frame := proto.NewChat(actor, in.Text, in.Mode, a.partyID, now)

	row := &model.ChatMessage{
		PartyID:    a.partyID,
		SenderID:   conn.UserID,
		SenderName: actor,
		Type:       model.MessageChat,
		Mode:       model.Mode(frame.Mode),
		Content:    in.Text,
		CreatedAt:  now,
	}
	if err := a.store.AppendMessage(ctx, row); err != nil {
		a.replyError(conn, model.WrapDomainError(model.KindStore, "Could not send your message. Try again.", err), now)
		return
	}

	a.broadcast(frame)
}

func (a *partyActor) dispatchMacro(ctx context.Context, conn *Connection, in proto.Inbound, now time.Time) {
	req := macro.Request{
		PartyID:      a.partyID,
		SenderUserID: conn.UserID,
		SenderName:   actorName(in, conn),
		IsSW:         conn.IsSW,
		CharacterID:  conn.CharacterID,
		Text:         in.Text,
		Now:          now,
	}

	res, err := a.dispatcher.Dispatch(ctx, req)
	if err != nil {
		a.replyError(conn, err, now)
		return
	}

	// Persistence commits before the fan-out; a failed write must never
	// produce a partially-successful broadcast.
	if res.Persist != nil {
		if err := a.store.AppendMessage(ctx, res.Persist); err != nil {
			a.replyError(conn, model.WrapDomainError(model.KindStore, "Could not save this event. Try again.", err), now)
			return
		}
	}
	if res.CombatPersist != nil {
		if err := a.store.AppendCombatTurn(ctx, res.CombatPersist); err != nil {
			a.replyError(conn, model.WrapDomainError(model.KindStore, "Could not save this event. Try again.", err), now)
			return
		}
	}

	if res.Broadcast != nil {
		a.broadcast(res.Broadcast)
	}
	if res.Private != nil {
		a.send(conn, res.Private)
	}
}

// replyError maps a failed dispatch to a private system reply, carrying a
// correlation id for KindInternal/KindStore failures. The sender alone sees
// the error; no party broadcast is emitted on failed paths.
func (a *partyActor) replyError(conn *Connection, err error, now time.Time) {
	var correlationID string
	message := "Something went wrong. Try again."

	var domainErr *model.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		if domainErr.Kind == model.KindInternal || domainErr.Kind == model.KindStore {
			correlationID = fmt.Sprintf("%s-%d", a.partyID, now.UnixNano())
			slog.Error("macro dispatch failed", "party", a.partyID, "correlation_id", correlationID, "error", err)
		}
	} else {
		correlationID = fmt.Sprintf("%s-%d", a.partyID, now.UnixNano())
		slog.Error("handler failed", "party", a.partyID, "correlation_id", correlationID, "error", err)
	}

	frame := proto.NewSystem(message, a.partyID, now)
	frame.CorrelationID = correlationID
	a.send(conn, frame)
}

// actorName prefers the frame-supplied display name, falling back to the
// connection's bound name.
func actorName(in proto.Inbound, conn *Connection) string {
	if in.Actor != "" {
		return in.Actor
	}
	return conn.DisplayName
}

func (a *partyActor) reply(conn *Connection, text string) {
	a.send(conn, proto.NewSystem(text, a.partyID, time.Now()))
}

// broadcast fans a frame out to every currently-registered socket. A socket
// whose send queue is full is skipped (and torn down) without aborting the
// rest of the fan-out.
func (a *partyActor) broadcast(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("marshaling broadcast frame", "party", a.partyID, "error", err)
		return
	}
	for conn := range a.sockets {
		conn.Send(payload)
	}
}

func (a *partyActor) send(conn *Connection, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("marshaling private frame", "party", a.partyID, "error", err)
		return
	}
	conn.Send(payload)
}

// submit enqueues an event, waiting for room in the inbox (sized by
// InboxBufferSize) until ctx is done. With a non-cancellable ctx, as the
// read loop's frame and leave events use, it waits as long as the actor
// takes to make room.
func (a *partyActor) submit(ctx context.Context, ev actorEvent) {
	select {
	case a.inbox <- ev:
	case <-ctx.Done():
	}
}
