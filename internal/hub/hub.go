package hub

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tbrpg/partyhub/internal/config"
	"github.com/tbrpg/partyhub/internal/macro"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/statscache"
	"github.com/tbrpg/partyhub/internal/store"
)

// Hub is the process-wide registry of party actors and the HTTP surface
// that admits new sockets into them.
type Hub struct {
	mu     sync.Mutex
	actors map[string]*partyActor

	store      store.Store
	cache      *statscache.Cache
	dispatcher *macro.Dispatcher
	auth       AuthResolver
	cfg        config.Server

	upgrader websocket.Upgrader
}

// New builds a Hub over its collaborators.
func New(st store.Store, cache *statscache.Cache, disp *macro.Dispatcher, auth AuthResolver, cfg config.Server) *Hub {
	return &Hub{
		actors:     make(map[string]*partyActor),
		store:      st,
		cache:      cache,
		dispatcher: disp,
		auth:       auth,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts the party WebSocket endpoint on mux, using the stdlib
// ServeMux's Go 1.22+ method+pattern routing — one endpoint does not need a
// router framework.
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat/party/{party_id}", h.serveWS)
}

// actorFor returns (creating if needed) the single-owner actor for partyID,
// starting its goroutine the first time a party is touched. The actor is
// never torn down once created — a party revisited after its last socket
// left reuses the same idle goroutine rather than risk a send racing a
// channel close. Reuse keeps the registry simple and free of that race at
// the cost of one parked goroutine per ever-seen party.
func (h *Hub) actorFor(partyID string) *partyActor {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.actors[partyID]
	if !ok {
		a = newPartyActor(partyID, h.store, h.cache, h.dispatcher, h.cfg)
		h.actors[partyID] = a
		go a.run()
	}
	return a
}

// serveWS admits a new socket: authenticate, resolve the optional bound
// character, bootstrap the Stats Cache snapshot, upgrade the connection,
// and hand it to the party's actor.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	partyID := r.PathValue("party_id")
	if partyID == "" {
		http.Error(w, "party_id is required", http.StatusBadRequest)
		return
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	userID, err := h.auth.ResolveUser(ctx, token)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	party, err := h.store.LoadParty(ctx, partyID)
	if err != nil {
		http.Error(w, "loading party", http.StatusInternalServerError)
		return
	}
	if party == nil {
		http.Error(w, "party not found", http.StatusNotFound)
		return
	}
	isSW := party.IsStoryWeaver(userID)

	characterID := r.URL.Query().Get("character_id")
	displayName, boundCharacterID := h.bootstrapCache(ctx, partyID, characterID, userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "party", partyID, "error", err)
		if boundCharacterID != "" {
			h.cache.UnbindCharacter(partyID, boundCharacterID)
		}
		return
	}

	c := newConnection(conn, partyID, userID, boundCharacterID, displayName, isSW)
	actor := h.actorFor(partyID)

	go c.writePump()
	actor.submit(ctx, actorEvent{kind: eventJoin, conn: c})

	c.readPump(
		func(payload []byte) {
			actor.submit(context.Background(), actorEvent{kind: eventFrame, conn: c, payload: payload})
		},
		func() {
			actor.submit(context.Background(), actorEvent{kind: eventLeave, conn: c})
		},
	)
}

// bootstrapCache installs the connect-time cache snapshot. The supplied id
// may name a character or an NPC (an SW can bind its socket to an NPC and
// act as it); a missing or foreign id still admits the socket, unbound,
// with the user id as a display name placeholder.
func (h *Hub) bootstrapCache(ctx context.Context, partyID, characterID, userID string) (displayName, boundCharacterID string) {
	if characterID == "" {
		return userID, ""
	}

	load, err := h.connectLoader(ctx, partyID, characterID)
	if err != nil {
		slog.Warn("loading combatant at connect", "id", characterID, "error", err)
		return userID, ""
	}
	if load == nil {
		slog.Info("connect with unknown or foreign character_id, admitting unbound", "character", characterID, "party", partyID)
		return userID, ""
	}

	snap, err := h.cache.BindCharacter(partyID, characterID, load)
	if err != nil {
		slog.Warn("binding snapshot at connect", "id", characterID, "error", err)
		return userID, ""
	}

	return snap.Name, characterID
}

// connectLoader resolves a connect-time id to a snapshot loader: characters
// first, then NPCs. Returns a nil loader when the id names nothing bound to
// the party.
func (h *Hub) connectLoader(ctx context.Context, partyID, characterID string) (statscache.Loader, error) {
	character, err := h.store.LoadCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if character != nil {
		if character.PartyID != partyID {
			return nil, nil
		}
		return func() (*model.Snapshot, error) {
			abilities, err := h.store.ListAbilities(ctx, characterID)
			if err != nil {
				return nil, err
			}
			return model.SnapshotFromCharacter(character, abilities), nil
		}, nil
	}

	npc, err := h.store.LoadNPC(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if npc == nil || npc.PartyID != partyID {
		return nil, nil
	}
	return func() (*model.Snapshot, error) {
		return model.SnapshotFromNPC(npc), nil
	}, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
