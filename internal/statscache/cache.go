// Package statscache implements the Stats Cache: a per-party,
// per-character snapshot store populated at socket connect,
// invalidated at disconnect, and read by macro handlers to avoid Entity
// Store round-trips on every command.
package statscache

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tbrpg/partyhub/internal/model"
)

// partyEntry holds every cached snapshot for one party plus the holder
// counts needed to know when a snapshot (or the whole entry) should be
// evicted. Socket counts, leave-time unbinds and handler mutations come
// from the party's actor; connect-time binds (and the unbind after a
// failed upgrade) run on the connecting request's goroutine. The mutex
// makes the entry's maps safe under both.
type partyEntry struct {
	mu          sync.RWMutex
	snapshots   map[string]*model.Snapshot // characterID -> snapshot
	holders     map[string]int             // characterID -> live socket count
	liveSockets int                        // total sockets on the party, bound or not
}

// Cache is the process-wide Stats Cache: one partyEntry per party. An entry
// is created by the first AddSocket or BindCharacter for the party and
// disposed, with every snapshot in it, when RemoveSocket takes its
// live-socket count to zero; an entry created by BindCharacter holds zero
// sockets until the socket joins, and UnbindCharacter never disposes one.
type Cache struct {
	mu      sync.RWMutex
	parties map[string]*partyEntry

	group singleflight.Group // collapses concurrent reconnect loads
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{parties: make(map[string]*partyEntry)}
}

func (c *Cache) entry(partyID string) *partyEntry {
	c.mu.RLock()
	e := c.parties[partyID]
	c.mu.RUnlock()
	return e
}

func (c *Cache) entryOrCreate(partyID string) *partyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.parties[partyID]
	if !ok {
		e = &partyEntry{
			snapshots: make(map[string]*model.Snapshot),
			holders:   make(map[string]int),
		}
		c.parties[partyID] = e
	}
	return e
}

// AddSocket registers a new live socket on the party, creating the party's
// cache entry if this is the first socket.
func (c *Cache) AddSocket(partyID string) {
	e := c.entryOrCreate(partyID)
	e.mu.Lock()
	e.liveSockets++
	e.mu.Unlock()
}

// RemoveSocket unregisters a socket. If it was the last socket on the
// party, the entire party entry is disposed (disconnect contract).
func (c *Cache) RemoveSocket(partyID string) {
	e := c.entry(partyID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.liveSockets--
	dispose := e.liveSockets <= 0
	e.mu.Unlock()

	if dispose {
		c.mu.Lock()
		delete(c.parties, partyID)
		c.mu.Unlock()
	}
}

// Loader loads a fresh Snapshot for a character from the Entity Store.
type Loader func() (*model.Snapshot, error)

// BindCharacter installs (or reuses) the snapshot for (partyID, characterID)
// and increments its holder count by one. Concurrent binds for the same key
// are collapsed into a single Loader call via singleflight.
func (c *Cache) BindCharacter(partyID, characterID string, load Loader) (*model.Snapshot, error) {
	e := c.entryOrCreate(partyID)

	key := partyID + "\x00" + characterID
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		e.mu.RLock()
		if snap, ok := e.snapshots[characterID]; ok {
			e.mu.RUnlock()
			return snap, nil
		}
		e.mu.RUnlock()

		snap, err := load()
		if err != nil {
			return nil, fmt.Errorf("loading snapshot for character %s: %w", characterID, err)
		}

		e.mu.Lock()
		e.snapshots[characterID] = snap
		e.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.holders[characterID]++
	e.mu.Unlock()

	return v.(*model.Snapshot), nil
}

// UnbindCharacter decrements the holder count for (partyID, characterID).
// When it reaches zero the snapshot is evicted — its mutations have already
// been written through by the handlers that made them.
func (c *Cache) UnbindCharacter(partyID, characterID string) {
	e := c.entry(partyID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holders[characterID]--
	if e.holders[characterID] <= 0 {
		delete(e.holders, characterID)
		delete(e.snapshots, characterID)
	}
}

// Get returns the cached snapshot for (partyID, characterID), if present.
func (c *Cache) Get(partyID, characterID string) (*model.Snapshot, bool) {
	e := c.entry(partyID)
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.snapshots[characterID]
	return snap, ok
}

// FindByName implements mention.CacheReader: a case/underscore-normalized
// exact match against every cached character name in the party.
func (c *Cache) FindByName(partyID, normalizedName string) (*model.Snapshot, bool) {
	e := c.entry(partyID)
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, snap := range e.snapshots {
		if strings.ReplaceAll(strings.ToLower(snap.Name), "_", " ") == normalizedName {
			return snap, true
		}
	}
	return nil, false
}

// AllCharacters returns every cached snapshot for a party, for /who and
// initiative-reset sweeps.
func (c *Cache) AllCharacters(partyID string) []*model.Snapshot {
	e := c.entry(partyID)
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.Snapshot, 0, len(e.snapshots))
	for _, snap := range e.snapshots {
		out = append(out, snap)
	}
	return out
}

// PartyExists reports whether the party currently has a cache entry (see
// Cache for when one exists).
func (c *Cache) PartyExists(partyID string) bool {
	return c.entry(partyID) != nil
}
