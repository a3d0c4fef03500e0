package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	sendQueueSize = 32
	maxFrameBytes = 8192
)

// Connection is one live socket admitted into a party. Every outbound
// write goes through send and a dedicated
// writePump goroutine, the same per-client async write queue pattern as a
// raw TCP client's write pump, adapted to gorilla/websocket framing — the
// party actor never blocks on a slow reader.
type Connection struct {
	conn *websocket.Conn

	PartyID     string
	UserID      string
	CharacterID string // "" if the socket connected unbound
	DisplayName string
	IsSW        bool

	send      chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, partyID, userID, characterID, displayName string, isSW bool) *Connection {
	return &Connection{
		conn:        conn,
		PartyID:     partyID,
		UserID:      userID,
		CharacterID: characterID,
		DisplayName: displayName,
		IsSW:        isSW,
		send:        make(chan []byte, sendQueueSize),
		closeCh:     make(chan struct{}),
	}
}

// Send enqueues a frame for async delivery. A full queue means a slow or
// stuck reader; rather than block the party actor's single-owner loop, the
// connection is torn down; a socket that closes mid-broadcast is skipped
// without aborting fan-out.
func (c *Connection) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.closeCh:
		return false
	default:
		c.closeAsync()
		return false
	}
}

func (c *Connection) closeAsync() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// writePump owns all writes to the underlying socket.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// readPump owns all reads. onFrame is invoked with each inbound text
// message; onClose runs once the loop exits for any reason (remote close,
// protocol error, read timeout).
func (c *Connection) readPump(onFrame func([]byte), onClose func()) {
	defer onClose()
	defer c.closeAsync()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		onFrame(payload)
	}
}
