package signaling

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arefkin/peercall/internal/admission"
)

const (
	writeWait = 10 * time.Second

	// pongWait is the heartbeat deadline; a peer that stays silent longer is
	// considered dead and cleaned up like a disconnect.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Signaling frames are small; this is generous headroom for SDP blobs.
	maxMessageSize = 64 * 1024
)

type state int

const (
	stateConnecting state = iota
	stateAdmitted
	stateInRoom
	stateClosed
)

// Client is one admitted realtime connection.
type Client struct {
	session *admission.Session
	conn    *websocket.Conn
	hub     *Hub
	send    chan []byte

	// state and room are owned by the hub goroutine; pumps never touch them.
	state state
	room  string
}

// NewClient wraps an upgraded connection whose session passed the gate.
func NewClient(hub *Hub, conn *websocket.Conn, session *admission.Session) *Client {
	return &Client{
		session: session,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, 64),
		state:   stateConnecting,
	}
}

// Session returns the immutable admission record for this connection.
func (c *Client) Session() *admission.Session { return c.session }

// ReadPump reads frames from the socket and hands them to the hub, keeping
// per-connection arrival order. It exits on any read error and triggers the
// hub-side cleanup.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugf("read error: conn=%s err=%v", c.session.ID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.hub.log.Debugf("malformed frame: conn=%s err=%v", c.session.ID, err)
			continue
		}
		c.hub.Dispatch(c, env)
	}
}

// WritePump drains the send queue onto the socket and keeps the heartbeat
// going.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the queue.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues a frame without blocking. Only the hub goroutine calls this.
func (c *Client) trySend(frame []byte) bool {
	if c.state == stateClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
