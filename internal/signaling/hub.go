// Package signaling runs the realtime side of the broker: a hub owning all
// connected clients, a per-connection state machine, and the router relaying
// opaque call-setup payloads between the two peers of a room.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/rooms"
)

type inbound struct {
	client *Client
	env    Envelope
}

// Hub owns every connected client and serializes all registry mutations and
// relays on a single goroutine, so per-connection messages are handled to
// completion in arrival order.
type Hub struct {
	registry *rooms.Registry
	router   *Router
	log      logging.LeveledLogger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	clients map[string]*Client

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub over the given registry.
func NewHub(registry *rooms.Registry, loggerFactory logging.LoggerFactory) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   registry,
		log:        loggerFactory.NewLogger("signaling"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		clients:    make(map[string]*Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.router = NewRouter(h, loggerFactory.NewLogger("signaling"))
	return h
}

// Run processes hub events until Stop. Call it on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			// The hub goroutine owns h.clients, so the remaining connections
			// are closed here rather than in Stop.
			for _, client := range h.clients {
				if client.conn != nil {
					client.conn.Close()
				}
			}
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case msg := <-h.inbound:
			h.handleEvent(msg.client, msg.env)
		}
	}
}

// Stop shuts the hub down. Run closes the remaining client connections on
// its way out.
func (h *Hub) Stop() {
	h.cancel()
}

// Register hands a freshly admitted client to the hub goroutine.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister triggers cleanup for a disconnected client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Dispatch queues one inbound frame for processing.
func (h *Hub) Dispatch(client *Client, env Envelope) {
	select {
	case h.inbound <- inbound{client: client, env: env}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) handleRegister(c *Client) {
	c.state = stateAdmitted
	h.clients[c.session.ID] = c
	h.log.Infof("client connected: conn=%s addr=%s", c.session.ID, c.session.RemoteAddr)
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c.session.ID]; !ok {
		return
	}

	// Release the room slot unconditionally; throttle windows deliberately
	// survive the connection.
	roomID, _ := h.registry.Leave(h.ctx, c.session.ID)

	delete(h.clients, c.session.ID)
	c.state = stateClosed
	close(c.send)

	h.log.Infof("client disconnected: conn=%s room=%s duration=%s",
		c.session.ID, roomID, time.Since(c.session.ConnectedAt).Round(time.Millisecond))
}

func (h *Hub) handleEvent(c *Client, env Envelope) {
	if c.state == stateClosed {
		return
	}

	switch env.Event {
	case EventJoinRoom:
		h.handleJoin(c, env.Data)

	case EventCallUser:
		if !h.requireInRoom(c) {
			return
		}
		var req CallUserRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.UserToCall == "" {
			h.sendError(c, "malformed callUser request")
			return
		}
		h.router.CallOffer(req.UserToCall, req.SignalData, req.From)

	case EventAnswerCall:
		if !h.requireInRoom(c) {
			return
		}
		var req AnswerCallRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.To == "" {
			h.sendError(c, "malformed answerCall request")
			return
		}
		h.router.CallAnswer(req.To, req.Signal)

	case EventEndCall:
		if !h.requireInRoom(c) {
			return
		}
		var roomID string
		if err := json.Unmarshal(env.Data, &roomID); err != nil {
			h.sendError(c, "malformed endCall request")
			return
		}
		h.router.CallEnd(roomID, c.session.ID)

	default:
		h.sendError(c, "unknown event")
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	if c.state == stateInRoom {
		h.sendError(c, rooms.ErrAlreadyInRoom.Error())
		return
	}

	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		h.sendError(c, "malformed joinRoom request")
		return
	}

	peers, err := h.registry.Join(h.ctx, c.session.ID, roomID, c.session.RoomID)
	switch {
	case errors.Is(err, rooms.ErrRoomFull):
		// Reported without disconnecting; the client may retry another room.
		h.sendEvent(c, EventRoomFull, nil)
		return
	case err != nil:
		h.sendError(c, err.Error())
		return
	}

	c.state = stateInRoom
	c.room = roomID

	h.sendEvent(c, EventMe, c.session.ID)
	for _, peerID := range peers {
		if peer, ok := h.clients[peerID]; ok {
			h.sendEvent(peer, EventUserJoined, c.session.ID)
		}
	}
}

func (h *Hub) requireInRoom(c *Client) bool {
	if c.state != stateInRoom {
		h.sendError(c, "join a room first")
		return false
	}
	return true
}

func (h *Hub) sendEvent(c *Client, event Event, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		h.log.Errorf("encode %s frame: %v", event, err)
		return
	}
	if !c.trySend(frame) {
		h.log.Debugf("%s dropped: conn=%s queue full or closed", event, c.session.ID)
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendEvent(c, EventError, ErrorEvent{Message: message})
}

// Deliver implements Directory for the router. Hub goroutine only.
func (h *Hub) Deliver(sessionID string, frame []byte) bool {
	client, ok := h.clients[sessionID]
	if !ok {
		return false
	}
	return client.trySend(frame)
}

// RoomMembers implements Directory for the router.
func (h *Hub) RoomMembers(roomID string) []string {
	return h.registry.Members(roomID)
}
