package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/admission"
	"github.com/arefkin/peercall/internal/rooms"
	"github.com/arefkin/peercall/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	factory := logging.NewDefaultLoggerFactory()
	registry := rooms.NewRegistry(store.NewMemory(), factory.NewLogger("test"))
	h := NewHub(registry, factory)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// connect registers a client whose pumps are replaced by a buffered queue the
// test reads directly.
func connect(h *Hub, id, authorizedRoom string) *Client {
	c := &Client{
		session: &admission.Session{
			ID:          id,
			RemoteAddr:  "10.0.0.1:4242",
			RoomID:      authorizedRoom,
			ConnectedAt: time.Now(),
		},
		hub:   h,
		send:  make(chan []byte, 16),
		state: stateConnecting,
	}
	h.Register(c)
	return c
}

func send(t *testing.T, h *Hub, c *Client, event Event, data interface{}) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s data: %v", event, err)
		}
		raw = encoded
	}
	h.Dispatch(c, Envelope{Event: event, Data: raw})
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send queue closed")
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("decode frame %s: %v", frame, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func expectEvent(t *testing.T, c *Client, want Event) Envelope {
	t.Helper()
	env := recv(t, c)
	if env.Event != want {
		t.Fatalf("received %q (%s), want %q", env.Event, env.Data, want)
	}
	return env
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame: %s", frame)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func dataString(t *testing.T, env Envelope) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode string data %s: %v", env.Data, err)
	}
	return s
}

func TestHub_TwoPeerCallScenario(t *testing.T) {
	h := newTestHub(t)

	alice := connect(h, "alice", "")
	send(t, h, alice, EventJoinRoom, "abc123")
	me := expectEvent(t, alice, EventMe)
	if dataString(t, me) != "alice" {
		t.Errorf("me = %q, want alice", dataString(t, me))
	}

	bob := connect(h, "bob", "")
	send(t, h, bob, EventJoinRoom, "abc123")
	expectEvent(t, bob, EventMe)
	joined := expectEvent(t, alice, EventUserJoined)
	if dataString(t, joined) != "bob" {
		t.Errorf("userJoined = %q, want bob", dataString(t, joined))
	}

	// Third connection bounces off the capacity limit without being added.
	carol := connect(h, "carol", "")
	send(t, h, carol, EventJoinRoom, "abc123")
	expectEvent(t, carol, EventRoomFull)
	if got := h.registry.Occupancy("abc123"); got != 2 {
		t.Errorf("occupancy after roomFull = %d, want 2", got)
	}

	// Offer travels to bob verbatim, tagged with the caller id.
	send(t, h, alice, EventCallUser, CallUserRequest{
		UserToCall: "bob",
		SignalData: json.RawMessage(`"encrypted-offer"`),
		From:       "alice",
	})
	offer := expectEvent(t, bob, EventCallUser)
	var offerPayload CallUserEvent
	if err := json.Unmarshal(offer.Data, &offerPayload); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if offerPayload.From != "alice" || string(offerPayload.Signal) != `"encrypted-offer"` {
		t.Errorf("offer = %+v", offerPayload)
	}

	// Answer travels back.
	send(t, h, bob, EventAnswerCall, AnswerCallRequest{
		To:     "alice",
		Signal: json.RawMessage(`"encrypted-answer"`),
	})
	answer := expectEvent(t, alice, EventCallAccepted)
	if string(answer.Data) != `"encrypted-answer"` {
		t.Errorf("answer data = %s", answer.Data)
	}

	// End is broadcast to the peer, not the sender.
	send(t, h, alice, EventEndCall, "abc123")
	expectEvent(t, bob, EventCallEnded)
	expectNothing(t, alice)
}

func TestHub_JoinValidation(t *testing.T) {
	h := newTestHub(t)

	c := connect(h, "alice", "")
	send(t, h, c, EventJoinRoom, "ab!")
	env := expectEvent(t, c, EventError)
	var errPayload ErrorEvent
	json.Unmarshal(env.Data, &errPayload)
	if errPayload.Message != rooms.ErrInvalidRoomID.Error() {
		t.Errorf("error = %q, want invalid room id", errPayload.Message)
	}
}

func TestHub_TokenBoundToOtherRoom(t *testing.T) {
	h := newTestHub(t)

	c := connect(h, "alice", "room-a")
	send(t, h, c, EventJoinRoom, "room-b")
	env := expectEvent(t, c, EventError)
	var errPayload ErrorEvent
	json.Unmarshal(env.Data, &errPayload)
	if errPayload.Message != rooms.ErrNotAuthorized.Error() {
		t.Errorf("error = %q, want not authorized", errPayload.Message)
	}
	if got := h.registry.Occupancy("room-b"); got != 0 {
		t.Errorf("occupancy = %d after rejected join, want 0", got)
	}
}

func TestHub_SecondJoinRejected(t *testing.T) {
	h := newTestHub(t)

	c := connect(h, "alice", "")
	send(t, h, c, EventJoinRoom, "room-a")
	expectEvent(t, c, EventMe)

	send(t, h, c, EventJoinRoom, "room-b")
	env := expectEvent(t, c, EventError)
	var errPayload ErrorEvent
	json.Unmarshal(env.Data, &errPayload)
	if errPayload.Message != rooms.ErrAlreadyInRoom.Error() {
		t.Errorf("error = %q, want already in a room", errPayload.Message)
	}
	if got := h.registry.Occupancy("room-b"); got != 0 {
		t.Errorf("second room occupancy = %d, want 0", got)
	}
}

func TestHub_CallBeforeJoinRejected(t *testing.T) {
	h := newTestHub(t)

	c := connect(h, "alice", "")
	send(t, h, c, EventCallUser, CallUserRequest{UserToCall: "bob", From: "alice"})
	expectEvent(t, c, EventError)
}

func TestHub_DisconnectReleasesSlot(t *testing.T) {
	h := newTestHub(t)

	alice := connect(h, "alice", "")
	bob := connect(h, "bob", "")
	send(t, h, alice, EventJoinRoom, "abc123")
	expectEvent(t, alice, EventMe)
	send(t, h, bob, EventJoinRoom, "abc123")
	expectEvent(t, bob, EventMe)
	expectEvent(t, alice, EventUserJoined)

	h.Unregister(bob)
	expectNothing(t, bob) // queue is closed by cleanup

	// The freed slot admits a new peer, who is announced to alice.
	carol := connect(h, "carol", "")
	send(t, h, carol, EventJoinRoom, "abc123")
	expectEvent(t, carol, EventMe)
	joined := expectEvent(t, alice, EventUserJoined)
	if dataString(t, joined) != "carol" {
		t.Errorf("userJoined = %q, want carol", dataString(t, joined))
	}
}

func TestHub_StopDuringTraffic(t *testing.T) {
	factory := logging.NewDefaultLoggerFactory()
	registry := rooms.NewRegistry(store.NewMemory(), factory.NewLogger("test"))
	h := NewHub(registry, factory)
	go h.Run()

	alice := connect(h, "alice", "")
	send(t, h, alice, EventJoinRoom, "abc123")
	expectEvent(t, alice, EventMe)

	// Keep frames flowing while the hub shuts down. Dispatch must fall
	// through once the hub context is cancelled.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.Dispatch(alice, Envelope{Event: EventEndCall})
		}
	}()

	h.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked after Stop")
	}

	// Post-shutdown registrations are dropped, not queued.
	registered := make(chan struct{})
	go func() {
		defer close(registered)
		connect(h, "bob", "")
	}()
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked after Stop")
	}
}
