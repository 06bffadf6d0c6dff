package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/admission"
	"github.com/arefkin/peercall/internal/rooms"
	"github.com/arefkin/peercall/internal/signaling"
	"github.com/arefkin/peercall/internal/store"
	"github.com/arefkin/peercall/pkg/auth"
)

// newWSFixture serves /ws on a live listener so tests can dial it with the
// real websocket client.
func newWSFixture(t *testing.T, maxAttempts int) (string, *auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelError
	log := factory.NewLogger("test")

	st := store.NewMemory()
	tokens := auth.NewTokenService("test-secret", auth.TokenTTL)
	gate := admission.NewGate(st, tokens, admission.Config{MaxAttempts: maxAttempts}, nil, factory)
	hub := signaling.NewHub(rooms.NewRegistry(st, log), factory)
	go hub.Run()
	t.Cleanup(hub.Stop)

	router := gin.New()
	router.GET("/ws", NewWSHandler(hub, gate, log).Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", tokens
}

func TestServe_ThrottledSourceGetsNoUpgrade(t *testing.T) {
	url, _ := newWSFixture(t, 1)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn.Close()

	// The budget is spent, so the next attempt must be refused before any
	// websocket handshake happens.
	c2, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		c2.Close()
		t.Fatal("second dial succeeded, want refusal")
	}
	if resp == nil {
		t.Fatalf("second dial gave no HTTP response (err %v)", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second dial status = %d, want 429", resp.StatusCode)
	}
}

func TestServe_InvalidTokenGetsErrorEventThenClose(t *testing.T) {
	url, _ := newWSFixture(t, 10)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=not-a-token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame struct {
		Event signaling.Event `json:"event"`
		Data  struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Event != signaling.EventError {
		t.Errorf("event = %q, want %q", frame.Event, signaling.EventError)
	}
	if frame.Data.Message != "invalid or expired token" {
		t.Errorf("message = %q, want invalid or expired token", frame.Data.Message)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after the error event")
	}
}

func TestServe_AdmitsTokenHolder(t *testing.T) {
	url, tokens := newWSFixture(t, 10)

	token, err := tokens.Issue("room-1234", "user-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	join := signaling.Envelope{Event: signaling.EventJoinRoom, Data: json.RawMessage(`"room-1234"`)}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("send joinRoom: %v", err)
	}

	var env signaling.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read join reply: %v", err)
	}
	if env.Event != signaling.EventMe {
		t.Errorf("event = %q, want %q", env.Event, signaling.EventMe)
	}
}
