package admission

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/store"
	"github.com/arefkin/peercall/pkg/auth"
)

func newTestGate(cfg Config) *Gate {
	tokens := auth.NewTokenService("test-secret", auth.TokenTTL)
	return NewGate(store.NewMemory(), tokens, cfg, nil, logging.NewDefaultLoggerFactory())
}

func TestGate_AllowAttemptThrottles(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(Config{MaxAttempts: 2, ResetPeriod: time.Minute})

	for i := 1; i <= 2; i++ {
		if err := gate.AllowAttempt(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("AllowAttempt() %d error = %v", i, err)
		}
	}
	if err := gate.AllowAttempt(ctx, "10.0.0.1"); !errors.Is(err, ErrThrottled) {
		t.Errorf("AllowAttempt() over budget error = %v, want ErrThrottled", err)
	}
}

func TestGate_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin header passes", allowed: []string{"https://call.example.com"}, origin: "", want: true},
		{name: "empty allow-list admits all", allowed: nil, origin: "https://evil.example.com", want: true},
		{name: "listed origin", allowed: []string{"https://call.example.com"}, origin: "https://call.example.com", want: true},
		{name: "unlisted origin", allowed: []string{"https://call.example.com"}, origin: "https://evil.example.com", want: false},
		{name: "wildcard entry", allowed: []string{"*"}, origin: "https://anywhere.example.com", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(Config{AllowedOrigins: tt.allowed})
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := gate.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_AdmitAnonymous(t *testing.T) {
	gate := newTestGate(Config{})

	session, err := gate.Admit(context.Background(), "10.0.0.1:4242", "")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if session.ID == "" {
		t.Error("Admit() produced a session without id")
	}
	if !session.Anonymous() {
		t.Errorf("Admit() without token = %+v, want anonymous", session)
	}
	if session.RemoteAddr != "10.0.0.1:4242" {
		t.Errorf("RemoteAddr = %q", session.RemoteAddr)
	}
}

func TestGate_AdmitWithToken(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", auth.TokenTTL)
	gate := NewGate(store.NewMemory(), tokens, Config{}, nil, logging.NewDefaultLoggerFactory())

	token, err := tokens.Issue("abc123", "user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	session, err := gate.Admit(context.Background(), "10.0.0.1:4242", token)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if session.UserID != "user-1" || session.RoomID != "abc123" {
		t.Errorf("Admit() bound %q/%q, want user-1/abc123", session.UserID, session.RoomID)
	}
}

func TestGate_AdmitRejectsBadToken(t *testing.T) {
	gate := newTestGate(Config{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "foreign secret", token: mustIssue(t, auth.NewTokenService("other", auth.TokenTTL))},
		{name: "expired", token: mustIssue(t, auth.NewTokenService("test-secret", -time.Minute))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := gate.Admit(context.Background(), "10.0.0.1:4242", tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Admit() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func mustIssue(t *testing.T, svc *auth.TokenService) string {
	t.Helper()
	token, err := svc.Issue("abc123", "user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}
