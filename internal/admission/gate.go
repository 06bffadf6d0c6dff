// Package admission gates incoming realtime connections: per-address
// throttling, origin checks and token binding all happen here, before any
// room operation is permitted.
package admission

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/store"
	"github.com/arefkin/peercall/pkg/auth"
)

var (
	// ErrThrottled means the source address exhausted its attempt budget.
	ErrThrottled = errors.New("too many connection attempts")

	// ErrInvalidToken means a token was supplied but failed verification.
	// Connections without a token are admitted anonymously instead.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Config tunes the gate. Zero values fall back to defaults; an empty origin
// allow-list admits every origin.
type Config struct {
	AllowedOrigins []string
	MaxAttempts    int
	ResetPeriod    time.Duration
}

// Gate runs the admission sequence for each incoming connection.
type Gate struct {
	throttle       *Throttle
	tokens         *auth.TokenService
	allowedOrigins []string
	clock          Clock
	log            logging.LeveledLogger
	security       logging.LeveledLogger
}

// NewGate creates a gate persisting throttle windows to st and verifying
// tokens with tokens.
func NewGate(st store.Store, tokens *auth.TokenService, cfg Config, clock Clock, loggerFactory logging.LoggerFactory) *Gate {
	if clock == nil {
		clock = RealClock{}
	}
	return &Gate{
		throttle:       NewThrottle(st, clock, cfg.MaxAttempts, cfg.ResetPeriod),
		tokens:         tokens,
		allowedOrigins: cfg.AllowedOrigins,
		clock:          clock,
		log:            loggerFactory.NewLogger("admission"),
		security:       loggerFactory.NewLogger("security"),
	}
}

// AllowAttempt records one connection attempt from addr and returns
// ErrThrottled when the budget is exhausted. Throttle storage failures are
// logged and fail open: an unreachable store must not take signaling down.
func (g *Gate) AllowAttempt(ctx context.Context, addr string) error {
	ok, err := g.throttle.Allow(ctx, addr)
	if err != nil {
		g.log.Errorf("throttle check failed, admitting: addr=%s err=%v", addr, err)
		return nil
	}
	if !ok {
		g.security.Warnf("connection throttled: addr=%s", addr)
		return ErrThrottled
	}
	return nil
}

// CheckOrigin is the websocket upgrader's origin policy. Connections without
// an Origin header (non-browser clients) pass; browser origins must be on the
// allow-list when one is configured.
func (g *Gate) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(g.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	g.security.Warnf("origin rejected: addr=%s origin=%s", r.RemoteAddr, origin)
	return false
}

// Admit finalizes admission for an upgraded connection. An empty token yields
// an anonymous session; a present but invalid token yields ErrInvalidToken.
func (g *Gate) Admit(ctx context.Context, addr, token string) (*Session, error) {
	session := &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  addr,
		ConnectedAt: g.clock.Now(),
	}

	if token != "" {
		claims := g.tokens.Verify(token)
		if claims == nil {
			g.security.Warnf("connection rejected: addr=%s reason=invalid-token", addr)
			return nil, ErrInvalidToken
		}
		session.UserID = claims.UserID
		session.RoomID = claims.RoomID
	}

	g.security.Infof("connection admitted: conn=%s addr=%s user=%s room=%s",
		session.ID, addr, session.UserID, session.RoomID)
	return session, nil
}

// Run sweeps stale throttle windows every reset period until ctx is
// cancelled.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.throttle.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.throttle.Sweep(ctx); err != nil {
				g.log.Warnf("throttle sweep failed: %v", err)
			}
		}
	}
}
