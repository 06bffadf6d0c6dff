package admission

import "time"

// Session describes one admitted realtime connection. It is populated once
// during admission and never mutated afterwards; handlers receive it by
// pointer and read from it only.
type Session struct {
	// ID is the connection identifier announced to peers.
	ID string

	// RemoteAddr is the source address the connection arrived from.
	RemoteAddr string

	// UserID is the token's subject, or empty for an anonymous session.
	UserID string

	// RoomID is the room the session's token authorizes, or empty when the
	// session connected without a token.
	RoomID string

	ConnectedAt time.Time
}

// Anonymous reports whether the session connected without a token.
func (s *Session) Anonymous() bool { return s.UserID == "" }
