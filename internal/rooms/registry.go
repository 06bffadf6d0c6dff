// Package rooms tracks room membership and enforces the two-peer capacity
// that makes the broker strictly pairwise.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/store"
)

// MaxMembers is the hard per-room capacity. Two peers make a call; a third
// party is never admitted.
const MaxMembers = 2

const recordPrefix = "room:"

// record is the durable part of a room: the write-once password hash.
// Membership is in-process state, since members are live sockets on this node.
type record struct {
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Registry owns rooms and their membership sets.
type Registry struct {
	store store.Store
	log   logging.LeveledLogger

	mu       sync.Mutex
	members  map[string][]string // room id -> session ids, len <= MaxMembers
	sessions map[string]string   // session id -> room id
}

// NewRegistry creates an empty registry persisting room records to st.
func NewRegistry(st store.Store, log logging.LeveledLogger) *Registry {
	return &Registry{
		store:    st,
		log:      log,
		members:  make(map[string][]string),
		sessions: make(map[string]string),
	}
}

// Join adds the session to roomID and returns the session ids of members that
// were already present, so the caller can announce the newcomer to them.
//
// authorizedRoom is the room id bound to the session's token, or empty for an
// anonymous session. A bound session may only join the room it was issued for.
//
// A session that is already in a room is rejected; it must leave first.
func (r *Registry) Join(ctx context.Context, sessionID, roomID, authorizedRoom string) ([]string, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if authorizedRoom != "" && authorizedRoom != roomID {
		return nil, ErrNotAuthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		return nil, ErrAlreadyInRoom
	}

	current := r.members[roomID]
	if len(current) >= MaxMembers {
		return nil, ErrRoomFull
	}

	peers := make([]string, len(current))
	copy(peers, current)

	r.members[roomID] = append(current, sessionID)
	r.sessions[sessionID] = roomID

	r.log.Infof("room join: room=%s session=%s occupancy=%d", roomID, sessionID, len(current)+1)
	return peers, nil
}

// Leave removes the session from whichever room it occupies and returns that
// room id plus the remaining members. When the last member leaves, the room
// and its record are discarded. A session that is in no room is a no-op.
func (r *Registry) Leave(ctx context.Context, sessionID string) (string, []string) {
	r.mu.Lock()

	roomID, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return "", nil
	}
	delete(r.sessions, sessionID)

	current := r.members[roomID]
	remaining := make([]string, 0, len(current))
	for _, id := range current {
		if id != sessionID {
			remaining = append(remaining, id)
		}
	}

	empty := len(remaining) == 0
	if empty {
		delete(r.members, roomID)
	} else {
		r.members[roomID] = remaining
	}
	r.mu.Unlock()

	if empty {
		if err := r.store.Delete(ctx, recordPrefix+roomID); err != nil {
			r.log.Warnf("room record cleanup failed: room=%s err=%v", roomID, err)
		}
		r.log.Infof("room destroyed: room=%s", roomID)
	} else {
		r.log.Infof("room leave: room=%s session=%s occupancy=%d", roomID, sessionID, len(remaining))
	}
	return roomID, remaining
}

// Occupancy returns the current member count of roomID.
func (r *Registry) Occupancy(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[roomID])
}

// Members returns the session ids currently in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.members[roomID]
	out := make([]string, len(current))
	copy(out, current)
	return out
}

// SetPassword stores the password hash for roomID. The hash is write-once for
// the room's lifetime; a second assignment fails with ErrPasswordAlreadySet.
func (r *Registry) SetPassword(ctx context.Context, roomID, passwordHash string) error {
	key := recordPrefix + roomID

	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load room record: %w", err)
	}
	rec := record{CreatedAt: time.Now()}
	if ok {
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode room record: %w", err)
		}
		if rec.PasswordHash != "" {
			return ErrPasswordAlreadySet
		}
	}
	rec.PasswordHash = passwordHash

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room record: %w", err)
	}
	if err := r.store.Set(ctx, key, encoded); err != nil {
		return fmt.Errorf("save room record: %w", err)
	}

	r.log.Infof("room password set: room=%s", roomID)
	return nil
}

// PasswordHash returns the stored hash for roomID. The second return is false
// when the room has no password set.
func (r *Registry) PasswordHash(ctx context.Context, roomID string) (string, bool, error) {
	raw, ok, err := r.store.Get(ctx, recordPrefix+roomID)
	if err != nil {
		return "", false, fmt.Errorf("load room record: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", false, fmt.Errorf("decode room record: %w", err)
	}
	if rec.PasswordHash == "" {
		return "", false, nil
	}
	return rec.PasswordHash, true, nil
}
