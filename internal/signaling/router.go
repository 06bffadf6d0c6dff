package signaling

import (
	"encoding/json"

	"github.com/pion/logging"
)

// Directory resolves delivery targets for the router. The hub implements it.
type Directory interface {
	// Deliver queues a frame for the given connection. It reports false when
	// the connection is gone or its queue is full; the frame is then dropped.
	Deliver(sessionID string, frame []byte) bool

	// RoomMembers returns the session ids currently in roomID.
	RoomMembers(roomID string) []string
}

// Router relays call-setup messages between connections, keyed by the target
// ids callers supply. Payloads stay opaque and delivery is fire-and-forget:
// no retries, no acknowledgements, no buffering. Callers implement their own
// timeout and retry above this layer.
type Router struct {
	dir Directory
	log logging.LeveledLogger
}

// NewRouter creates a router delivering through dir.
func NewRouter(dir Directory, log logging.LeveledLogger) *Router {
	return &Router{dir: dir, log: log}
}

// CallOffer delivers an encrypted offer to targetID, tagged with the caller's
// connection id.
func (r *Router) CallOffer(targetID string, signal json.RawMessage, fromID string) {
	frame, err := encode(EventCallUser, CallUserEvent{Signal: signal, From: fromID})
	if err != nil {
		r.log.Errorf("encode offer frame: %v", err)
		return
	}
	if !r.dir.Deliver(targetID, frame) {
		r.log.Debugf("offer dropped: target=%s not reachable", targetID)
	}
}

// CallAnswer delivers an encrypted answer to targetID.
func (r *Router) CallAnswer(targetID string, signal json.RawMessage) {
	frame, err := encode(EventCallAccepted, signal)
	if err != nil {
		r.log.Errorf("encode answer frame: %v", err)
		return
	}
	if !r.dir.Deliver(targetID, frame) {
		r.log.Debugf("answer dropped: target=%s not reachable", targetID)
	}
}

// CallEnd tells every member of roomID except the sender that the call is
// over.
func (r *Router) CallEnd(roomID, fromID string) {
	frame, err := encode(EventCallEnded, nil)
	if err != nil {
		r.log.Errorf("encode end frame: %v", err)
		return
	}
	for _, memberID := range r.dir.RoomMembers(roomID) {
		if memberID == fromID {
			continue
		}
		if !r.dir.Deliver(memberID, frame) {
			r.log.Debugf("call end dropped: target=%s not reachable", memberID)
		}
	}
}
