package signaling

import "encoding/json"

// Event names the realtime message kinds exchanged with clients.
type Event string

const (
	// Client to server.
	EventJoinRoom   Event = "joinRoom"
	EventCallUser   Event = "callUser"
	EventAnswerCall Event = "answerCall"
	EventEndCall    Event = "endCall"

	// Server to client.
	EventMe           Event = "me"
	EventUserJoined   Event = "userJoined"
	EventCallAccepted Event = "callAccepted"
	EventCallEnded    Event = "callEnded"
	EventRoomFull     Event = "roomFull"
	EventError        Event = "error"
)

// Envelope is the wire frame for every realtime message, both directions.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CallUserRequest asks the broker to deliver an encrypted offer to another
// connection. SignalData is ciphertext the broker never parses.
type CallUserRequest struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
}

// CallUserEvent is the offer as delivered to the callee.
type CallUserEvent struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// AnswerCallRequest carries the encrypted answer back to the caller.
type AnswerCallRequest struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// ErrorEvent is a user-safe failure report.
type ErrorEvent struct {
	Message string `json:"message"`
}

// encode builds an Envelope frame. data may be nil for data-less events.
func encode(event Event, data interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
