package rooms

import "regexp"

// Room ids are rendezvous names typed or shared by users: at least 6
// characters, letters, digits, '-' and '_' only.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// ValidateRoomID checks the room id format. It runs before any state lookup
// so malformed input never touches the registry.
func ValidateRoomID(roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return ErrInvalidRoomID
	}
	return nil
}
