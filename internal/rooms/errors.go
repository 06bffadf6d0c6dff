package rooms

import "errors"

var (
	// ErrInvalidRoomID means the room id failed format validation.
	ErrInvalidRoomID = errors.New("invalid room id")

	// ErrNotAuthorized means the session's token was bound to a different room.
	ErrNotAuthorized = errors.New("not authorized for this room")

	// ErrRoomFull means the room already has two members.
	ErrRoomFull = errors.New("room full")

	// ErrAlreadyInRoom means the session tried to join while still occupying
	// a room slot.
	ErrAlreadyInRoom = errors.New("already in a room")

	// ErrPasswordAlreadySet means a password was supplied for a room whose
	// password is already assigned. Passwords are write-once per room.
	ErrPasswordAlreadySet = errors.New("room already has a password")
)
