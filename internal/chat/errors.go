package chat

import "errors"

// Error kinds surfaced by broker operations. Wire replies carry the
// human-readable text; callers distinguish kinds with errors.Is.
var (
	ErrNameTaken        = errors.New("username already taken")
	ErrInvalidName      = errors.New("invalid username")
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyExists    = errors.New("room already exists")
	ErrMalformedPayload = errors.New("invalid message format")
	ErrTransportClosed  = errors.New("transport closed")
)

// errorText returns the message sent in an error reply for the given kind.
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrNameTaken):
		return "Username already taken! Please join with another name."
	case errors.Is(err, ErrAlreadyExists):
		return "Room already exists"
	case errors.Is(err, ErrMalformedPayload):
		return "Invalid message format"
	default:
		return err.Error()
	}
}
