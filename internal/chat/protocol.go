package chat

import "time"

// Wire event types. Every frame on the wire is a flat JSON object with a
// "type" discriminator and the fields relevant to that type.
const (
	TypeAuth        = "auth"
	TypeAuthSuccess = "authSuccess"
	TypeError       = "error"
	TypeJoinRoom    = "joinRoom"
	TypeLeaveRoom   = "leaveRoom"
	TypeUserJoined  = "userJoined"
	TypeUserLeft    = "userLeft"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeStopTyping  = "stopTyping"
	TypeCreateRoom  = "createRoom"
	TypeRoomCreated = "roomCreated"
	TypeRoomUsers   = "roomUsers"
)

// Event is the wire representation of every client/server frame. Unused
// fields are omitted from the encoded JSON.
type Event struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Room      string    `json:"room,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Message   string    `json:"message,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	RoomName  string    `json:"roomName,omitempty"`
	Creator   string    `json:"creator,omitempty"`
	Users     []string  `json:"users,omitempty"`
}
