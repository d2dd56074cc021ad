package message

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Message is a chat message stored in a room's history and broadcast to
// its occupants. Messages are immutable once stored.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewID returns a message ID combining the current millisecond timestamp
// with a random hex suffix so messages created in the same millisecond
// never collide.
func NewID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
