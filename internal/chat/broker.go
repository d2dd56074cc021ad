package chat

import (
	"encoding/json"
	"errors"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/Shrishabayari/messageHub/internal/message"
	"github.com/Shrishabayari/messageHub/internal/room"
)

const (
	// defaultReplay is the number of stored messages replayed to a
	// session joining a room.
	defaultReplay = 20

	// defaultTypingTTL is how long a typing indicator stays alive
	// without a refresh before a stopTyping is synthesized.
	defaultTypingTTL = 3 * time.Second
)

// usernamePattern matches valid display names: 1-20 chars, alphanumeric
// plus underscore and dash.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// Sender is the outbound side of a client connection. Send must not
// block; it reports false when the connection can no longer accept
// data (buffer full or closed), in which case the broker drops the
// connection rather than stalling fan-out to others.
type Sender interface {
	Send(data []byte) bool
	Close(reason string)
}

// session is the per-connection state owned by the broker. A session
// with an empty username has not authenticated yet.
type session struct {
	username string
	room     string
}

// Broker routes inbound client events to room and session mutations and
// fans resulting events out to the affected connections. All session and
// membership mutations are serialized behind its mutex so the occupant
// set of a room is always exactly the authenticated sessions pointing
// at it.
type Broker struct {
	mu       sync.Mutex
	registry *room.Registry
	history  message.History
	sessions map[Sender]*session
	names    map[string]Sender
	typing   *typingTracker

	replay    int
	typingTTL time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithReplay sets how many stored messages are replayed on room join.
func WithReplay(n int) Option {
	return func(b *Broker) { b.replay = n }
}

// WithTypingTTL sets the typing indicator expiry.
func WithTypingTTL(d time.Duration) Option {
	return func(b *Broker) { b.typingTTL = d }
}

// NewBroker creates a Broker over the given room registry and history store.
func NewBroker(registry *room.Registry, history message.History, opts ...Option) *Broker {
	b := &Broker{
		registry:  registry,
		history:   history,
		sessions:  make(map[Sender]*session),
		names:     make(map[string]Sender),
		replay:    defaultReplay,
		typingTTL: defaultTypingTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.typing = newTypingTracker(b.typingTTL, b.expireTyping)
	return b
}

// Register adds a new, not-yet-authenticated connection.
func (b *Broker) Register(s Sender) {
	b.mu.Lock()
	b.sessions[s] = &session{}
	b.mu.Unlock()
}

// Disconnect removes a connection. If its session occupies a room this
// performs the same leave transition as an explicit leaveRoom, then
// releases the display name for reuse.
func (b *Broker) Disconnect(s Sender) {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.sessions, s)

	var targets []Sender
	var left *Event
	if sess.username != "" {
		if b.names[sess.username] == s {
			delete(b.names, sess.username)
		}
		if sess.room != "" {
			b.registry.RemoveOccupant(sess.room, sess.username)
			b.typing.cancel(sess.username, sess.room)
			targets = b.roomTargetsLocked(sess.room, nil)
			left = &Event{Type: TypeUserLeft, Username: sess.username, Room: sess.room}
		}
	}
	b.mu.Unlock()

	if left != nil {
		b.deliver(targets, left)
	}
}

// Handle decodes a raw wire frame from a connection and dispatches it.
// Malformed JSON or an unknown type yields an error reply to the sender
// only and no state change.
func (b *Broker) Handle(s Sender, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		b.replyError(s, ErrMalformedPayload)
		return
	}

	switch ev.Type {
	case TypeAuth:
		b.Authenticate(s, ev.Username)
	case TypeJoinRoom:
		b.Join(s, ev.Room)
	case TypeLeaveRoom:
		b.Leave(s, ev.Room)
	case TypeMessage:
		b.SendMessage(s, ev.Room, ev.Content)
	case TypeTyping:
		b.SetTyping(s, ev.Room, true)
	case TypeStopTyping:
		b.SetTyping(s, ev.Room, false)
	case TypeCreateRoom:
		b.CreateRoom(s, ev.RoomID, ev.RoomName)
	default:
		b.replyError(s, ErrMalformedPayload)
	}
}

// Authenticate binds a display name to the connection's session. Names
// must be unique among live authenticated sessions; on failure the
// connection stays unauthenticated and may retry with a different name.
// Re-authenticating under a new name renames the session: its occupant
// entry moves with it and the room observes a leave/join pair, so the
// occupant set never holds a name that no session answers to.
func (b *Broker) Authenticate(s Sender, username string) error {
	if !usernamePattern.MatchString(username) {
		b.replyError(s, ErrInvalidName)
		return ErrInvalidName
	}

	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok {
		b.mu.Unlock()
		return ErrTransportClosed
	}
	if other, taken := b.names[username]; taken && other != s {
		b.mu.Unlock()
		b.replyError(s, ErrNameTaken)
		return ErrNameTaken
	}
	prev := sess.username
	if prev != "" && prev != username {
		delete(b.names, prev)
	}
	sess.username = username
	b.names[username] = s

	var targets []Sender
	var left, joined *Event
	if prev != "" && prev != username && sess.room != "" {
		b.registry.RemoveOccupant(sess.room, prev)
		b.typing.cancel(prev, sess.room)
		b.registry.AddOccupant(sess.room, username)
		targets = b.roomTargetsLocked(sess.room, nil)
		left = &Event{Type: TypeUserLeft, Username: prev, Room: sess.room}
		joined = &Event{Type: TypeUserJoined, Username: username, Room: sess.room}
	}
	b.mu.Unlock()

	if left != nil {
		b.deliver(targets, left)
		b.deliver(targets, joined)
	}
	b.send(s, &Event{Type: TypeAuthSuccess, Username: username})
	return nil
}

// Join moves the session into a room, implicitly leaving its current one
// first. The joiner alone then receives the room's occupant list and the
// most recent stored messages, oldest first.
func (b *Broker) Join(s Sender, roomID string) error {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok || sess.username == "" {
		b.mu.Unlock()
		b.replyError(s, ErrUnauthenticated)
		return ErrUnauthenticated
	}
	if b.registry.Get(roomID) == nil {
		b.mu.Unlock()
		b.replyError(s, ErrRoomNotFound)
		return ErrRoomNotFound
	}

	username := sess.username
	rejoin := sess.room == roomID

	var leftTargets []Sender
	var left *Event
	if !rejoin {
		if sess.room != "" {
			prev := sess.room
			b.registry.RemoveOccupant(prev, username)
			sess.room = ""
			b.typing.cancel(username, prev)
			leftTargets = b.roomTargetsLocked(prev, nil)
			left = &Event{Type: TypeUserLeft, Username: username, Room: prev}
		}
		sess.room = roomID
		b.registry.AddOccupant(roomID, username)
	}
	joinedTargets := b.roomTargetsLocked(roomID, nil)
	users := b.registry.Occupants(roomID)
	b.mu.Unlock()

	if left != nil {
		b.deliver(leftTargets, left)
	}
	if !rejoin {
		b.deliver(joinedTargets, &Event{Type: TypeUserJoined, Username: username, Room: roomID})
	}

	b.send(s, &Event{Type: TypeRoomUsers, Room: roomID, Users: users})
	for _, m := range b.history.Recent(roomID, b.replay) {
		b.send(s, &Event{
			Type:      TypeMessage,
			ID:        m.ID,
			Username:  m.Username,
			Room:      m.Room,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return nil
}

// Leave removes the session from the named room. Leaving a room the
// session is not in is a no-op, not an error.
func (b *Broker) Leave(s Sender, roomID string) error {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok || sess.username == "" || sess.room == "" || sess.room != roomID {
		b.mu.Unlock()
		return nil
	}
	prev, username := sess.room, sess.username
	b.registry.RemoveOccupant(prev, username)
	sess.room = ""
	b.typing.cancel(username, prev)
	targets := b.roomTargetsLocked(prev, nil)
	b.mu.Unlock()

	b.deliver(targets, &Event{Type: TypeUserLeft, Username: username, Room: prev})
	return nil
}

// SendMessage stores and broadcasts a chat message. A message for a room
// the session does not occupy is silently dropped: the client's view was
// stale, not in violation of the protocol.
func (b *Broker) SendMessage(s Sender, roomID, content string) error {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok || sess.username == "" || sess.room != roomID {
		b.mu.Unlock()
		return nil
	}
	msg := &message.Message{
		ID:        message.NewID(),
		Username:  sess.username,
		Room:      roomID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	b.history.Append(msg)
	targets := b.roomTargetsLocked(roomID, nil)
	b.mu.Unlock()

	b.deliver(targets, &Event{
		Type:      TypeMessage,
		ID:        msg.ID,
		Username:  msg.Username,
		Room:      msg.Room,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	return nil
}

// SetTyping fans a typing or stopTyping indicator out to the other
// occupants of the room, never echoing to the sender. A typing signal
// arms the auto-expiry; stopTyping cancels it.
func (b *Broker) SetTyping(s Sender, roomID string, typing bool) error {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok || sess.username == "" || sess.room != roomID {
		b.mu.Unlock()
		return nil
	}
	username := sess.username
	targets := b.roomTargetsLocked(roomID, s)
	b.mu.Unlock()

	if typing {
		b.typing.touch(username, roomID)
		b.deliver(targets, &Event{Type: TypeTyping, Username: username, Room: roomID})
	} else {
		b.typing.cancel(username, roomID)
		b.deliver(targets, &Event{Type: TypeStopTyping, Username: username, Room: roomID})
	}
	return nil
}

// expireTyping synthesizes the stopTyping for a typing indicator whose
// timer ran out. The tracker calls it from the timer goroutine.
func (b *Broker) expireTyping(username, roomID string) {
	b.mu.Lock()
	s, ok := b.names[username]
	if !ok || b.sessions[s] == nil || b.sessions[s].room != roomID {
		b.mu.Unlock()
		return
	}
	targets := b.roomTargetsLocked(roomID, s)
	b.mu.Unlock()

	b.deliver(targets, &Event{Type: TypeStopTyping, Username: username, Room: roomID})
}

// CreateRoom creates a room with an ID normalized from the request and
// announces it to every connection so room lists stay in sync. A name
// collision is reported to the requester only.
func (b *Broker) CreateRoom(s Sender, roomID, roomName string) error {
	b.mu.Lock()
	sess, ok := b.sessions[s]
	if !ok || sess.username == "" {
		b.mu.Unlock()
		b.replyError(s, ErrUnauthenticated)
		return ErrUnauthenticated
	}
	creator := sess.username
	b.mu.Unlock()

	if roomID == "" {
		roomID = roomName
	}
	id := room.NormalizeID(roomID)
	if id == "" || roomName == "" {
		b.replyError(s, ErrMalformedPayload)
		return ErrMalformedPayload
	}

	if _, err := b.registry.Create(id, roomName); err != nil {
		if errors.Is(err, room.ErrAlreadyExists) {
			b.replyError(s, ErrAlreadyExists)
			return ErrAlreadyExists
		}
		b.replyError(s, err)
		return err
	}

	b.mu.Lock()
	targets := make([]Sender, 0, len(b.sessions))
	for t := range b.sessions {
		targets = append(targets, t)
	}
	b.mu.Unlock()

	b.deliver(targets, &Event{Type: TypeRoomCreated, RoomID: id, RoomName: roomName, Creator: creator})
	return nil
}

// SessionCount returns the number of registered connections.
func (b *Broker) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// roomTargetsLocked resolves a room's occupants to their connections,
// optionally excluding one. Callers must hold b.mu.
func (b *Broker) roomTargetsLocked(roomID string, exclude Sender) []Sender {
	occ := b.registry.Occupants(roomID)
	targets := make([]Sender, 0, len(occ))
	for _, name := range occ {
		if t, ok := b.names[name]; ok && t != exclude {
			targets = append(targets, t)
		}
	}
	return targets
}

// deliver sends one event to every target. A target whose buffer is full
// is disconnected in the background so it never stalls the others.
func (b *Broker) deliver(targets []Sender, ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broker: failed to marshal event: %v", err)
		return
	}
	for _, t := range targets {
		if !t.Send(data) {
			go b.drop(t)
		}
	}
}

// drop closes a connection that could not keep up and runs the normal
// disconnect transition for it.
func (b *Broker) drop(s Sender) {
	log.Printf("broker: dropping slow connection")
	s.Close("slow consumer")
	b.Disconnect(s)
}

// send writes one event to a single connection.
func (b *Broker) send(s Sender, ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broker: failed to marshal event: %v", err)
		return
	}
	if !s.Send(data) {
		go b.drop(s)
	}
}

// replyError sends an error frame to the offending connection only.
func (b *Broker) replyError(s Sender, err error) {
	b.send(s, &Event{Type: TypeError, Message: errorText(err)})
}
