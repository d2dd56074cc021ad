package client

import "github.com/Shrishabayari/messageHub/internal/chat"

// eventQueue holds outbound events composed while the connection is not
// usable. Drained FIFO when the connection comes back.
type eventQueue struct {
	items []chat.Event
}

func (q *eventQueue) push(ev chat.Event) {
	q.items = append(q.items, ev)
}

func (q *eventQueue) drain() []chat.Event {
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	return len(q.items)
}
