package chat

import (
	"sync"
	"time"
)

type typingKey struct {
	username string
	room     string
}

// typingEntry is one armed expiry timer plus the generation it was
// armed under, so a callback from an older arming can recognize that a
// refresh has superseded it.
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// typingTracker keeps at most one active typing timer per (user, room).
// A typing signal arms or refreshes the timer; if it expires before a
// stopTyping or renewed typing arrives, the expire callback synthesizes
// the stopTyping.
type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	gen    uint64
	timers map[typingKey]*typingEntry
	expire func(username, room string)
}

func newTypingTracker(ttl time.Duration, expire func(username, room string)) *typingTracker {
	return &typingTracker{
		ttl:    ttl,
		timers: make(map[typingKey]*typingEntry),
		expire: expire,
	}
}

// touch arms a fresh expiry timer for the pair, replacing any armed one.
// A previous timer that fired concurrently finds its generation stale
// and does not expire the refreshed indicator.
func (t *typingTracker) touch(username, room string) {
	k := typingKey{username, room}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.timers[k]; ok {
		e.timer.Stop()
	}
	t.gen++
	gen := t.gen
	e := &typingEntry{gen: gen}
	e.timer = time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		cur, ok := t.timers[k]
		if !ok || cur.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.timers, k)
		t.mu.Unlock()
		t.expire(k.username, k.room)
	})
	t.timers[k] = e
}

// cancel stops the timer for the pair without firing the callback.
func (t *typingTracker) cancel(username, room string) {
	k := typingKey{username, room}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.timers[k]; ok {
		e.timer.Stop()
		delete(t.timers, k)
	}
}

// active reports whether a timer is armed for the pair.
func (t *typingTracker) active(username, room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{username, room}]
	return ok
}
