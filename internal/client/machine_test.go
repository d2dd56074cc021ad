package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shrishabayari/messageHub/internal/chat"
)

// fakeTransport is an in-memory Transport. serve queues frames for the
// machine to read; fail simulates an abnormal closure.
type fakeTransport struct {
	mu        sync.Mutex
	writes    []chat.Event
	in        chan []byte
	done      chan struct{}
	err       error
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return nil, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	var ev chat.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.err = ErrNormalClose
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeTransport) fail() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.err = errors.New("connection reset by peer")
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeTransport) serve(ev chat.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	f.in <- data
}

func (f *fakeTransport) written() []chat.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]chat.Event, len(f.writes))
	copy(result, f.writes)
	return result
}

// acceptingTransport returns a transport that will approve the auth
// handshake.
func acceptingTransport(username string) *fakeTransport {
	tr := newFakeTransport()
	tr.serve(chat.Event{Type: chat.TypeAuthSuccess, Username: username})
	return tr
}

func waitForState(t *testing.T, c *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, c.State())
}

func drainStatuses(c *Conn) []Status {
	var result []Status
	for {
		select {
		case ev := <-c.Events():
			if ev.Status != nil {
				result = append(result, *ev.Status)
			}
		default:
			return result
		}
	}
}

func TestConnectAuthenticates(t *testing.T) {
	tr := acceptingTransport("alice")
	c := New(Options{
		Username: "alice",
		Dial:     func(ctx context.Context) (Transport, error) { return tr, nil },
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("expected Connected, got %s", c.State())
	}

	writes := tr.written()
	if len(writes) != 1 || writes[0].Type != chat.TypeAuth || writes[0].Username != "alice" {
		t.Fatalf("expected a single auth frame for alice, got %v", writes)
	}
}

func TestConnectAuthRejectedNoRetry(t *testing.T) {
	var dials atomic.Int32
	c := New(Options{
		Username:      "alice",
		RetryInterval: 10 * time.Millisecond,
		Dial: func(ctx context.Context) (Transport, error) {
			dials.Add(1)
			tr := newFakeTransport()
			tr.serve(chat.Event{Type: chat.TypeError, Message: "Username already taken! Please join with another name."})
			return tr, nil
		},
	})

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected Disconnected after rejection, got %s", c.State())
	}

	// No automatic retry: the same name would be rejected again.
	time.Sleep(100 * time.Millisecond)
	if dials.Load() != 1 {
		t.Fatalf("expected no reconnection attempts, got %d dials", dials.Load())
	}
}

func TestDialFailureReportedToCaller(t *testing.T) {
	dialErr := errors.New("connection refused")
	c := New(Options{
		Username: "alice",
		Dial:     func(ctx context.Context) (Transport, error) { return nil, dialErr },
	})

	if err := c.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected Disconnected, got %s", c.State())
	}
}

func TestReconnectExhaustionEntersFailed(t *testing.T) {
	var dials atomic.Int32
	first := acceptingTransport("alice")
	c := New(Options{
		Username:      "alice",
		RetryInterval: 10 * time.Millisecond,
		MaxAttempts:   5,
		Dial: func(ctx context.Context) (Transport, error) {
			if dials.Add(1) == 1 {
				return first, nil
			}
			return nil, errors.New("connection refused")
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	first.fail()
	waitForState(t, c, StateFailed)

	// One initial dial plus exactly five retries.
	if got := dials.Load(); got != 6 {
		t.Fatalf("expected 6 dials (1 + 5 retries), got %d", got)
	}

	var attempts []int
	for _, st := range drainStatuses(c) {
		if st.State == StateReconnecting {
			attempts = append(attempts, st.Attempt)
		}
	}
	if len(attempts) != 5 {
		t.Fatalf("expected 5 reconnecting statuses, got %v", attempts)
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Fatalf("expected attempt sequence 1..5, got %v", attempts)
		}
	}

	// Failed is terminal: no further dialing.
	time.Sleep(100 * time.Millisecond)
	if dials.Load() != 6 {
		t.Fatalf("expected no dials after Failed, got %d", dials.Load())
	}
}

func TestRetryDelayLinear(t *testing.T) {
	interval := 3 * time.Second
	var prev time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		d := retryDelay(interval, attempt)
		if d != time.Duration(attempt)*interval {
			t.Fatalf("retryDelay(%d) = %v", attempt, d)
		}
		if d < prev {
			t.Fatalf("backoff decreased: %v after %v", d, prev)
		}
		prev = d
	}
}

func TestReconnectSuccessResetsAttempts(t *testing.T) {
	var dials atomic.Int32
	transports := []*fakeTransport{
		acceptingTransport("alice"),
		acceptingTransport("alice"),
	}
	c := New(Options{
		Username:      "alice",
		RetryInterval: 10 * time.Millisecond,
		MaxAttempts:   5,
		Dial: func(ctx context.Context) (Transport, error) {
			n := dials.Add(1)
			if int(n) <= len(transports) {
				return transports[n-1], nil
			}
			return nil, errors.New("connection refused")
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	drainStatuses(c)

	transports[0].fail()
	waitForState(t, c, StateConnected)

	// The second connection succeeded, so the counter must be back at
	// zero: the next failure starts over at attempt 1.
	transports[1].fail()
	ok := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !ok {
		for _, st := range drainStatuses(c) {
			if st.State == StateReconnecting {
				if st.Attempt != 1 {
					t.Fatalf("expected attempt counter reset to 1, got %d", st.Attempt)
				}
				ok = true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok {
		t.Fatal("never observed a reconnecting status after second failure")
	}
}

func TestQueueFlushedFIFOOnReconnect(t *testing.T) {
	var dials atomic.Int32
	first := acceptingTransport("alice")
	second := acceptingTransport("alice")
	release := make(chan struct{})
	c := New(Options{
		Username:      "alice",
		RetryInterval: 10 * time.Millisecond,
		MaxAttempts:   5,
		Dial: func(ctx context.Context) (Transport, error) {
			if dials.Add(1) == 1 {
				return first, nil
			}
			<-release
			return second, nil
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	first.fail()
	// Messages composed while the connection is down are queued.
	c.Send("general", "one")
	c.Send("general", "two")
	c.Send("general", "three")
	if c.QueuedMessages() != 3 {
		t.Fatalf("expected 3 queued messages, got %d", c.QueuedMessages())
	}

	close(release)
	waitForState(t, c, StateConnected)

	writes := second.written()
	if len(writes) != 4 {
		t.Fatalf("expected auth + 3 flushed messages, got %v", writes)
	}
	if writes[0].Type != chat.TypeAuth {
		t.Fatalf("expected auth first, got %v", writes[0])
	}
	for i, want := range []string{"one", "two", "three"} {
		got := writes[i+1]
		if got.Type != chat.TypeMessage || got.Content != want {
			t.Fatalf("expected message %q at position %d, got %v", want, i+1, got)
		}
	}
	if c.QueuedMessages() != 0 {
		t.Fatalf("expected empty queue after flush, got %d", c.QueuedMessages())
	}
}

func TestCloseIsNormalClosure(t *testing.T) {
	var dials atomic.Int32
	tr := acceptingTransport("alice")
	c := New(Options{
		Username:      "alice",
		RetryInterval: 10 * time.Millisecond,
		Dial: func(ctx context.Context) (Transport, error) {
			dials.Add(1)
			return tr, nil
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitForState(t, c, StateDisconnected)
	time.Sleep(100 * time.Millisecond)
	if dials.Load() != 1 {
		t.Fatalf("expected no reconnection after normal closure, got %d dials", dials.Load())
	}
}

func TestCloseDuringConnectWinsOverDial(t *testing.T) {
	release := make(chan struct{})
	tr := acceptingTransport("alice")
	c := New(Options{
		Username: "alice",
		Dial: func(ctx context.Context) (Transport, error) {
			<-release
			return tr, nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()
	waitForState(t, c, StateConnecting)

	// The user closes while the dial is still in flight. The connection
	// completing afterwards must not resurrect the machine.
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(release)
	<-done

	if got := c.State(); got != StateDisconnected {
		t.Fatalf("expected Disconnected after racing close, got %s", got)
	}
	select {
	case <-tr.done:
	default:
		t.Fatal("expected the late transport to be torn down")
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	c := New(Options{Username: "alice", Dial: func(ctx context.Context) (Transport, error) {
		return nil, errors.New("unused")
	}})

	if err := c.Join("general"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected for join, got %v", err)
	}
	if err := c.SetTyping("general", true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected for typing, got %v", err)
	}
	// Sending is different: messages queue for later delivery.
	if err := c.Send("general", "hello"); err != nil {
		t.Fatalf("expected send to queue, got %v", err)
	}
	if c.QueuedMessages() != 1 {
		t.Fatalf("expected 1 queued message, got %d", c.QueuedMessages())
	}
}

func TestServerEventsForwarded(t *testing.T) {
	tr := acceptingTransport("alice")
	c := New(Options{
		Username: "alice",
		Dial:     func(ctx context.Context) (Transport, error) { return tr, nil },
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.serve(chat.Event{Type: chat.TypeMessage, Username: "bob", Room: "general", Content: "hi"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-c.Events():
			if ev.Server != nil && ev.Server.Type == chat.TypeMessage {
				if ev.Server.Username != "bob" || ev.Server.Content != "hi" {
					t.Fatalf("unexpected message event %+v", ev.Server)
				}
				return
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("timed out waiting for forwarded message event")
}
