package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shelfx/shelfx-chat/internal/store"
)

var (
	errConnClosed  = errors.New("connection closed")
	errPushTimeout = errors.New("outbound queue full")
)

// Conn is one live transport session of a user as seen by the core layer.
// The transport drains Outbound and stops once Done is closed.
type Conn struct {
	Handle      string
	UserID      string
	ConnectedAt time.Time

	outbound  chan *Event
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	joined     map[string]*store.Conversation
	handshaken bool
}

func newConn(handle, userID string, buffer int, now time.Time) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		Handle:      handle,
		UserID:      userID,
		ConnectedAt: now,
		outbound:    make(chan *Event, buffer),
		done:        make(chan struct{}),
		joined:      make(map[string]*store.Conversation),
	}
}

// Outbound is the ordered queue of events for this connection.
func (c *Conn) Outbound() <-chan *Event {
	return c.outbound
}

// Done is closed when the connection is unregistered.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the connection was unregistered.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Joined returns the conversation if this connection joined it.
func (c *Conn) Joined(conversationID string) (*store.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.joined[conversationID]
	return conv, ok
}

// JoinedConversations returns a copy of the joined set.
func (c *Conn) JoinedConversations() []*store.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*store.Conversation, 0, len(c.joined))
	for _, conv := range c.joined {
		out = append(out, conv)
	}
	return out
}

// join records conv. Returns true if newly added.
func (c *Conn) join(conv *store.Conversation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.joined[conv.ID]; exists {
		return false
	}
	c.joined[conv.ID] = conv
	return true
}

// beginHandshake returns true only for the first handshake of the connection.
func (c *Conn) beginHandshake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handshaken {
		return false
	}
	c.handshaken = true
	return true
}

func (c *Conn) resetHandshake() {
	c.mu.Lock()
	c.handshaken = false
	c.mu.Unlock()
}

// push queues ev, waiting at most timeout for room in the queue. Unregistering the
// connection aborts a pending push.
func (c *Conn) push(ctx context.Context, ev *Event, timeout time.Duration) error {
	if c.Closed() {
		return errConnClosed
	}

	select {
	case c.outbound <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.outbound <- ev:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errPushTimeout
	}
}
