package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/shelfx/shelfx-chat/internal/store"
)

const minPersistBackoff = 10 * time.Millisecond

// Send persists body as a message from the connection's user and delivers it to the
// counterparty's live connections and the sender's other connections. Sends within
// one conversation are applied one at a time in commit order.
func (h *Hub) Send(ctx context.Context, handle, conversationID, body string) (*store.Message, error) {
	c, err := h.conn(handle)
	if err != nil {
		return nil, err
	}

	conv, ok := c.Joined(conversationID)
	if !ok {
		h.metrics.SendFailed(ErrCodeNotJoined)
		return nil, ErrNotJoined
	}

	body = strings.TrimSpace(body)
	if body == "" {
		h.metrics.SendFailed(ErrCodeBadRequest)
		return nil, coreError(ErrCodeBadRequest, "message body is empty")
	}
	if h.cfg.MaxBodyLength > 0 && utf8.RuneCountInString(body) > h.cfg.MaxBodyLength {
		h.metrics.SendFailed(ErrCodeBadRequest)
		return nil, coreError(ErrCodeBadRequest, "message body is too long")
	}

	msg, delivered, err := h.commit(ctx, c, conv, body)
	if err != nil {
		return nil, err
	}

	// Stamped outside the ordered section; the update is idempotent.
	if delivered {
		ctx = context.WithoutCancel(ctx)
		at := h.now()
		err := h.retry(ctx, func() error { return h.store.MarkDelivered(ctx, msg.ID, at) })
		if err != nil {
			h.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("mark delivered")
		} else {
			msg.DeliveredAt = &at
		}
	}
	return msg, nil
}

// commit persists the message and fans it out while holding the conversation's
// sequencer, so every connection sees commit order.
func (h *Hub) commit(ctx context.Context, c *Conn, conv *store.Conversation, body string) (*store.Message, bool, error) {
	unlock := h.seq.Lock(conv.ID)
	defer unlock()

	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       c.UserID,
		Body:           body,
		SentAt:         h.now(),
	}
	if err := h.retry(ctx, func() error { return h.store.InsertMessage(ctx, msg) }); err != nil {
		h.metrics.SendFailed(ErrCodePersistence)
		h.log.Error().Err(err).Str("conn", c.Handle).Str("conversation_id", conv.ID).Msg("persist message")
		return nil, false, wrap(ErrPersistence, err)
	}
	h.metrics.MessageSent()

	// Once persisted, the message is delivered even if the sender goes away.
	ctx = context.WithoutCancel(ctx)

	recipient := conv.Counterparty(c.UserID)
	payload := *msg
	delivered, viewed := h.fanout(ctx, recipient, conv.ID, &Event{Kind: EventMessage, Message: &payload}, nil)

	if !viewed {
		count := h.unread.Increment(recipient, conv.ID, msg.ID)
		h.metrics.UnreadIncremented()
		h.pushUnread(ctx, recipient, conv.ID, count)
	}

	echo := *msg
	h.fanout(ctx, c.UserID, conv.ID, &Event{Kind: EventMessage, Message: &echo}, c)

	return msg, delivered, nil
}

// fanout pushes ev to every live connection of userID except skip, concurrently.
// delivered reports at least one successful push; viewed reports a successful push
// to a connection that joined conversationID.
func (h *Hub) fanout(ctx context.Context, userID, conversationID string, ev *Event, skip *Conn) (delivered, viewed bool) {
	var wg sync.WaitGroup
	var anyDelivered, anyViewed atomic.Bool

	for _, conn := range h.registry.ConnectionsFor(userID) {
		if conn == skip {
			continue
		}
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			if err := conn.push(ctx, ev, h.cfg.PushTimeout); err != nil {
				h.metrics.PushFailed()
				h.log.Warn().Err(wrap(ErrTransport, err)).Str("conn", conn.Handle).Str("event", ev.Kind.String()).Msg("push failed")
				return
			}
			anyDelivered.Store(true)
			if _, ok := conn.Joined(conversationID); ok {
				anyViewed.Store(true)
			}
		}(conn)
	}
	wg.Wait()

	return anyDelivered.Load(), anyViewed.Load()
}

// retry runs op with exponential backoff, at most PersistRetries extra attempts.
func (h *Hub) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(h.cfg.PersistBackoff, minPersistBackoff)
	b.MaxElapsedTime = 0

	retries := uint64(max(h.cfg.PersistRetries, 0))
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}
