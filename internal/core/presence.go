package core

import (
	"context"

	"github.com/shelfx/shelfx-chat/internal/store"
)

// Handshake runs when a connection asks for its unread state. The first handshake of
// each connection rebuilds the user's counts from persisted unread messages, which are
// authoritative over memory, and pushes the snapshot to all of the user's connections.
// Later handshakes push the current snapshot to this connection only.
func (h *Hub) Handshake(ctx context.Context, handle string) (map[string]int, error) {
	c, err := h.conn(handle)
	if err != nil {
		return nil, err
	}

	if !c.beginHandshake() {
		counts := h.unread.Snapshot(c.UserID)
		h.pushTo(ctx, c, &Event{Kind: EventUnreadSnapshot, Counts: counts})
		return counts, nil
	}

	since := h.unread.Generation(c.UserID)
	var (
		unread    []*store.Message
		highWater int64
	)
	err = h.retry(ctx, func() error {
		var qerr error
		unread, highWater, qerr = h.store.UnreadMessagesFor(ctx, c.UserID)
		return qerr
	})
	if err != nil {
		c.resetHandshake()
		h.log.Error().Err(err).Str("conn", c.Handle).Str("user_id", c.UserID).Msg("reconcile unread counts")
		counts := h.unread.Snapshot(c.UserID)
		h.pushTo(ctx, c, &Event{Kind: EventUnreadSnapshot, Counts: counts})
		return counts, wrap(ErrPersistence, err)
	}

	counts := h.unread.Reconcile(c.UserID, since, unread, highWater)
	h.log.Debug().Str("user_id", c.UserID).Int("conversations", len(counts)).Int("unread", len(unread)).Msg("unread counts reconciled")
	h.enqueueMirror(mirrorOp{kind: mirrorSnapshot, userID: c.UserID, counts: counts})

	for _, conn := range h.registry.ConnectionsFor(c.UserID) {
		h.pushTo(ctx, conn, &Event{Kind: EventUnreadSnapshot, Counts: counts})
	}
	return counts, nil
}

// Snapshot returns the user's current unread counts.
func (h *Hub) Snapshot(userID string) map[string]int {
	return h.unread.Snapshot(userID)
}

// IsOnline reports the user's presence.
func (h *Hub) IsOnline(userID string) bool {
	return h.registry.IsOnline(userID)
}

// announceJoin tells the joiner whether the counterparty is online and tells the
// counterparty's connections viewing the conversation that the joiner is here.
func (h *Hub) announceJoin(ctx context.Context, c *Conn, conv *store.Conversation) {
	other := conv.Counterparty(c.UserID)
	h.pushTo(ctx, c, &Event{Kind: EventPresence, UserID: other, Online: h.registry.IsOnline(other)})
	h.broadcastPresence(ctx, c.UserID, true, []*store.Conversation{conv})
}

// broadcastPresence pushes userID's presence to counterparty connections that joined
// one of convs. Each connection is notified once.
func (h *Hub) broadcastPresence(ctx context.Context, userID string, online bool, convs []*store.Conversation) {
	ev := &Event{Kind: EventPresence, UserID: userID, Online: online}
	notified := make(map[*Conn]struct{})
	for _, conv := range convs {
		other := conv.Counterparty(userID)
		if other == "" {
			continue
		}
		for _, conn := range h.registry.ConnectionsFor(other) {
			if _, done := notified[conn]; done {
				continue
			}
			if _, ok := conn.Joined(conv.ID); !ok {
				continue
			}
			notified[conn] = struct{}{}
			h.pushTo(ctx, conn, ev)
		}
	}
}

// pushUnread sends the conversation's new count to every live connection of userID.
func (h *Hub) pushUnread(ctx context.Context, userID, conversationID string, count int) {
	h.enqueueMirror(mirrorOp{kind: mirrorUnread, userID: userID, conversationID: conversationID, count: count})
	ev := &Event{Kind: EventUnreadCount, ConversationID: conversationID, Count: count}
	for _, conn := range h.registry.ConnectionsFor(userID) {
		h.pushTo(ctx, conn, ev)
	}
}

func (h *Hub) pushTo(ctx context.Context, c *Conn, ev *Event) {
	if err := c.push(ctx, ev, h.cfg.PushTimeout); err != nil {
		h.metrics.PushFailed()
		h.log.Debug().Err(err).Str("conn", c.Handle).Str("event", ev.Kind.String()).Msg("push skipped")
	}
}
