package core

import (
	"context"
)

// MarkRead resets the user's unread count for the conversation, stamps read_at on the
// counterparty's unread messages, and syncs the zero count to all of the user's
// connections. It is idempotent and ordered with sends in the same conversation.
func (h *Hub) MarkRead(ctx context.Context, handle, conversationID string) error {
	c, err := h.conn(handle)
	if err != nil {
		return err
	}

	conv, ok := c.Joined(conversationID)
	if !ok {
		conv, err = h.conversation(ctx, conversationID)
		if err != nil {
			return err
		}
	}
	if !conv.HasParticipant(c.UserID) {
		return ErrUnauthorized
	}

	// Sends in this conversation wait, so no message is stamped read in the store
	// while being counted unread in memory.
	unlock := h.seq.Lock(conversationID)
	defer unlock()

	changed := h.unread.MarkRead(c.UserID, conversationID)
	h.pushUnread(ctx, c.UserID, conversationID, 0)

	var stamped int64
	err = h.retry(ctx, func() error {
		var serr error
		stamped, serr = h.store.MarkConversationRead(ctx, conversationID, c.UserID, h.now())
		return serr
	})
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Str("user_id", c.UserID).Msg("stamp read_at")
		return wrap(ErrPersistence, err)
	}
	h.unread.settle(c.UserID, conversationID)

	h.log.Debug().
		Str("conversation_id", conversationID).
		Str("user_id", c.UserID).
		Bool("changed", changed).
		Int64("stamped", stamped).
		Msg("conversation read")
	return nil
}
