package core

import (
	"context"
	"errors"
	"strings"

	"github.com/shelfx/shelfx-chat/internal/store"
)

type authorizeResult struct {
	conv *store.Conversation
	err  error
}

// Join authorizes the connection's user for the book-scoped conversation with
// counterpartyID and records it in the connection's joined set. Repeated joins
// return the same id.
func (h *Hub) Join(ctx context.Context, handle, bookID, counterpartyID string) (string, error) {
	c, err := h.conn(handle)
	if err != nil {
		return "", err
	}

	bookID = strings.TrimSpace(bookID)
	counterpartyID = strings.TrimSpace(counterpartyID)
	if bookID == "" || counterpartyID == "" {
		return "", coreError(ErrCodeBadRequest, "bookId and counterpartyId are required")
	}

	conv, err := h.authorize(ctx, bookID, c.UserID, counterpartyID)
	if err != nil {
		ce, _ := AsCoreError(err)
		if ce != nil {
			h.metrics.Joined(ce.Code)
		}
		h.log.Debug().Err(err).Str("conn", c.Handle).Str("book_id", bookID).Msg("join rejected")
		return "", err
	}

	if c.Closed() {
		return "", ErrTransport
	}

	h.conversations.Store(conv.ID, conv)
	if c.join(conv) {
		h.metrics.Joined("ok")
		h.announceJoin(ctx, c, conv)
	}
	return conv.ID, nil
}

// authorize asks the store, bounded by the join timeout even if the store ignores ctx.
func (h *Hub) authorize(ctx context.Context, bookID, requesterID, counterpartyID string) (*store.Conversation, error) {
	jctx, cancel := context.WithTimeout(ctx, h.cfg.JoinTimeout)
	defer cancel()

	ch := make(chan authorizeResult, 1)
	go func() {
		conv, err := h.store.AuthorizeConversation(jctx, bookID, requesterID, counterpartyID)
		ch <- authorizeResult{conv: conv, err: err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err == nil:
			if !r.conv.HasParticipant(requesterID) {
				return nil, ErrUnauthorized
			}
			return r.conv, nil
		case errors.Is(r.err, store.ErrNotFound):
			return nil, ErrUnauthorized
		case errors.Is(r.err, context.DeadlineExceeded):
			return nil, wrap(ErrTimeout, r.err)
		default:
			return nil, wrap(ErrPersistence, r.err)
		}
	case <-jctx.Done():
		if errors.Is(jctx.Err(), context.DeadlineExceeded) {
			return nil, wrap(ErrTimeout, jctx.Err())
		}
		return nil, wrap(ErrTransport, jctx.Err())
	}
}

// conversation returns the cached conversation, loading it from the store on a miss.
func (h *Hub) conversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	if v, ok := h.conversations.Load(conversationID); ok {
		return v.(*store.Conversation), nil
	}
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, wrap(ErrPersistence, err)
	}
	h.conversations.Store(conv.ID, conv)
	return conv, nil
}

// sharedConversations lists cached conversations userID takes part in.
func (h *Hub) sharedConversations(userID string) []*store.Conversation {
	var out []*store.Conversation
	h.conversations.Range(func(_, v any) bool {
		if conv := v.(*store.Conversation); conv.HasParticipant(userID) {
			out = append(out, conv)
		}
		return true
	})
	return out
}
