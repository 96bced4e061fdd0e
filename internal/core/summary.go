package core

import (
	"context"

	"github.com/samber/lo"

	"github.com/shelfx/shelfx-chat/internal/store"
)

const maxHistory = 100

// ConversationSummary is one row of a user's active chats list.
type ConversationSummary struct {
	Conversation       *store.Conversation
	CounterpartyID     string
	CounterpartyOnline bool
	Unread             int
}

// Conversations lists the user's conversations with unread counts and presence.
func (h *Hub) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	convs, err := h.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	counts := h.unread.Snapshot(userID)

	return lo.Map(convs, func(conv *store.Conversation, _ int) ConversationSummary {
		other := conv.Counterparty(userID)
		return ConversationSummary{
			Conversation:       conv,
			CounterpartyID:     other,
			CounterpartyOnline: h.registry.IsOnline(other),
			Unread:             counts[conv.ID],
		}
	}), nil
}

// History returns up to limit messages of the conversation, oldest first, for a participant.
func (h *Hub) History(ctx context.Context, userID, conversationID string, limit int, beforeID *int64) ([]*store.Message, error) {
	conv, err := h.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrUnauthorized
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	messages, err := h.store.ListMessages(ctx, conversationID, limit, beforeID)
	if err != nil {
		return nil, wrap(ErrPersistence, err)
	}
	return messages, nil
}
