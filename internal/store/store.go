package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row, including when no
// buyer/seller relationship exists for a conversation request.
var ErrNotFound = errors.New("not found")

// RequestStatus mirrors the marketplace's book request lifecycle.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// Conversation is the two-party, book-scoped channel between a buyer and a seller.
// It is immutable once created and unique per (BookID, BuyerID, SellerID).
type Conversation struct {
	ID        string
	BookID    string
	BuyerID   string
	SellerID  string
	CreatedAt time.Time
}

// Counterparty returns the other participant, or "" if userID is not a party.
func (c *Conversation) Counterparty(userID string) string {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	default:
		return ""
	}
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.BuyerID || userID == c.SellerID)
}

// Message represents a persisted chat message. DeliveredAt and ReadAt are each set at most once.
type Message struct {
	ID             int64
	ConversationID string
	SenderID       string
	Body           string
	SentAt         time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}

// ConversationStore resolves and lists conversations.
type ConversationStore interface {
	// AuthorizeConversation returns the canonical conversation for the book when the
	// requester and counterparty are the buyer and seller of a live request for it,
	// creating the conversation on first use. Returns ErrNotFound otherwise.
	AuthorizeConversation(ctx context.Context, bookID, requesterID, counterpartyID string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations lists the conversations the user takes part in, newest first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists msg and assigns its ID and SentAt.
	InsertMessage(ctx context.Context, msg *Message) error

	// MarkDelivered stamps delivered_at if unset. Repeated calls are no-ops.
	MarkDelivered(ctx context.Context, messageID int64, at time.Time) error

	// MarkConversationRead stamps read_at on every message of the conversation that
	// was sent by someone other than readerID and has no read_at yet.
	// Returns the number of messages stamped.
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)

	// UnreadMessagesFor lists messages with read_at unset addressed to userID,
	// ordered by ID. highWater is the largest message ID in the store when the list
	// was taken; messages above it are not reflected in unread.
	UnreadMessagesFor(ctx context.Context, userID string) (unread []*Message, highWater int64, err error)

	// ListMessages returns the latest messages of a conversation in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, conversationID string, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces consumed by the chat core.
type Store interface {
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
