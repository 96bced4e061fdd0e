package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client. ID is echoed back on
// the matching reply so clients can correlate requests.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypeHello    = "hello"
	InboundTypeJoin     = "join"
	InboundTypeSend     = "send"
	InboundTypeMarkRead = "markRead"

	OutboundTypeJoined = "joined"
	OutboundTypeAck    = "ack"
	OutboundTypeEvent  = "event"
	OutboundTypeError  = "error"

	EventMessage        = "message"
	EventUnreadSnapshot = "unreadSnapshot"
	EventUnread         = "unread"
	EventPresence       = "presence"

	// ErrCodeInvalidMessage is reported for frames that cannot be decoded.
	ErrCodeInvalidMessage = "invalid_message"
)

// JoinData asks to open the conversation about a book with a counterparty.
type JoinData struct {
	BookID         string `json:"bookId"`
	CounterpartyID string `json:"counterpartyId"`
}

// SendData is a chat message from the client.
type SendData struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

// MarkReadData clears unread messages of a conversation.
type MarkReadData struct {
	ConversationID string `json:"conversationId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Joined answers a successful join.
type Joined struct {
	ConversationID string `json:"conversationId"`
}

// Ack answers a successful send or markRead.
type Ack struct {
	MessageID int64 `json:"messageId,omitempty"`
	SentAt    int64 `json:"sentAt,omitempty"`
}

// Message is a chat message as seen by clients. Timestamps are unix milliseconds.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Body           string `json:"body"`
	SentAt         int64  `json:"sentAt"`
	DeliveredAt    *int64 `json:"deliveredAt,omitempty"`
	ReadAt         *int64 `json:"readAt,omitempty"`
}

// UnreadSnapshot carries all unread counts of the user.
type UnreadSnapshot struct {
	Counts map[string]int `json:"counts"`
}

// UnreadCount carries the new count of one conversation.
type UnreadCount struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
}

// Presence reports whether a user has any live connection.
type Presence struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	Retryable bool   `json:"retryable,omitempty"`
}
