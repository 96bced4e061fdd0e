package core

import "github.com/shelfx/shelfx-chat/internal/store"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessage delivers a persisted message to a participant's connection.
	EventMessage EventKind = iota
	// EventUnreadSnapshot carries every unread count of the user.
	EventUnreadSnapshot
	// EventUnreadCount carries the new unread count of a single conversation.
	EventUnreadCount
	// EventPresence reports a counterparty going online or offline.
	EventPresence
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventUnreadSnapshot:
		return "unreadSnapshot"
	case EventUnreadCount:
		return "unread"
	case EventPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Event is queued on a connection's outbound channel. Events are never mutated
// after they are queued.
type Event struct {
	Kind           EventKind
	Message        *store.Message
	ConversationID string
	Count          int
	Counts         map[string]int
	UserID         string
	Online         bool
}
