package http

import (
	"time"

	"github.com/shelfx/shelfx-chat/internal/core"
	"github.com/shelfx/shelfx-chat/internal/proto"
	"github.com/shelfx/shelfx-chat/internal/store"
)

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  messageFromStore(event.Message),
		}
	case core.EventUnreadSnapshot:
		counts := event.Counts
		if counts == nil {
			counts = map[string]int{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUnreadSnapshot,
			Data:  proto.UnreadSnapshot{Counts: counts},
		}
	case core.EventUnreadCount:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUnread,
			Data:  proto.UnreadCount{ConversationID: event.ConversationID, Count: event.Count},
		}
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresence,
			Data:  proto.Presence{UserID: event.UserID, Online: event.Online},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	}
}

func messageFromStore(m *store.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		SentAt:         m.SentAt.UnixMilli(),
		DeliveredAt:    millis(m.DeliveredAt),
		ReadAt:         millis(m.ReadAt),
	}
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// errorOutbound converts err into an error reply for the request with the given id.
func errorOutbound(id string, err error) proto.Outbound {
	if ce, ok := core.AsCoreError(err); ok {
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ID:    id,
			Error: &proto.Error{Code: ce.Code, Msg: ce.Message, Retryable: ce.Retryable},
		}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		ID:    id,
		Error: &proto.Error{Code: "internal", Msg: "internal error"},
	}
}

func protoError(id, code, msg string) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, ID: id, Error: &proto.Error{Code: code, Msg: msg}}
}
