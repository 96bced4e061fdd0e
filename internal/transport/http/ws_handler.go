package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shelfx/shelfx-chat/internal/core"
	"github.com/shelfx/shelfx-chat/internal/metrics"
	"github.com/shelfx/shelfx-chat/internal/proto"
)

const readLimit = 64 << 10

// WSHandler upgrades authenticated HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub     *core.Hub
	limiter *sendLimiter
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, limiter *sendLimiter, m *metrics.Metrics, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, limiter: limiter, metrics: m, log: logger}
}

// Handle serves GET /ws. AuthMiddleware must run first.
func (h *WSHandler) Handle(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(readLimit)

	client := h.hub.Register(userID)
	defer h.hub.Unregister(client.Handle)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Unread state is pushed as soon as the connection is up.
	if _, err := h.hub.Handshake(ctx, client.Handle); err != nil {
		h.log.Warn().Err(err).Str("conn", client.Handle).Msg("initial handshake")
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn", client.Handle).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("conn", client.Handle).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			if werr := wsjson.Write(ctx, conn, protoError("", proto.ErrCodeInvalidMessage, "malformed frame")); werr != nil {
				return werr
			}
			continue
		}

		reply, ok := h.dispatch(ctx, client, inbound)
		if !ok {
			continue
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

// dispatch runs one client request against the hub. ok is false when the request
// has no direct reply.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Conn, inbound proto.Inbound) (reply proto.Outbound, ok bool) {
	switch inbound.Type {
	case proto.InboundTypeHello:
		if _, err := h.hub.Handshake(ctx, client.Handle); err != nil {
			return errorOutbound(inbound.ID, err), true
		}
		return proto.Outbound{}, false

	case proto.InboundTypeJoin:
		var data proto.JoinData
		if err := decode(inbound.Data, &data); err != nil {
			return protoError(inbound.ID, proto.ErrCodeInvalidMessage, "invalid join payload"), true
		}
		convID, err := h.hub.Join(ctx, client.Handle, data.BookID, data.CounterpartyID)
		if err != nil {
			return errorOutbound(inbound.ID, err), true
		}
		return proto.Outbound{Type: proto.OutboundTypeJoined, ID: inbound.ID, Data: proto.Joined{ConversationID: convID}}, true

	case proto.InboundTypeSend:
		var data proto.SendData
		if err := decode(inbound.Data, &data); err != nil {
			return protoError(inbound.ID, proto.ErrCodeInvalidMessage, "invalid send payload"), true
		}
		if !h.limiter.allow(client.UserID, time.Now()) {
			h.metrics.SendFailed(core.ErrCodeRateLimited)
			out := protoError(inbound.ID, core.ErrCodeRateLimited, "too many messages")
			out.Error.Retryable = true
			return out, true
		}
		msg, err := h.hub.Send(ctx, client.Handle, data.ConversationID, data.Body)
		if err != nil {
			return errorOutbound(inbound.ID, err), true
		}
		return proto.Outbound{
			Type: proto.OutboundTypeAck,
			ID:   inbound.ID,
			Data: proto.Ack{MessageID: msg.ID, SentAt: msg.SentAt.UnixMilli()},
		}, true

	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if err := decode(inbound.Data, &data); err != nil {
			return protoError(inbound.ID, proto.ErrCodeInvalidMessage, "invalid markRead payload"), true
		}
		if err := h.hub.MarkRead(ctx, client.Handle, data.ConversationID); err != nil {
			return errorOutbound(inbound.ID, err), true
		}
		return proto.Outbound{Type: proto.OutboundTypeAck, ID: inbound.ID, Data: proto.Ack{}}, true

	default:
		return protoError(inbound.ID, proto.ErrCodeInvalidMessage, "unknown message type"), true
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(raw, v)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		select {
		case event := <-client.Outbound():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("conn", client.Handle).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
