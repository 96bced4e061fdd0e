package core

import "context"

// Mirror receives presence and unread changes for consumers outside the process,
// such as the marketplace's REST badges. Calls are made from the hub's Run loop in
// the order the changes happened.
type Mirror interface {
	SetPresence(ctx context.Context, userID string, online bool) error
	SetUnread(ctx context.Context, userID, conversationID string, count int) error
	ReplaceUnread(ctx context.Context, userID string, counts map[string]int) error
}

type mirrorKind int

const (
	mirrorPresence mirrorKind = iota
	mirrorUnread
	mirrorSnapshot
)

type mirrorOp struct {
	kind           mirrorKind
	userID         string
	conversationID string
	online         bool
	count          int
	counts         map[string]int
}

func (h *Hub) enqueueMirror(op mirrorOp) {
	if h.mirror == nil {
		return
	}
	select {
	case h.mirrorOps <- op:
	default:
		h.log.Warn().Str("user_id", op.userID).Msg("mirror queue full, dropping update")
	}
}

func (h *Hub) applyMirror(ctx context.Context, op mirrorOp) {
	var err error
	switch op.kind {
	case mirrorPresence:
		err = h.mirror.SetPresence(ctx, op.userID, op.online)
	case mirrorUnread:
		err = h.mirror.SetUnread(ctx, op.userID, op.conversationID, op.count)
	case mirrorSnapshot:
		err = h.mirror.ReplaceUnread(ctx, op.userID, op.counts)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", op.userID).Msg("mirror update failed")
	}
}
