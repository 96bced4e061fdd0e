package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfx/shelfx-chat/internal/config"
	"github.com/shelfx/shelfx-chat/internal/metrics"
	"github.com/shelfx/shelfx-chat/internal/store"
)

const (
	mirrorQueueSize    = 1024
	mirrorDrainTimeout = 2 * time.Second
)

// Hub owns the connection registry, the unread counter and the per-conversation
// sequencer. It is created at server start and torn down when Run returns.
type Hub struct {
	store    store.Store
	cfg      config.ChatConfig
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	mirror   Mirror
	now      func() time.Time
	registry *Registry
	unread   *UnreadCounter
	seq      *sequencer

	// conversations caches authorized conversations by id.
	conversations sync.Map
	mirrorOps     chan mirrorOp
}

// Option customizes a Hub.
type Option func(*Hub)

// WithMetrics records hub activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithMirror publishes presence and unread changes to m.
func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a new chat hub instance.
func NewHub(st store.Store, cfg config.ChatConfig, logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		store:  st,
		cfg:    cfg,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
		unread: NewUnreadCounter(),
		seq:    newSequencer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registry = NewRegistry(cfg.OutboundBuffer)
	if h.mirror != nil {
		h.mirrorOps = make(chan mirrorOp, mirrorQueueSize)
	}
	return h
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Unread exposes the unread counter.
func (h *Hub) Unread() *UnreadCounter {
	return h.unread
}

// Run drives the mirror queue until ctx is cancelled, then unregisters every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case op := <-h.mirrorOps:
			h.applyMirror(ctx, op)
		case <-ctx.Done():
			h.shutdown()
			h.drainMirror(ctx)
			return
		}
	}
}

// drainMirror applies the updates still queued, including the offline presence
// queued by shutdown, within mirrorDrainTimeout.
func (h *Hub) drainMirror(ctx context.Context) {
	if h.mirror == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorDrainTimeout)
	defer cancel()

	for {
		select {
		case op := <-h.mirrorOps:
			h.applyMirror(dctx, op)
		default:
			return
		}
	}
}

func (h *Hub) shutdown() {
	conns := h.registry.All()
	for _, c := range conns {
		h.Unregister(c.Handle)
	}
	h.log.Info().Int("connections", len(conns)).Msg("hub stopped")
}

// Register records a new live connection for userID.
func (h *Hub) Register(userID string) *Conn {
	c, online := h.registry.Register(userID)
	h.metrics.ConnOpened()
	h.log.Debug().Str("conn", c.Handle).Str("user_id", userID).Bool("first", online).Msg("connection registered")

	if online {
		h.metrics.UserOnline()
		h.enqueueMirror(mirrorOp{kind: mirrorPresence, userID: userID, online: true})
	}
	return c
}

// Unregister purges the connection. Unknown handles are ignored, so duplicate
// disconnect events are harmless.
func (h *Hub) Unregister(handle string) {
	c, offline := h.registry.Unregister(handle)
	if c == nil {
		return
	}
	h.metrics.ConnClosed()
	h.log.Debug().Str("conn", c.Handle).Str("user_id", c.UserID).Bool("offline", offline).Msg("connection unregistered")

	if !offline {
		return
	}
	h.metrics.UserOffline()
	h.enqueueMirror(mirrorOp{kind: mirrorPresence, userID: c.UserID, online: false})
	h.broadcastPresence(context.Background(), c.UserID, false, h.sharedConversations(c.UserID))
}

func (h *Hub) conn(handle string) (*Conn, error) {
	c, ok := h.registry.Get(handle)
	if !ok {
		return nil, ErrUnknownConn
	}
	return c, nil
}
