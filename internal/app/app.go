package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfx/shelfx-chat/internal/config"
	"github.com/shelfx/shelfx-chat/internal/core"
	"github.com/shelfx/shelfx-chat/internal/metrics"
	"github.com/shelfx/shelfx-chat/internal/store"
	"github.com/shelfx/shelfx-chat/internal/store/redis"
	"github.com/shelfx/shelfx-chat/internal/store/sqlite"
	transporthttp "github.com/shelfx/shelfx-chat/internal/transport/http"
)

var _ core.Mirror = (*redis.Mirror)(nil)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	mirror          *redis.Mirror
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	m := metrics.New()
	opts := []core.Option{core.WithMetrics(m)}

	var mirror *redis.Mirror
	if cfg.Redis.Addr != "" {
		mirror, err = redis.New(ctx, cfg.Redis, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init redis mirror: %w", err)
		}
		opts = append(opts, core.WithMirror(mirror))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis mirror enabled")
	}

	hub := core.NewHub(st, cfg.Chat, logger, opts...)
	server := transporthttp.NewServer(hub, cfg, m, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		mirror:          mirror,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()
	if a.mirror != nil {
		go a.mirror.KeepAlive(hubCtx, a.hub.Registry().OnlineUsers)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var err error
	select {
	case err = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked WebSocket connections are not tracked by Shutdown; stopping the hub
		// closes them.
		stopHub()
		<-hubDone
		if err = a.server.Shutdown(shutdownCtx); err == nil {
			err = <-serverErr
		}
	}

	stopHub()
	<-hubDone
	a.cleanup()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
