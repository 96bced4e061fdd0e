package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfx/shelfx-chat/internal/app"
	"github.com/shelfx/shelfx-chat/internal/auth"
	"github.com/shelfx/shelfx-chat/internal/config"
	applog "github.com/shelfx/shelfx-chat/internal/log"
	transporthttp "github.com/shelfx/shelfx-chat/internal/transport/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shelfx-chat",
		Short:         "Real-time chat between book buyers and sellers",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, configPath)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.String("addr", "", "HTTP listen address")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("db", "", "SQLite database path")
	flags.String("redis", "", "Redis address for the presence/unread mirror")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, configPath)
		},
	})
	root.AddCommand(newTokenCmd(&configPath))
	return root
}

func serve(cmd *cobra.Command, configPath string) error {
	bootLogger := applog.New("info")
	cfg, usedPath, err := config.Load(bootLogger, configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := applog.New(cfg.LogLevel)
	logger.Info().Str("config", usedPath).Str("addr", cfg.Addr).Msg("starting shelfx chat server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newTokenCmd mints a development token; production tokens come from the
// marketplace's session service.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a signed token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(applog.Nop(), *configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			jwtCfg := transporthttp.JWTConfigFrom(&cfg)
			jwtCfg.TTL = ttl

			token, err := auth.GenerateToken(jwtCfg, args[0], name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
