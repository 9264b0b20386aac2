package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/interpreter"
	"github.com/rendis/botforge/internal/server"
	"github.com/rendis/botforge/internal/sessions"
	"github.com/rendis/botforge/internal/store"
	"github.com/rendis/botforge/internal/streaming"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authoring and conversation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		logger := newLogger(cfg.LogLevel)

		if dir := filepath.Dir(strings.TrimPrefix(cfg.DBPath, "file:")); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}

		st, err := store.NewLibSQLStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		engine, err := conditionEngine(cfg.Engine)
		if err != nil {
			return err
		}

		var snaps sessions.SnapshotStore
		if cfg.RedisAddr != "" {
			redisStore := sessions.NewRedisSnapshotStore(cfg.RedisAddr, "", cfg.RedisDB,
				sessions.WithTTL(cfg.snapshotTTL()))
			defer redisStore.Close()
			snaps = redisStore
		} else {
			snaps = sessions.NewMemorySnapshotStore()
		}

		hub := streaming.NewMemoryHub()
		interp := interpreter.New(engine, interpreter.Config{}, logger)
		registry := sessions.NewRegistry(interp, hub, snaps, logger)

		srv := server.NewServer(server.Deps{
			Store:    st,
			Registry: registry,
			Hub:      hub,
			Logger:   logger,
		})
		return srv.Run(ctx, cfg.ListenAddr)
	},
}

// conditionEngine selects the expression engine for condition nodes.
func conditionEngine(name string) (expressions.Engine, error) {
	switch name {
	case "", "expr":
		return expressions.NewExprEngine(), nil
	case "cel":
		return expressions.NewCELEngine(), nil
	default:
		return nil, fmt.Errorf("unknown condition engine %q (want expr or cel)", name)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "listen address (overrides config)")
}
