package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tirta71/live-tiktok/internal/broadcast"
	"github.com/Tirta71/live-tiktok/internal/correlator"
	"github.com/Tirta71/live-tiktok/internal/env"
	"github.com/Tirta71/live-tiktok/internal/ingest"
	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/shared/paths"
	"github.com/Tirta71/live-tiktok/internal/version"
	"github.com/Tirta71/live-tiktok/internal/webserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const retentionInterval = time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "live-tiktok",
		Short: "Live stream gift and chat correlation server",
		PreRun: func(cmd *cobra.Command, args []string) {
			env.LoadDotEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		Version:      version.String(),
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	env.ApplyDefaults(viper.GetViper())
	defaults := env.NewViper()
	cmd.PersistentFlags().Int("port", defaults.GetInt("server.port"), "HTTP/WebSocket listen port")
	cmd.PersistentFlags().String("db", defaults.GetString("database.path"), "SQLite database path (default ~/.live-tiktok/local.db)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("debug", defaults.GetBool("debug"), "Enable development logging")

	bindFlag(cmd, "server.port", "port")
	bindFlag(cmd, "database.path", "db")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "debug", "debug")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func runServer(ctx context.Context) error {
	if err := env.Bootstrap(viper.GetViper()); err != nil {
		return err
	}

	if env.Value.DebugMode {
		logger.Init(true)
	} else {
		logger.InitWithLevel(env.Value.LogLevel)
	}
	defer logger.Sync()

	logger.Info("Starting live-tiktok server", zap.String("version", version.String()))

	if env.Value.DBPath != "" {
		paths.SetDBPath(env.Value.DBPath)
	}
	if err := paths.EnsureDataDirs(); err != nil {
		return fmt.Errorf("failed to ensure data directories: %w", err)
	}

	if _, err := localdb.SetupDB(paths.GetDBPath()); err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	defer func() {
		if err := localdb.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := correlator.NewEngine(env.Value.EngineConfig(), broadcast.Sink{}, localdb.WinnerStore{}, nil)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Correlation engine stopped", zap.Error(err))
		}
	}()

	ingestor := ingest.New(engine, ingest.DBJournal)
	go ingest.RunRetention(signalCtx, env.Value.EventRetention, retentionInterval)

	deps := webserver.Dependencies{Engine: engine, Source: ingestor}
	if feed := startTwitchSource(signalCtx, ingestor); feed != nil {
		deps.Feed = feed
	}

	port := env.Value.ServerPort
	if err := webserver.StartWebServer(port, deps); err != nil {
		return err
	}

	logger.Info("Server started",
		zap.Int("port", port),
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/status", port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%d/ws", port)))

	<-signalCtx.Done()
	logger.Info("Shutting down...")

	webserver.Shutdown()
	<-engineDone
	// 保存中の当選記録を書き切ってからDBを閉じる
	engine.Flush()

	logger.Info("Shutdown complete")
	return nil
}
