package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webforge/internal/config"
	"webforge/internal/logging"
	"webforge/internal/provider"
	"webforge/internal/server"
	"webforge/internal/session"
	"webforge/internal/store"
	"webforge/internal/stream"
	"webforge/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebForge API server",
	Long: `Starts the HTTP server with WebSocket and SSE streaming. The LLM
provider is resolved from the config file and environment (ANTHROPIC_API_KEY,
OPENAI_API_KEY, OPENROUTER_API_KEY).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: exitUsage, err: fmt.Errorf("failed to load config: %w", err)}
	}
	cfg.Server.Version = version
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}

	if err := logging.Initialize(cfg.Workspace.Root, cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("forge %s starting", version)

	client, err := provider.NewClientFromConfig(cfg.LLM)
	if err != nil {
		return &exitError{code: exitUnavailable, err: fmt.Errorf("failed to resolve LLM provider: %w", err)}
	}
	logger.Info("provider resolved",
		zap.String("provider", client.Name()),
		zap.String("model", client.Model()))

	var sink types.MetadataSink = store.NopSink{}
	if cfg.Store.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Store.QueueSize)
		if err != nil {
			logger.Warn("metadata store unavailable, continuing without persistence", zap.Error(err))
		} else {
			sink = s
		}
	}
	defer sink.Close()

	bus := stream.NewBus()
	manager := session.NewManager(cfg.Workspace.SessionTTL)
	executor := session.NewExecutor(client, bus, sink, session.ExecutorConfig{
		Budget:       cfg.Workspace.SessionBudget,
		MinFileBytes: cfg.Workspace.MinFileBytes,
		EnableGit:    cfg.Workspace.EnableGit,
	})

	srv := server.New(cfg.Server, cfg.Workspace, manager, executor, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.StartGC(ctx, time.Hour)

	if watcher, err := config.NewWatcher(configPath, nil); err == nil {
		go watcher.Start(ctx)
	} else {
		logger.Debug("config watcher disabled", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
