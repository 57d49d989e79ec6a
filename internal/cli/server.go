package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/config"
	transport "faculty-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	service := app.NewQuizService(b.sessions, b.source, b.kv, b.mirror, serviceConfig(cfg), logger)

	mux := http.NewServeMux()
	transport.NewAPIHandler(service, logger).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service, logger).ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		service.Close()
		return err
	})
	return g.Wait()
}
