package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentcore/internal/blob"
	"agentcore/internal/factory"
	"agentcore/internal/httpapi"
	"agentcore/internal/journal"
	"agentcore/internal/ledger"
	"agentcore/internal/telemetry"
	"agentcore/pkg/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg Config) error {
	logger, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	j, err := journal.Open(cfg.journalConfig())
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	store, err := blob.Open(ctx, cfg.blobConfig())
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	recorder := telemetry.NewPrometheusRecorder(metrics)

	funds := ledger.NewMemory()
	f := factory.New(domain.Address(cfg.FactoryAddress), j, funds, factory.WithMetrics(recorder))

	handler := httpapi.NewHandler(httpapi.Config{
		Factory:  f,
		Journal:  j,
		Funds:    funds,
		Archiver: blob.NewArchiver(store),
		Logger:   logger,
		Metrics:  metrics,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("factory", cfg.FactoryAddress),
			zap.String("journal_driver", cfg.JournalDriver),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
