package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Gamenter95/wewa/internal/db"
	"github.com/Gamenter95/wewa/internal/domain"
	"github.com/Gamenter95/wewa/internal/events"
	"github.com/Gamenter95/wewa/internal/handlers"
	"github.com/Gamenter95/wewa/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if cfg.AutoMigrate {
		if err := migrateUp(); err != nil {
			return err
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()
	logger.Info("database connection pool initialized")

	opts := []domain.EngineOption{
		domain.WithLogger(logger),
		domain.WithTimeout(cfg.TransferTimeout),
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		opts = append(opts, domain.WithRecorder(m))
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, logger)
		if err != nil {
			return fmt.Errorf("failed to create rabbitmq publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.WithError(err).Warn("failed to close rabbitmq publisher")
			}
		}()
		opts = append(opts, domain.WithEventPublisher(publisher))
	} else {
		logger.Info("RABBITMQ_URL not set, transfer events disabled")
	}

	engine := domain.NewTransferEngine(
		db.NewAccountRepository(pool.Pool),
		db.NewTokenRepository(pool.Pool),
		db.NewLedgerRepository(pool.Pool),
		db.NewTransactionManager(pool.Pool, logger),
		opts...,
	)

	router := handlers.NewRouter(handlers.NewGatewayHandler(engine, logger), handlers.RouterOptions{
		Metrics: m,
		Health:  pool,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("gateway HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	serveErr := g.Wait()

	// Deferred publisher.Close runs after this, so queued events still go out.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Drain(drainCtx); err != nil {
		logger.WithError(err).Warn("transfer events dropped on shutdown")
	}

	if serveErr != nil {
		logger.WithError(serveErr).WithFields(logrus.Fields{"addr": httpServer.Addr}).Error("gateway stopped with error")
		return serveErr
	}
	return nil
}
