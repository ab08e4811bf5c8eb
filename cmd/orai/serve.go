package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/auth"
	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/mutation"
	"github.com/Hexploration-Inc/orai/internal/server"
	"github.com/Hexploration-Inc/orai/internal/session"
	mailsync "github.com/Hexploration-Inc/orai/internal/sync"
)

const (
	sweepInterval = time.Minute
	httpGrace     = 10 * time.Second
	syncGrace     = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		st, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		blobs, err := blob.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		defer blobs.Close()

		authn := auth.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
		provider := gmail.NewClient(authn, logger, gmail.WithMetrics(m))

		syncer := mailsync.New(st, blobs, provider, mailsync.Config{
			MaxMessages:      int64(cfg.SyncMaxMessages),
			Query:            cfg.SyncQuery,
			FetchConcurrency: cfg.SyncFetchConcurrency,
		}, logger, m)
		dispatcher := mailsync.NewDispatcher(syncer, cfg.SyncWorkers, cfg.SyncQueueSize, cfg.SyncTimeout, logger)
		dispatcher.Start()

		sessions := session.NewStore(cfg.SessionTTL)
		go sessions.Run(ctx, sweepInterval)
		binder := session.NewBinder(sessions, cfg.CookieSecret, cfg.CookieSecure)

		gin.SetMode(cfg.GinMode)
		router := server.NewRouter(server.Deps{
			OAuth:     authn,
			Opener:    provider,
			Store:     st,
			Blobs:     blobs,
			Binder:    binder,
			Mutations: mutation.New(st, blobs, provider, logger, m),
			Syncs:     dispatcher,
			Breaker:   provider,
			Metrics:   m,
			Logger:    logger,
			WebURL:    cfg.WebURL,
			Secure:    cfg.CookieSecure,
		})

		logger.Info("starting orai",
			"version", Version,
			"port", cfg.Port,
			"database", cfg.DatabasePath,
			"blob_backend", cfg.BlobBackend,
			"sync_workers", cfg.SyncWorkers,
		)
		serveErr := server.Run(ctx, server.NewHTTPServer(cfg, router), httpGrace, logger)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), syncGrace)
		defer cancel()
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sync workers did not drain before shutdown", "error", err)
		}
		if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
			return serveErr
		}
		logger.Info("orai stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
