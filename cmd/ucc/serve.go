package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/config"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/metrics"
	"github.com/c360studio/ucc/orchestrator"
	"github.com/c360studio/ucc/pipeline"
	"github.com/c360studio/ucc/progress"
	"github.com/c360studio/ucc/retention"
	"github.com/c360studio/ucc/retry"
	"github.com/c360studio/ucc/segmentstore"
	"github.com/c360studio/ucc/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the comparison API server and worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, err := jobstore.OpenSQLite(cfg.Jobs.DBPath)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var (
		bus      progress.Bus
		segments segmentstore.Store
	)
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("ucc"))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer conn.Drain()

		js, err := jetstream.New(conn)
		if err != nil {
			return fmt.Errorf("open JetStream: %w", err)
		}
		segments, err = segmentstore.NewNATSStore(ctx, js)
		if err != nil {
			return err
		}
		bus = progress.NewNATSBus(conn, logger)
		logger.Info("using NATS", "url", cfg.NATS.URL)
	} else {
		segments = segmentstore.NewMemoryStore()
		bus = progress.NewMemoryBus()
		logger.Info("no NATS configured, using in-process bus and segment store")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	embedSettings := embed.Settings{
		Backend:        cfg.Embedder.Backend,
		Model:          cfg.Embedder.Model,
		OllamaEndpoint: cfg.Embedder.OllamaEndpoint,
		APIBaseURL:     cfg.Embedder.APIBaseURL,
		APIKey:         cfg.Embedder.APIKey,
	}
	stages := pipeline.NewStages(layout.NewTabulaExtractor(), embed.Select(embedSettings))
	stages.Logger = logger
	stages.RetryCfg.MaxAttempts = cfg.Jobs.MaxRetries + 1
	stages.SelectEmbedder = func(backend string) embed.Embedder {
		s := embedSettings
		s.Backend = backend
		return embed.Select(s)
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Workers = cfg.Jobs.Workers
	orchCfg.MaxRetries = cfg.Jobs.MaxRetries
	orchCfg.SegmentSoftTimeout = cfg.Jobs.SegmentSoftTimeout
	orchCfg.JobHardTimeout = cfg.Jobs.JobHardTimeout
	orchCfg.Backoff = retry.DefaultConfig()

	orch := orchestrator.New(orchCfg, stages, jobs, segments, bus,
		orchestrator.WithLogger(logger), orchestrator.WithMetrics(m))
	orch.Start(ctx)
	defer orch.Stop()

	purger := retention.New(jobs, segments, cfg.Jobs.TTL, m, logger)
	if err := purger.Start(); err != nil {
		return fmt.Errorf("start retention purger: %w", err)
	}
	defer purger.Stop()

	defaults := clause.Options{
		Embedder:               cfg.Embedder.Backend,
		SimilarityThreshold:    cfg.Pipeline.SimilarityThreshold,
		ReturnTokenDiffs:       cfg.Pipeline.ReturnTokenDiffs,
		MaxCandidatesPerClause: cfg.Pipeline.MaxCandidatesPerClause,
	}
	srv := server.New(orch, stages, jobs, bus, defaults,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithHardTimeout(cfg.Jobs.JobHardTimeout))

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
