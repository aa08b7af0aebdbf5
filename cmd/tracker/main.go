// Command tracker archives one region's daily COVID-19 metrics.
//
// Usage:
//
//	tracker [run]   fetch, archive today's report, render, publish and notify, then exit
//	tracker serve   serve health, metrics and the rendered archive over HTTP
//
// All settings come from the environment; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/covid-tracker/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/covid-tracker/internal/adapter/kafka"
	"github.com/couchcryptid/covid-tracker/internal/adapter/source"
	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/config"
	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
	"github.com/couchcryptid/covid-tracker/internal/pipeline"
	"github.com/couchcryptid/covid-tracker/internal/render"
)

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	switch cmd {
	case "run":
		err = runOnce(cfg, logger)
	case "serve":
		err = serve(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want run or serve)\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

func runOnce(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	store, err := archive.Open(cfg, logger)
	if err != nil {
		logger.Error("open archive", "backend", cfg.ArchiveBackend, "error", err)
		return err
	}
	defer store.Close()

	format, err := domain.ParseFormat(cfg.SourceFormat)
	if err != nil {
		logger.Error("invalid source format", "error", err)
		return err
	}
	rule := domain.NewDateRule(cfg.Location)

	stages := pipeline.Stages{
		Fetcher:   source.NewClient(cfg.FetchTimeout, logger),
		SourceURL: cfg.SourceURL,
		Extractor: domain.Extractor{
			Format: format,
			Region: cfg.Region,
			Labels: domain.TextLabels{
				Tested:   cfg.TestedLabel,
				Positive: cfg.PositiveLabel,
				AsOf:     cfg.AsOfLabel,
			},
			Rule: rule,
		},
		Archive:  store,
		Rule:     rule,
		Renderer: render.New(render.Options{Region: cfg.Region, Location: cfg.Location}),
	}
	if cfg.PublishPath != "" {
		stages.Publisher = render.FilePublisher{Path: cfg.PublishPath}
	}
	if cfg.NotifyEnabled {
		notifier := kafkaadapter.NewNotifier(cfg, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka notifier close error", "error", err)
			}
		}()
		stages.Notifier = notifier
	}

	p := pipeline.New(stages, logger, metrics)
	_, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(context.WithoutCancel(ctx), cfg.PushgatewayURL, cfg.Region); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	return runErr
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	store, err := archive.Open(cfg, logger)
	if err != nil {
		logger.Error("open archive", "backend", cfg.ArchiveBackend, "error", err)
		return err
	}
	defer store.Close()

	agg := archive.NewAggregator(store, logger, metrics)
	renderer := render.New(render.Options{Region: cfg.Region, Location: cfg.Location})
	srv := httpadapter.NewServer(cfg.HTTPAddr, agg, agg, renderer, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("serve error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
