package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"meetscribe/internal/archive"
	"meetscribe/internal/config"
	"meetscribe/internal/daemon"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
	"meetscribe/internal/media"
	"meetscribe/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := bootstrap(cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("meetscribed shutting down")
	d.Stop()
}

func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := jobs.NewStore(cfg.JobStorePath(), logger)
	if err != nil {
		return nil, err
	}

	history, err := archive.Open(cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}

	normalizer := media.NewNormalizer(cfg.FFmpegBinary(), cfg.Paths.WorkDir, logger)
	prober := media.NewProber(cfg.FFprobeBinary())
	factory := pipeline.NewConfigFactory(cfg, logger)

	orch := pipeline.NewOrchestrator(store, normalizer, prober, factory, pipeline.Settings{
		MaxConcurrentJobs: cfg.Workflow.MaxConcurrentJobs,
		JobTimeout:        time.Duration(cfg.Workflow.JobTimeout) * time.Second,
	}, logger)

	return daemon.New(cfg, store, history, orch, logger)
}
