package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authwatch/internal/api"
	"authwatch/internal/config"
	"authwatch/internal/logging"
	"authwatch/internal/metrics"
	"authwatch/internal/model"
	"authwatch/internal/pipeline"
	"authwatch/internal/publish"
	"authwatch/internal/report"
	"authwatch/internal/results"
	"authwatch/internal/storage"
)

const version = "0.4.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		case "serve":
			os.Exit(runServe(os.Args[2:]))
		case "version":
			fmt.Println("authwatch " + version)
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: authwatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  analyze   run one analysis over a log batch and write reports")
	fmt.Fprintln(os.Stderr, "  serve     run the analysis API server")
	fmt.Fprintln(os.Stderr, "  version   print the version")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file path (YAML or JSON)")
	input := fs.String("input", "", "Input file or directory (overrides config)")
	format := fs.String("format", "", "Input format, xml or jsonl (overrides config)")
	out := fs.String("out", "", "Report directory (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *format != "" {
		cfg.Input.Format = *format
	}
	if *out != "" {
		cfg.Reports.Dir = *out
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	logger := logging.NewLogger(cfg.LogLevel)
	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
		return 1
	}

	ctx := context.Background()
	res, err := pipe.RunPath(ctx, cfg.Input.Path, cfg.Input.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		return 1
	}

	if cfg.Reports.Enabled {
		writer := report.NewWriter(cfg.Reports.Dir, cfg.Reports.Geo, logger)
		if err := writer.WriteAll(res); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write reports: %v\n", err)
			return 1
		}
	}

	db, err := storage.NewStore(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		return 1
	}
	if db != nil {
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init storage: %v\n", err)
			return 1
		}
		if err := db.SaveRun(ctx, res); err != nil {
			fmt.Fprintf(os.Stderr, "failed to persist run: %v\n", err)
			return 1
		}
	}

	if pub := publish.NewPublisher(cfg.Kafka, logger); pub != nil {
		pub.PublishRun(ctx, res)
		_ = pub.Close()
	}

	sum := res.Summary
	fmt.Printf("analyzed events=%d failed_logins=%d alerts=%d anomalous_sources=%d\n",
		sum.TotalEvents, sum.FailedLogins, sum.AlertCount, sum.AnomalousCount)
	return 0
}

// runner rebuilds the pipeline from the latest config on every pass so
// analysis parameter updates take effect without a restart.
type runner struct {
	cfg     *config.Manager
	results *results.Store
	db      storage.Store
	pub     *publish.Publisher
	logger  *slog.Logger
}

func (r *runner) Reanalyze(ctx context.Context) (model.Summary, error) {
	if need, err := r.cfg.NeedsReload(); err == nil && need {
		if _, err := r.cfg.Reload(); err != nil {
			r.logger.Warn("config reload failed, keeping previous", "err", err)
		}
	}
	cfg := r.cfg.Get()
	pipe, err := pipeline.New(cfg, r.logger)
	if err != nil {
		return model.Summary{}, err
	}
	res, err := pipe.RunPath(ctx, cfg.Input.Path, cfg.Input.Format)
	if err != nil {
		return model.Summary{}, err
	}
	r.results.Set(res)

	if cfg.Reports.Enabled {
		writer := report.NewWriter(cfg.Reports.Dir, cfg.Reports.Geo, r.logger)
		if err := writer.WriteAll(res); err != nil {
			r.logger.Error("report write failed", "err", err)
		}
	}
	if r.db != nil {
		if err := r.db.SaveRun(ctx, res); err != nil {
			r.logger.Error("storage save failed", "err", err)
		}
	}
	r.pub.PublishRun(ctx, res)
	return res.Summary, nil
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "authwatch.yml", "Config file path (YAML or JSON)")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*configPath); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to stat config: %v\n", err)
			return 1
		}
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write default config: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "wrote default config to %s\n", *configPath)
	}
	manager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		next := *manager.Get()
		next.API.Enabled = true
		next.API.Addr = *addr
		manager.Set(&next)
	}

	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration failed", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewStore(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		return 1
	}
	if db != nil {
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to init storage: %v\n", err)
			return 1
		}
	}
	pub := publish.NewPublisher(cfg.Kafka, logger)
	if pub != nil {
		defer pub.Close()
	}

	store := results.NewStore(cfg.Results.RunHistory)
	run := &runner{cfg: manager, results: store, db: db, pub: pub, logger: logger}
	if _, err := run.Reanalyze(ctx); err != nil {
		logger.Error("startup analysis failed", "err", err)
	}

	httpServer := api.Start(ctx, manager, store, run, logger, version)
	if httpServer == nil {
		fmt.Fprintln(os.Stderr, "api disabled in config; nothing to serve")
		return 2
	}
	logger.Info("authwatch serving", "addr", manager.Get().API.Addr, "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	time.Sleep(1 * time.Second)
	logger.Info("authwatch stopped")
	return 0
}
