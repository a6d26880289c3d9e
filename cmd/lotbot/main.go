package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/lotbot/config"
	"github.com/alejandrodnm/lotbot/internal/adapters/feed"
	"github.com/alejandrodnm/lotbot/internal/adapters/metrics"
	"github.com/alejandrodnm/lotbot/internal/adapters/notify"
	"github.com/alejandrodnm/lotbot/internal/adapters/storage"
	"github.com/alejandrodnm/lotbot/internal/cycle"
	"github.com/alejandrodnm/lotbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print alerts as a table (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (overrides config)")
	won := flag.String("won", "", "mark a pending lot as won and exit")
	archive := flag.String("archive", "", "archive a lot and exit")
	finalPrice := flag.String("final-price", "", "record a final price as <lot_id>=<price> and exit")
	purge := flag.Bool("purge", false, "delete archived lots and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *table {
		cfg.Alerts.Table = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if act := (actions{won: *won, archive: *archive, finalPrice: *finalPrice, purge: *purge}); act.any() {
		if err := runMaintenance(ctx, store, act); err != nil {
			slog.Error("maintenance failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("lotbot starting",
		"config", *configPath,
		"interval", cfg.Interval(),
		"once", *once,
		"feed_dir", cfg.Feed.Dir,
		"feed_url", cfg.Feed.URL,
		"dsn", cfg.Storage.DSN,
	)

	var source ports.Feed
	if cfg.Feed.URL != "" {
		source = feed.NewHTTP(cfg.Feed.URL)
	} else {
		drop, err := feed.NewDropDir(cfg.Feed.Dir)
		if err != nil {
			slog.Error("failed to open feed dir", "err", err, "dir", cfg.Feed.Dir)
			os.Exit(1)
		}
		source = drop
	}

	alerter := notify.NewConsole(cfg.Alerts.Table, cfg.Alerts.PerSecond)

	var recorder ports.Metrics = metrics.Nop{}
	if cfg.Metrics.Addr != "" {
		rec := metrics.New()
		srv := serveMetrics(cfg.Metrics.Addr, rec)
		defer shutdown(srv)
		recorder = rec
	}

	runCfg := cycle.DefaultConfig()
	runCfg.Interval = cfg.Interval()
	runCfg.Once = *once

	watcher := config.NewWatcher(*configPath, cfg)
	r := cycle.New(runCfg, store, source, alerter, recorder, watcher)

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("lotbot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("lotbot stopped cleanly")
}

func serveMetrics(addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", rec.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
