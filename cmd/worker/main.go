package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "rssbox/internal/api/http"
	"rssbox/internal/app"
	"rssbox/internal/dedupe"
	"rssbox/internal/domain"
	"rssbox/internal/feed"
	"rssbox/internal/metrics"
	"rssbox/internal/objectstore"
	mongorepo "rssbox/internal/repository/mongo"
	"rssbox/internal/scheduler"
	"rssbox/internal/telemetry"
	"rssbox/internal/torrentcache"
	"rssbox/internal/usecase"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "rssbox-worker")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	workerID := domain.WorkerID(newWorkerID())
	logger.Info("starting worker",
		slog.String("workerId", string(workerID)),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("feedUrl", cfg.FeedURL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db := mongorepo.NewDatabase(mongoClient, cfg.MongoDatabase)
	if err := db.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	workers := mongorepo.NewWorkerRepository(db)
	accounts := mongorepo.NewAccountRepository(db)
	downloads := mongorepo.NewDownloadRepository(db)
	watermarks := mongorepo.NewWatermarkRepository(db)
	tx := mongorepo.NewTransactor(mongoClient)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	cache := torrentcache.New(cfg.TorrentCacheURL, httpClient, cfg.TorrentCacheRatePerSec)
	store := objectstore.New(cfg.ObjectStoreURL, cfg.ObjectStoreKey, httpClient, cfg.ObjectStoreRatePerSec, logger, db.Files)
	feedSource := feed.New()

	var guard *dedupe.Guard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis url parse failed, dedupe fast path disabled", slog.String("error", err.Error()))
		} else {
			guard = dedupe.New(redis.NewClient(opts), 24*time.Hour)
		}
	}

	httpServer := apihttp.NewServer(
		apihttp.WithLogger(logger),
		apihttp.WithAccountLister(accounts),
		apihttp.WithDownloadLister(downloads),
	)

	filterExtensions := cfg.FilterExtensionSet()

	heartbeat := usecase.Heartbeat{Workers: workers, WorkerID: workerID, Logger: logger, Interval: cfg.HeartbeatInterval}
	reaper := usecase.Reaper{
		Workers: workers, Accounts: accounts, Downloads: downloads,
		Logger: logger, Interval: cfg.ReaperInterval, StaleAfter: cfg.ReaperStaleAfter,
		Broadcaster: httpServer,
	}
	stats := usecase.StatsCollector{Accounts: accounts, Downloads: downloads, Logger: logger, Interval: 15 * time.Second}

	var feedWatcher *usecase.FeedWatcher
	if cfg.FeedURL != "" {
		feedWatcher = &usecase.FeedWatcher{
			Source: feedSource, Downloads: downloads, Watermarks: watermarks, Guard: guard,
			Logger: logger, FeedURL: cfg.FeedURL, Interval: cfg.FeedPollInterval,
			Broadcaster: httpServer,
		}
	}

	beginDownload := usecase.BeginDownload{
		Accounts: accounts, Downloads: downloads, Cache: cache, Tx: tx,
		Logger: logger, WorkerID: workerID, Broadcaster: httpServer,
	}
	checkDownloads := usecase.CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: tx,
		Logger: logger, WorkerID: workerID, FilterExtensions: filterExtensions,
		Broadcaster: httpServer, DownloadPath: cfg.DownloadPath,
	}

	sched := scheduler.New(logger,
		scheduler.Task{Name: "begin_download", Interval: cfg.BeginDownloadInterval, Run: beginDownload.Run},
		scheduler.Task{Name: "check_downloads", Interval: cfg.CheckDownloadsInterval, Run: checkDownloads.Run},
	)

	go heartbeat.Run(rootCtx)
	go reaper.Run(rootCtx)
	go stats.Run(rootCtx)
	if feedWatcher != nil {
		go feedWatcher.Run(rootCtx)
	} else {
		logger.Warn("RSS_URL not set, feed watcher disabled")
	}
	go sched.Run(rootCtx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpServer,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("worker started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	httpServer.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
}

func newWorkerID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(buf)
}

func newLogger(cfg app.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	if strings.ToLower(strings.TrimSpace(cfg.LogFormat)) == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
