package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/halc8312/esp/internal/api"
	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/config"
	"github.com/halc8312/esp/internal/database"
	"github.com/halc8312/esp/internal/jobs"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/patrol"
	"github.com/halc8312/esp/internal/ratelimit"
	"github.com/halc8312/esp/internal/scraper"
	"github.com/halc8312/esp/internal/selectors"
	"github.com/halc8312/esp/internal/site"
	"github.com/halc8312/esp/internal/sweep"
	"github.com/halc8312/esp/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overrides, err := selectors.Load(cfg.Selectors.Path)
	if err != nil {
		log.Error("failed to load selector overrides", "path", cfg.Selectors.Path, "error", err)
		os.Exit(1)
	}

	go reloadOnHangup(ctx, overrides, log)

	registry := site.NewRegistry(overrides)
	m := metrics.New()
	provider := browser.NewProvider(cfg.Browser.Mode, browser.OptionsFrom(cfg.Browser, cfg.Scraper), log)

	itemScraper := scraper.New(provider, registry, m,
		ratelimit.NewPacer(cfg.Scraper.ItemDelayMin, cfg.Scraper.ItemDelayMax),
		scraper.Options{ReadyTimeout: cfg.Scraper.ReadyTimeout, ScrollDelay: cfg.Scraper.ScrollDelay},
		log)
	fetcher := patrol.New(provider, registry, m,
		patrol.Options{Headless: cfg.Browser.Headless, ReadyTimeout: cfg.Scraper.ReadyTimeout},
		log)

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	store := database.NewProductStore(db, cfg.Redis.Stream, log)
	outbox := database.NewOutboxRepository(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(outbox, redisClient, log, database.RelayConfigFrom(cfg.Redis))
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped with error", "error", err)
		}
	}()

	jobManager := jobs.NewManager(jobs.NewPostgresStore(db), itemScraper, store,
		jobs.Options{
			Headless:     cfg.Browser.Headless,
			PollInterval: cfg.Scraper.JobPollInterval,
			StaleAfter:   cfg.Scraper.JobStaleAfter,
		},
		log)
	go jobManager.StartWorker(ctx)

	sweeper := sweep.New(store, fetcher, provider, m, sweep.Options{Headless: cfg.Browser.Headless}, log)
	if cfg.Patrol.Enabled {
		go sweep.NewScheduler(sweeper, cfg.Patrol.Interval, cfg.Patrol.Limit, log).Start(ctx)
	}

	handlers := api.NewHandlers(itemScraper, fetcher, sweeper, jobManager, outbox,
		api.Options{DefaultHeadless: cfg.Browser.Headless, SweepLimit: cfg.Patrol.Limit, Selectors: overrides},
		log)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
			Metrics:        m.Handler(),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"browser_mode", cfg.Browser.Mode,
		"patrol_enabled", cfg.Patrol.Enabled,
		"patrol_interval", cfg.Patrol.Interval)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// reloadOnHangup re-reads the selector override file on every SIGHUP.
func reloadOnHangup(ctx context.Context, overrides *selectors.Table, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := overrides.Reload(); err != nil {
				log.Error("failed to reload selector overrides", "error", err)
				continue
			}
			log.Info("selector overrides reloaded", "sites", overrides.Sites())
		}
	}
}
