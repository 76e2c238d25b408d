package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/config"
	"github.com/halc8312/esp/internal/database"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/patrol"
	"github.com/halc8312/esp/internal/ratelimit"
	"github.com/halc8312/esp/internal/scraper"
	"github.com/halc8312/esp/internal/selectors"
	"github.com/halc8312/esp/internal/site"
	"github.com/halc8312/esp/internal/sweep"
	"github.com/halc8312/esp/pkg/logger"
)

func main() {
	var (
		mode       = flag.String("mode", "item", "item, search, patrol or sweep")
		targetURL  = flag.String("url", "", "Item or search URL")
		maxItems   = flag.Int("max-items", scraper.DefaultMaxItems, "Maximum items to keep from a search")
		maxScroll  = flag.Int("max-scroll", scraper.DefaultMaxScroll, "Maximum scrolls or page turns on a search")
		limit      = flag.Int("limit", 0, "Records per sweep (defaults to PATROL_LIMIT)")
		headless   = flag.Bool("headless", true, "Run browser in headless mode")
		save       = flag.Bool("save", false, "Save scraped items to the database")
		owner      = flag.Int64("owner", 0, "Owner id used with -save")
		outputFile = flag.String("output", "", "Write JSON to this file instead of stdout")
	)
	flag.Parse()

	if *mode != "sweep" && *targetURL == "" {
		fmt.Fprintln(os.Stderr, "Please provide a URL with -url")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overrides, err := selectors.Load(cfg.Selectors.Path)
	if err != nil {
		log.Error("failed to load selector overrides", "error", err)
		os.Exit(1)
	}

	registry := site.NewRegistry(overrides)
	m := metrics.New()
	provider := browser.NewProvider(cfg.Browser.Mode, browser.OptionsFrom(cfg.Browser, cfg.Scraper), log)
	itemScraper := scraper.New(provider, registry, m,
		ratelimit.NewPacer(cfg.Scraper.ItemDelayMin, cfg.Scraper.ItemDelayMax),
		scraper.Options{ReadyTimeout: cfg.Scraper.ReadyTimeout, ScrollDelay: cfg.Scraper.ScrollDelay},
		log)
	fetcher := patrol.New(provider, registry, m,
		patrol.Options{Headless: *headless, ReadyTimeout: cfg.Scraper.ReadyTimeout},
		log)

	var out any
	switch *mode {
	case "item":
		item, err := itemScraper.ScrapeItem(ctx, *targetURL, *headless)
		if err != nil {
			log.Error("scrape failed", "error", err)
			os.Exit(1)
		}
		out = item
		if *save {
			saveItems(ctx, cfg, log, *owner, []models.ScrapedItem{item})
		}
	case "search":
		result, err := itemScraper.ScrapeSearch(ctx, scraper.SearchRequest{
			URL:       *targetURL,
			MaxItems:  *maxItems,
			MaxScroll: *maxScroll,
			Headless:  *headless,
		})
		if err != nil {
			log.Error("search failed", "error", err)
			os.Exit(1)
		}
		out = result
		if *save {
			saveItems(ctx, cfg, log, *owner, result.Items)
		}
	case "patrol":
		out = fetcher.Fetch(ctx, *targetURL, nil)
	case "sweep":
		db := connect(ctx, cfg, log)
		defer db.Close()

		n := *limit
		if n <= 0 {
			n = cfg.Patrol.Limit
		}
		store := database.NewProductStore(db, cfg.Redis.Stream, log)
		report, err := sweep.New(store, fetcher, provider, m, sweep.Options{Headless: *headless}, log).Run(ctx, n)
		if err != nil {
			log.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		out = report
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	if err := writeJSON(*outputFile, out); err != nil {
		log.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) *database.DB {
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	return db
}

func saveItems(ctx context.Context, cfg *config.Config, log *slog.Logger, owner int64, items []models.ScrapedItem) {
	db := connect(ctx, cfg, log)
	defer db.Close()

	report, err := database.NewProductStore(db, cfg.Redis.Stream, log).SaveScrapedItems(ctx, owner, items)
	if err != nil {
		log.Error("failed to save items", "error", err)
		return
	}
	log.Info("items saved", "saved", report.Saved, "created", report.Created, "skipped", report.Skipped)
}

func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
