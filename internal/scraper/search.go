package scraper

import (
	"context"
	"fmt"
	"math"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/site"
)

const (
	DefaultMaxItems  = 10
	DefaultMaxScroll = 3

	candidateBuffer = 2.0
	candidateEnough = 1.5
)

type SearchRequest struct {
	URL       string `json:"url"`
	MaxItems  int    `json:"max_items"`
	MaxScroll int    `json:"max_scroll"`
	Headless  bool   `json:"headless"`
}

func (r *SearchRequest) applyDefaults() {
	if r.MaxItems <= 0 {
		r.MaxItems = DefaultMaxItems
	}
	if r.MaxScroll < 0 {
		r.MaxScroll = 0
	}
}

type SearchResult struct {
	Items      []models.ScrapedItem `json:"items"`
	Candidates int                  `json:"candidates"`
	Report     metrics.Report       `json:"report"`
}

// ScrapeSearch collects candidate item links from a listing page and scrapes
// them in discovery order, keeping only successful items, until MaxItems
// successes are collected or candidates run out. One session serves the
// whole call. The returned error is non-nil only when the listing URL is
// unsupported or no session could be opened.
func (s *Scraper) ScrapeSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	req.applyDefaults()
	result := SearchResult{Items: []models.ScrapedItem{}}
	logger := s.logger.With("search_url", req.URL)

	strategy, err := s.registry.Resolve(req.URL)
	if err != nil {
		return result, fmt.Errorf("failed to resolve search url: %w", err)
	}

	lease, err := browser.Acquire(ctx, s.provider, nil, req.Headless)
	if err != nil {
		logger.Error("failed to open browser session", "error", err)
		s.metrics.IncError(browser.ErrorKind(err))
		return result, err
	}
	defer s.release(lease)
	sess := lease.Session()

	batch := metrics.NewBatch(metrics.ModeSearch, s.metrics, logger)

	candidates := s.collect(ctx, sess, strategy, req)
	result.Candidates = len(candidates)
	logger.Info("collected candidates", "count", len(candidates), "max_items", req.MaxItems)

	for _, u := range candidates {
		if len(result.Items) >= req.MaxItems {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Warn("search interrupted", "error", err)
			break
		}

		itemStrategy, err := s.registry.Resolve(u)
		if err != nil {
			logger.Debug("skipping unsupported candidate", "url", u)
			continue
		}

		item := s.scrape(ctx, sess, itemStrategy, u)
		batch.Record(item)
		if !item.Succeeded() {
			s.limiter.Failure()
			continue
		}
		s.limiter.Success()
		result.Items = append(result.Items, item)
	}

	result.Report = batch.Finish()
	logger.Info("search scrape finished",
		"items", len(result.Items),
		"attempted", result.Report.Attempted,
		"duration", result.Report.Duration)
	return result, nil
}

// collect gathers de-duplicated candidate links in discovery order,
// scrolling or paging until enough are buffered or the attempt budget is
// spent. Every collected link is returned; the caller stops visiting once
// MaxItems succeed.
func (s *Scraper) collect(ctx context.Context, sess browser.Session, strategy *site.Strategy, req SearchRequest) []string {
	logger := s.logger.With("site", strategy.Site, "search_url", req.URL)

	if err := sess.Navigate(ctx, req.URL); err != nil {
		logger.Warn("failed to load search page", "error", err)
		s.metrics.IncError(browser.ErrorKind(err))
		return nil
	}

	enough := int(math.Ceil(candidateEnough * float64(req.MaxItems)))
	budget := candidateBuffer * float64(req.MaxScroll)

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			break
		}
		page, err := snapshot(ctx, sess, sess.URL())
		if err != nil {
			logger.Warn("failed to read search page", "error", err)
			break
		}
		for _, link := range strategy.CandidateLinks(page) {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
		}
		logger.Debug("candidate scan", "attempt", attempt, "candidates", len(out))

		if len(out) >= enough || float64(attempt) >= budget {
			break
		}
		if !s.advance(ctx, sess, strategy) {
			break
		}
		pause(ctx, s.opts.ScrollDelay)
	}
	return out
}

// advance moves the listing forward: pagination when the site has it,
// otherwise an infinite-scroll step. It reports whether the listing can
// still produce new links.
func (s *Scraper) advance(ctx context.Context, sess browser.Session, strategy *site.Strategy) bool {
	if strategy.Search.Next != nil {
		if next := strategy.Search.Next(); len(next) > 0 {
			followed, err := sess.FollowFirst(ctx, next)
			if err != nil {
				s.logger.Warn("failed to open next page", "error", err)
				return false
			}
			if followed {
				return true
			}
		}
	}
	if err := sess.ScrollToBottom(ctx); err != nil {
		s.logger.Debug("scroll failed", "error", err)
		return false
	}
	return true
}

