package browser

import (
	"log/slog"

	"github.com/halc8312/esp/internal/config"
)

// OptionsFrom maps the browser and scraper settings onto session options.
func OptionsFrom(b config.BrowserConfig, s config.ScraperConfig) *Options {
	opts := DefaultOptions()
	opts.Headless = b.Headless
	opts.Timeout = b.Timeout
	opts.ExecutablePath = b.ExecutablePath
	opts.UserAgent = b.UserAgent
	opts.ViewportWidth = b.ViewportWidth
	opts.ViewportHeight = b.ViewportHeight
	opts.AcceptLanguage = b.AcceptLanguage
	opts.TimezoneID = b.TimezoneID
	opts.Locale = b.Locale
	opts.ProxyServer = b.ProxyServer
	opts.ExtraHeaders["Accept-Language"] = b.AcceptLanguage
	opts.SettleDelay = s.SettleDelay
	opts.ReadyTimeout = s.ReadyTimeout
	opts.MaxRetries = s.MaxRetries
	return opts
}

// NewProvider picks the session backend for mode.
func NewProvider(mode string, opts *Options, logger *slog.Logger) Provider {
	if mode == config.BrowserModeStatic {
		return NewStaticProvider(opts, logger)
	}
	return NewPlaywrightProvider(opts, logger)
}
