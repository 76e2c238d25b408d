package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Browser   BrowserConfig
	Patrol    PatrolConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Selectors SelectorsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type ScraperConfig struct {
	ItemDelayMin    time.Duration
	ItemDelayMax    time.Duration
	MaxRetries      int
	SettleDelay     time.Duration
	ReadyTimeout    time.Duration
	ScrollDelay     time.Duration
	JobPollInterval time.Duration
	JobStaleAfter   time.Duration
}

type BrowserConfig struct {
	Mode           string
	Headless       bool
	Timeout        time.Duration
	ExecutablePath string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type PatrolConfig struct {
	Enabled  bool
	Interval time.Duration
	Limit    int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type SelectorsConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	BrowserModePlaywright = "browser"
	BrowserModeStatic     = "static"
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getStringSliceOrDefault("SERVER_CORS_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			ItemDelayMin:    getDurationOrDefault("SCRAPER_ITEM_DELAY_MIN", 1*time.Second),
			ItemDelayMax:    getDurationOrDefault("SCRAPER_ITEM_DELAY_MAX", 3*time.Second),
			MaxRetries:      getIntOrDefault("SCRAPER_MAX_RETRIES", 2),
			SettleDelay:     getDurationOrDefault("SCRAPER_SETTLE_DELAY", 2*time.Second),
			ReadyTimeout:    getDurationOrDefault("SCRAPER_READY_TIMEOUT", 10*time.Second),
			ScrollDelay:     getDurationOrDefault("SCRAPER_SCROLL_DELAY", 2*time.Second),
			JobPollInterval: getDurationOrDefault("SCRAPER_JOB_POLL_INTERVAL", 10*time.Second),
			JobStaleAfter:   getDurationOrDefault("SCRAPER_JOB_STALE_AFTER", 30*time.Minute),
		},
		Browser: BrowserConfig{
			Mode:           getEnvOrDefault("BROWSER_MODE", BrowserModePlaywright),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ExecutablePath: getEnvOrDefault("BROWSER_EXECUTABLE_PATH", ""),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ja-JP,ja;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Patrol: PatrolConfig{
			Enabled:  getBoolOrDefault("PATROL_ENABLED", true),
			Interval: getDurationOrDefault("PATROL_INTERVAL", 15*time.Minute),
			Limit:    getIntOrDefault("PATROL_LIMIT", 15),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "esp"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns: int32(getIntOrDefault("DB_MIN_CONNS", 1)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:product_changes"),
			PollInterval: getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("REDIS_RELAY_BATCH_SIZE", 100),
		},
		Selectors: SelectorsConfig{
			Path: getEnvOrDefault("SELECTORS_PATH", "config/selectors.json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Browser.Mode != BrowserModePlaywright && c.Browser.Mode != BrowserModeStatic {
		return fmt.Errorf("BROWSER_MODE must be %q or %q", BrowserModePlaywright, BrowserModeStatic)
	}

	if c.Scraper.ItemDelayMin > c.Scraper.ItemDelayMax {
		return fmt.Errorf("SCRAPER_ITEM_DELAY_MIN cannot be greater than SCRAPER_ITEM_DELAY_MAX")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Patrol.Limit < 1 {
		return fmt.Errorf("PATROL_LIMIT must be at least 1")
	}

	if c.Patrol.Enabled && c.Patrol.Interval <= 0 {
		return fmt.Errorf("PATROL_INTERVAL must be positive")
	}

	return nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
