package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrowserModePlaywright, cfg.Browser.Mode)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "ja-JP", cfg.Browser.Locale)
	assert.Equal(t, "Asia/Tokyo", cfg.Browser.TimezoneID)
	assert.Equal(t, 15*time.Minute, cfg.Patrol.Interval)
	assert.Equal(t, 15, cfg.Patrol.Limit)
	assert.Equal(t, "config/selectors.json", cfg.Selectors.Path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BROWSER_MODE", "static")
	t.Setenv("PATROL_LIMIT", "3")
	t.Setenv("PATROL_INTERVAL", "1m")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrowserModeStatic, cfg.Browser.Mode)
	assert.Equal(t, 3, cfg.Patrol.Limit)
	assert.Equal(t, time.Minute, cfg.Patrol.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad mode", map[string]string{"BROWSER_MODE": "firefox"}, "BROWSER_MODE"},
		{"delay range", map[string]string{"SCRAPER_ITEM_DELAY_MIN": "5s", "SCRAPER_ITEM_DELAY_MAX": "1s"}, "SCRAPER_ITEM_DELAY_MIN"},
		{"zero limit", map[string]string{"PATROL_LIMIT": "0"}, "PATROL_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "esp", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/esp?sslmode=disable", d.DSN())
}
