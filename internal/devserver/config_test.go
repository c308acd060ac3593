package devserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestNewConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"ALLOWED_ORIGINS":            "http://a.test, *",
		"DEVSERVER_CHANNELS":         "lobby, dev",
		"MAX_MESSAGE_SIZE":           "2048",
		"RATE_LIMIT_BURST":           "3",
		"RATE_LIMIT_REFILL_INTERVAL": "500ms",
		"HISTORY_LIMIT":              "7",
	}
	cfg := NewConfigFromEnv(func(k string) string { return env[k] })

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"http://a.test", "*"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"lobby", "dev"}, cfg.Channels)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 3, RefillInterval: 500 * time.Millisecond}, cfg.RateLimit)
	assert.Equal(t, 7, cfg.HistoryLimit)
}

func TestNewConfigFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	env := map[string]string{
		"MAX_MESSAGE_SIZE":           "-1",
		"RATE_LIMIT_BURST":           "lots",
		"RATE_LIMIT_REFILL_INTERVAL": "0",
	}
	cfg := NewConfigFromEnv(func(k string) string { return env[k] })

	assert.Equal(t, NewConfig(), cfg)
}

func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{
		Channels:   []string{" general ", "", "general", "help"},
		BcryptCost: 99,
	})

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, int64(64*1024), cfg.MaxMessageSize)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.Equal(t, []string{"general", "help"}, cfg.Channels)

	empty := sanitizeConfig(Config{})
	assert.Equal(t, DefaultChannels, empty.Channels)
}

func TestOriginPolicy(t *testing.T) {
	policy, rejected := newOriginPolicy([]string{"HTTP://Localhost:9000/path", "not a url", ""})
	assert.Equal(t, []string{"not a url"}, rejected)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:9000", true},
		{"http://LOCALHOST:9000", true},
		{"http://evil.test", false},
		{"::", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, policy.allows(r), "origin %q", tt.origin)
	}

	all, _ := newOriginPolicy([]string{"*"})
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anything.test")
	assert.True(t, all.allows(r))
}
