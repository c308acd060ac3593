// Package config builds the client runtime configuration.
//
// Values are layered, later sources winning:
//
//	defaults → JSON file (-c / -config) → CHAT_* environment → flags
//
// and the result is sanitized so every component receives usable values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// RateLimitConfig is the outbound chat message token bucket.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the client settings.
type Config struct {
	StorePath  string
	StoreKind  string
	WatchStore bool

	DefaultChannel string
	// HandshakeTimeout bounds the auth/register exchange. Zero disables it.
	HandshakeTimeout time.Duration

	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	Origin         string
	RateLimit      RateLimitConfig

	LogLevel string
	LogFile  string

	DevServerAddr string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		StorePath:        "config.json",
		StoreKind:        "json",
		WatchStore:       true,
		DefaultChannel:   "general",
		HandshakeTimeout: 15 * time.Second,
		DialTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingPeriod:       54 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: 200 * time.Millisecond,
		},
		LogLevel:      "info",
		DevServerAddr: ":9000",
	}
}

// Load builds a Config from args (without the program name) and getenv.
// Unreadable config files and malformed flags are reported as errors.
func Load(args []string, getenv func(string) string) (cfg *Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = fmt.Errorf("load config: %v", r)
		}
	}()

	cfg = Default()
	parseJSON(cfg, args)
	applyEnv(cfg, getenv)
	parseFlags(cfg, args)
	sanitize(cfg)
	return cfg, nil
}

// LoadFromOS loads the configuration of the running process.
func LoadFromOS() (*Config, error) {
	return Load(os.Args[1:], os.Getenv)
}

func sanitize(cfg *Config) {
	d := Default()

	cfg.StoreKind = strings.ToLower(strings.TrimSpace(cfg.StoreKind))
	if cfg.StoreKind != "json" && cfg.StoreKind != "sqlite" {
		cfg.StoreKind = d.StoreKind
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		cfg.StorePath = d.StorePath
	}
	if cfg.StoreKind != "json" {
		cfg.WatchStore = false
	}

	cfg.DefaultChannel = strings.TrimSpace(cfg.DefaultChannel)
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = d.DefaultChannel
	}
	if cfg.HandshakeTimeout < 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = d.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = d.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = d.SendBuffer
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = d.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = d.LogLevel
	}
	if cfg.DevServerAddr == "" {
		cfg.DevServerAddr = d.DevServerAddr
	}
}
