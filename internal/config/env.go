package config

import (
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays CHAT_* environment variables. Unparseable values are
// ignored and the previous value is kept.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}

	if v := getenv("CHAT_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := getenv("CHAT_STORE_KIND"); v != "" {
		cfg.StoreKind = v
	}
	if v := getenv("CHAT_WATCH_STORE"); v != "" {
		cfg.WatchStore = parseBoolValue(v, cfg.WatchStore)
	}
	if v := getenv("CHAT_DEFAULT_CHANNEL"); v != "" {
		cfg.DefaultChannel = v
	}
	if v := getenv("CHAT_HANDSHAKE_TIMEOUT"); v != "" {
		cfg.HandshakeTimeout = parseDurationValue(v, cfg.HandshakeTimeout)
	}
	if v := getenv("CHAT_DIAL_TIMEOUT"); v != "" {
		cfg.DialTimeout = parseDurationValue(v, cfg.DialTimeout)
	}
	if v := getenv("CHAT_MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(v, cfg.MaxMessageSize)
	}
	if v := getenv("CHAT_ORIGIN"); v != "" {
		cfg.Origin = v
	}
	if v := getenv("CHAT_RATE_LIMIT_BURST"); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}
	if v := getenv("CHAT_RATE_LIMIT_REFILL_INTERVAL"); v != "" {
		cfg.RateLimit.RefillInterval = parseDurationValue(v, cfg.RateLimit.RefillInterval)
	}
	if v := getenv("CHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("CHAT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("CHAT_DEVSERVER_ADDR"); v != "" {
		cfg.DevServerAddr = v
	}
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBoolValue(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

// parseDurationValue accepts a Go duration ("500ms") or whole seconds ("3").
func parseDurationValue(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}
