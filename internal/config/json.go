package config

import (
	"encoding/json"
	"os"

	"github.com/Tyrowin/nexus-chat-client/internal/flagx"
	"github.com/Tyrowin/nexus-chat-client/internal/timex"
)

// JSONConfig mirrors Config for config files. Durations accept "3s" or
// integer nanoseconds. Keys missing from the file keep their current value.
type JSONConfig struct {
	StorePath        string         `json:"store_path"`
	StoreKind        string         `json:"store_kind"`
	WatchStore       bool           `json:"watch_store"`
	DefaultChannel   string         `json:"default_channel"`
	HandshakeTimeout timex.Duration `json:"handshake_timeout"`
	DialTimeout      timex.Duration `json:"dial_timeout"`
	WriteTimeout     timex.Duration `json:"write_timeout"`
	PongWait         timex.Duration `json:"pong_wait"`
	PingPeriod       timex.Duration `json:"ping_period"`
	MaxMessageSize   int64          `json:"max_message_size"`
	SendBuffer       int            `json:"send_buffer"`
	Origin           string         `json:"origin"`
	RateLimitBurst   int            `json:"rate_limit_burst"`
	RateLimitRefill  timex.Duration `json:"rate_limit_refill_interval"`
	LogLevel         string         `json:"log_level"`
	LogFile          string         `json:"log_file"`
	DevServerAddr    string         `json:"devserver_addr"`
}

// parseJSON overlays the file named by -c/-config onto cfg. It panics when
// the file cannot be read or decoded; Load turns that into an error.
func parseJSON(cfg *Config, args []string) {
	path := flagx.JSONConfigFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	jc := toJSON(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	fromJSON(cfg, jc)
}

func toJSON(cfg *Config) JSONConfig {
	return JSONConfig{
		StorePath:        cfg.StorePath,
		StoreKind:        cfg.StoreKind,
		WatchStore:       cfg.WatchStore,
		DefaultChannel:   cfg.DefaultChannel,
		HandshakeTimeout: timex.Duration{Duration: cfg.HandshakeTimeout},
		DialTimeout:      timex.Duration{Duration: cfg.DialTimeout},
		WriteTimeout:     timex.Duration{Duration: cfg.WriteTimeout},
		PongWait:         timex.Duration{Duration: cfg.PongWait},
		PingPeriod:       timex.Duration{Duration: cfg.PingPeriod},
		MaxMessageSize:   cfg.MaxMessageSize,
		SendBuffer:       cfg.SendBuffer,
		Origin:           cfg.Origin,
		RateLimitBurst:   cfg.RateLimit.Burst,
		RateLimitRefill:  timex.Duration{Duration: cfg.RateLimit.RefillInterval},
		LogLevel:         cfg.LogLevel,
		LogFile:          cfg.LogFile,
		DevServerAddr:    cfg.DevServerAddr,
	}
}

func fromJSON(cfg *Config, jc JSONConfig) {
	cfg.StorePath = jc.StorePath
	cfg.StoreKind = jc.StoreKind
	cfg.WatchStore = jc.WatchStore
	cfg.DefaultChannel = jc.DefaultChannel
	cfg.HandshakeTimeout = jc.HandshakeTimeout.Duration
	cfg.DialTimeout = jc.DialTimeout.Duration
	cfg.WriteTimeout = jc.WriteTimeout.Duration
	cfg.PongWait = jc.PongWait.Duration
	cfg.PingPeriod = jc.PingPeriod.Duration
	cfg.MaxMessageSize = jc.MaxMessageSize
	cfg.SendBuffer = jc.SendBuffer
	cfg.Origin = jc.Origin
	cfg.RateLimit.Burst = jc.RateLimitBurst
	cfg.RateLimit.RefillInterval = jc.RateLimitRefill.Duration
	cfg.LogLevel = jc.LogLevel
	cfg.LogFile = jc.LogFile
	cfg.DevServerAddr = jc.DevServerAddr
}
