package config

import (
	"flag"
	"io"

	"github.com/Tyrowin/nexus-chat-client/internal/flagx"
)

// parseFlags overlays command-line flags onto cfg.
//
// Supported flags:
//
//	-s string     store path
//	-k string     store kind (json|sqlite)
//	-w bool       watch the JSON store for external edits
//	-ch string    default channel
//	-ht duration  handshake timeout (0 disables)
//	-dt duration  dial timeout
//	-o string     Origin header sent when dialing
//	-rb int       rate limit burst
//	-ri duration  rate limit refill interval
//	-l string     log level
//	-lf string    log file (empty logs to stderr)
//	-a string     development server listen address
//
// Only these flags are picked out of args, so other components can define
// their own. It panics on malformed values; Load turns that into an error.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{
		"-s", "-k", "-w", "-ch", "-ht", "-dt", "-o", "-rb", "-ri", "-l", "-lf", "-a",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.StorePath, "s", cfg.StorePath, "store path")
	fs.StringVar(&cfg.StoreKind, "k", cfg.StoreKind, "store kind (json|sqlite)")
	fs.BoolVar(&cfg.WatchStore, "w", cfg.WatchStore, "watch the JSON store for external edits")
	fs.StringVar(&cfg.DefaultChannel, "ch", cfg.DefaultChannel, "default channel")
	fs.DurationVar(&cfg.HandshakeTimeout, "ht", cfg.HandshakeTimeout, "handshake timeout (0 disables)")
	fs.DurationVar(&cfg.DialTimeout, "dt", cfg.DialTimeout, "dial timeout")
	fs.StringVar(&cfg.Origin, "o", cfg.Origin, "Origin header")
	fs.IntVar(&cfg.RateLimit.Burst, "rb", cfg.RateLimit.Burst, "rate limit burst")
	fs.DurationVar(&cfg.RateLimit.RefillInterval, "ri", cfg.RateLimit.RefillInterval, "rate limit refill interval")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "lf", cfg.LogFile, "log file")
	fs.StringVar(&cfg.DevServerAddr, "a", cfg.DevServerAddr, "development server listen address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
