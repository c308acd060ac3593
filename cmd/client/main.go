package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/nexus-chat-client/internal/cli"
	"github.com/Tyrowin/nexus-chat-client/internal/client"
	"github.com/Tyrowin/nexus-chat-client/internal/config"
	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/secret"
)

func main() {
	defer secret.Purge()

	cfg, err := config.LoadFromOS()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(ctx, cfg, client.Options{Logger: logger})
	if err != nil {
		logger.Error(ctx, "cannot start client", "err", err)
		fmt.Fprintln(os.Stderr, err)
		return
	}

	cli.NewApp(c, os.Stdin, os.Stdout).Run(ctx, c.Events())

	if err := c.Close(); err != nil {
		logger.Error(context.Background(), "error during shutdown", "err", err)
	}
}
