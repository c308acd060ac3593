package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/nexus-chat-client/internal/config"
	"github.com/Tyrowin/nexus-chat-client/internal/devserver"
	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

func main() {
	fmt.Println("Starting Nexus development chat server...")

	cfg, err := config.LoadFromOS()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = closer.Close() }()

	devCfg := devserver.NewConfigFromEnv(os.Getenv)
	devCfg.Addr = cfg.DevServerAddr
	srv := devserver.New(devCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "server stopped", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	if err := srv.Shutdown(5 * time.Second); err != nil {
		logger.Error(context.Background(), "shutdown error", "err", err)
	}
}
