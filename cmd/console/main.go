// Command console is an interactive explorer of an exchange state stream: block info,
// pools, live pool monitoring and route finding.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chains/exchange"
	"github.com/KyberNetwork/dmm-smart-contracts/cmd/client/config"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	logPath := flag.String("log", "console.log", "File the console logs to.")
	flag.Parse()

	if err := run(*configPath, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "\n%s%v. Check %s for details.%s\n", red, err, *logPath, reset)
		os.Exit(1)
	}
}

func run(configPath, logPath string) error {
	// the terminal belongs to the console, logs go to a file
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, nil))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", configPath, "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := exchange.Dial(ctx, cfg.StateStreamURL, logger.With("component", "exchange-client"), prometheus.NewRegistry())
	if err != nil {
		logger.Error("Failed to initialize client", "url", cfg.StateStreamURL, "error", err)
		return err
	}

	c := newConsole(os.Stdin, os.Stdout)
	fmt.Printf("%sStarting DMM State Console...%s\nLogs are being written to %q\n", green, reset, logPath)
	time.Sleep(500 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.run(ctx) }()

	for {
		select {
		case state, ok := <-client.State():
			if !ok {
				return nil
			}
			if cfg.ChainID != 0 && state.ChainID != cfg.ChainID {
				return fmt.Errorf("state stream serves chain %d, want %d", state.ChainID, cfg.ChainID)
			}
			c.state.Store(state)
		case err, ok := <-client.Err():
			if !ok {
				return nil
			}
			logger.Error("Fatal client error", "error", err)
			return err
		case err := <-done:
			if errors.Is(err, errQuit) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				fmt.Printf("%sExiting...%s\n", yellow, reset)
				return nil
			}
			return err
		case <-ctx.Done():
			fmt.Printf("\n%sShutting down...%s\n", yellow, reset)
			return nil
		}
	}
}
