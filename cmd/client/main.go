// Command client follows the state stream of an exchange and logs a summary of every
// state it indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KyberNetwork/dmm-smart-contracts/chains/exchange"
	"github.com/KyberNetwork/dmm-smart-contracts/cmd/client/config"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger, *configPath); err != nil {
		logger.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	logger.Info("loading configuration", "path", configPath)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// stop on Ctrl+C or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := exchange.Dial(ctx, cfg.StateStreamURL, logger.With("component", "exchange-client"), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	for {
		select {
		case state, ok := <-client.State():
			if !ok {
				return nil
			}
			if cfg.ChainID != 0 && state.ChainID != cfg.ChainID {
				return fmt.Errorf("state stream serves chain %d, want %d", state.ChainID, cfg.ChainID)
			}
			logger.Info("state indexed",
				"block", state.Block.Number,
				"pools", len(state.IndexedDMM.All()),
				"tokens", len(state.IndexedTokenSystem.All()),
			)
		case err, ok := <-client.Err():
			if !ok {
				return nil
			}
			return fmt.Errorf("state stream: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}
