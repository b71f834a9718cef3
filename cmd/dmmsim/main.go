// Command dmmsim deploys an exchange from a scenario, replays its steps and serves the
// exchange over JSON-RPC: read-only queries and the state stream share the dmm namespace.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/api"
	"github.com/KyberNetwork/dmm-smart-contracts/cmd/dmmsim/config"
	"github.com/KyberNetwork/dmm-smart-contracts/metrics"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/scenario"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/server"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	configPath := flag.String("config", "dmmsim.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger); err != nil {
		rootLogger.Error("dmmsim stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ServerConfig, rootLogger *slog.Logger) error {
	scn, err := scenario.LoadConfig(cfg.Scenario)
	if err != nil {
		return err
	}
	d, err := scenario.Deploy(ctx, scn, rootLogger.With("component", "scenario"))
	if err != nil {
		return fmt.Errorf("failed to deploy scenario: %w", err)
	}
	rootLogger.Info("exchange deployed",
		"chain_id", scn.ChainID,
		"factory", d.Factory.Address(),
		"router", d.Router.Address(),
		"zap", d.Zap.Address(),
		"pools", len(d.Pools),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	detach := metrics.NewMetrics(registry).Attach(d.Chain)
	defer detach()

	stateOps, err := stateops.NewStateOps(rootLogger.With("component", "stateops"), registry)
	if err != nil {
		return fmt.Errorf("failed to create state ops: %w", err)
	}
	streamer, err := server.NewStreamer(&server.Config{
		Chain:      d.Chain,
		Factories:  []*dmm.Factory{d.Factory},
		Differ:     stateOps,
		Logger:     rootLogger.With("component", "streamer"),
		BufferSize: cfg.StreamBufferSize,
	})
	if err != nil {
		return err
	}
	service, err := api.New(&api.Config{
		Chain:   d.Chain,
		Factory: d.Factory,
		Router:  d.Router,
		Zap:     d.Zap,
		Logger:  rootLogger.With("component", "api"),
	})
	if err != nil {
		return err
	}

	rpcServer := rpc.NewServer()
	defer rpcServer.Stop()
	if err := rpcServer.RegisterName(api.Namespace, service); err != nil {
		return fmt.Errorf("failed to register api: %w", err)
	}
	if err := rpcServer.RegisterName(jsonrpc.RpcNamespace, streamer.Service()); err != nil {
		return fmt.Errorf("failed to register state stream: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return streamer.Run(ctx)
	})

	wsHandler := rpcServer.WebsocketHandler(cfg.AllowedOrigins)
	rpcHTTP := &http.Server{
		Addr: cfg.ListenAddress,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				wsHandler.ServeHTTP(w, r)
				return
			}
			rpcServer.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(ctx, g, rpcHTTP, rootLogger.With("component", "rpc"))

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		serve(ctx, g, &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}, rootLogger.With("component", "metrics"))
	}

	g.Go(func() error {
		replay(ctx, d, scn.Steps, cfg, rootLogger.With("component", "replay"))
		return nil
	})

	return g.Wait()
}

// serve runs srv in g until ctx is done.
func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("http server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// replay executes steps one per interval. A step whose outcome differs from its
// expectation is logged and skipped.
func replay(ctx context.Context, d *scenario.Deployment, steps []scenario.Step, cfg *config.ServerConfig, logger *slog.Logger) {
	if len(steps) == 0 {
		return
	}
	interval := cfg.StepInterval
	if interval == 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 0; ; round++ {
		for i, step := range steps {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := d.Step(ctx, i, step); err != nil {
				logger.Warn("step failed", "round", round, "index", i, "action", step.Action, "error", err)
			}
		}
		logger.Info("scenario replayed", "round", round, "steps", len(steps), "block", d.Chain.BlockNumber())
		if !cfg.Loop {
			return
		}
	}
}
