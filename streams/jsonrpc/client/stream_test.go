package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/scenario"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/server"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchange = `
chainId: 1337
genesis: 1700000000
deployer: "0x000000000000000000000000000000000000de01"
feeToSetter: "0x000000000000000000000000000000000000fee5"
tokens:
  - symbol: AAA
  - symbol: BBB
accounts:
  - name: alice
    balances:
      AAA: "1000000000000000000000000"
      BBB: "1000000000000000000000000"
pools:
  - name: ab
    tokenA: AAA
    tokenB: BBB
    ampBps: 30000
    provider: alice
    amountA: "100000000000000000000000"
    amountB: "100000000000000000000000"
`

func nextState(t *testing.T, c *Client) *engine.State {
	t.Helper()
	select {
	case state := <-c.State():
		return state
	case err := <-c.Err():
		t.Fatalf("client failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state")
	}
	return nil
}

func TestClient_FollowsStreamer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := scenario.ParseConfig([]byte(exchange))
	require.NoError(t, err)
	d, err := scenario.Deploy(ctx, cfg, logger)
	require.NoError(t, err)

	serverOps, err := stateops.NewStateOps(logger, prometheus.NewRegistry())
	require.NoError(t, err)
	streamer, err := server.NewStreamer(&server.Config{
		Chain:     d.Chain,
		Factories: []*dmm.Factory{d.Factory},
		Differ:    serverOps,
		Logger:    logger,
	})
	require.NoError(t, err)
	go func() { _ = streamer.Run(ctx) }()

	rpcServer := rpc.NewServer()
	defer rpcServer.Stop()
	require.NoError(t, rpcServer.RegisterName(jsonrpc.RpcNamespace, streamer.Service()))
	httpServer := httptest.NewServer(rpcServer.WebsocketHandler([]string{"*"}))
	defer httpServer.Close()

	clientOps, err := stateops.NewStateOps(logger, prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(ctx, Config{
		URL:              "ws://" + strings.TrimPrefix(httpServer.URL, "http://"),
		Logger:           logger,
		BufferSize:       10,
		StatePatcher:     clientOps.Patch,
		StateDecoder:     clientOps.DecodeStateJSON,
		StateDiffDecoder: clientOps.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	first := nextState(t, c)
	views, ok := first.Protocols[stateops.FactoryProtocolID(d.Factory.Address())].Data.([]dmm.PoolView)
	require.True(t, ok, "pool views are decoded to their schema type")
	require.Len(t, views, 1)

	for i := range 3 {
		_, err := d.Step(ctx, i, scenario.Step{
			Action:  scenario.ActionSwap,
			Account: "alice",
			Path:    []string{"AAA", "BBB"},
			Pools:   []string{"ab"},
			Amount:  "5000000000000000000",
		})
		require.NoError(t, err)
	}

	var last *engine.State
	for last == nil || last.Block.Number < d.Chain.BlockNumber() {
		last = nextState(t, c)
	}
	want := streamer.State()
	require.Equal(t, want.Block.Number, last.Block.Number)

	id := stateops.FactoryProtocolID(d.Factory.Address())
	wantJSON, err := json.Marshal(want.Protocols[id].Data)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(last.Protocols[id].Data)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))

	got := last.Protocols[id].Data.([]dmm.PoolView)[0]
	reserve0, reserve1 := d.Pools["ab"].Reserves()
	assert.Equal(t, reserve0, got.Reserve0)
	assert.Equal(t, reserve1, got.Reserve1)
}
