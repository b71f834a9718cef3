package stateops_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/differ"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	tokenpoolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/KyberNetwork/dmm-smart-contracts/scenario"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
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
  - symbol: CCC
accounts:
  - name: alice
    balances:
      AAA: "1000000000000000000000000"
      BBB: "1000000000000000000000000"
      CCC: "1000000000000000000000000"
pools:
  - name: ab
    tokenA: AAA
    tokenB: BBB
    ampBps: 20000
    provider: alice
    amountA: "100000000000000000000000"
    amountB: "100000000000000000000000"
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deploy(t *testing.T) *scenario.Deployment {
	t.Helper()
	cfg, err := scenario.ParseConfig([]byte(exchange))
	require.NoError(t, err)
	d, err := scenario.Deploy(context.Background(), cfg, discard())
	require.NoError(t, err)
	return d
}

func newOps(t *testing.T) *stateops.StateOps {
	t.Helper()
	ops, err := stateops.NewStateOps(discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	return ops
}

func TestSnapshot(t *testing.T) {
	d := deploy(t)
	state := stateops.Snapshot(d.Chain, []*dmm.Factory{d.Factory})

	assert.Equal(t, uint64(1337), state.ChainID)
	assert.Equal(t, d.Chain.BlockNumber(), state.Block.Number)
	assert.Equal(t, uint64(1_700_000_000), state.Block.Timestamp)
	assert.Equal(t, stateops.BlockHash(1337, state.Block.Number, 1_700_000_000), state.Block.Hash)
	require.Len(t, state.Protocols, 4)

	pools := state.Protocols[stateops.FactoryProtocolID(d.Factory.Address())]
	assert.Equal(t, dmm.Schema, pools.Schema)
	views := pools.Data.([]dmm.PoolView)
	require.Len(t, views, 1)
	assert.Equal(t, d.Pools["ab"].Address(), views[0].Address)
	require.NotNil(t, pools.SyncedBlockNumber)
	assert.Equal(t, state.Block.Number, *pools.SyncedBlockNumber)

	tokens := state.Protocols[stateops.TokensProtocolID].Data.([]tokenregistry.Token)
	symbols := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		symbols[token.Symbol] = true
	}
	for _, symbol := range []string{"WETH", "AAA", "BBB", "CCC"} {
		assert.True(t, symbols[symbol], symbol)
	}

	registry := state.Protocols[stateops.PoolsProtocolID].Data.(poolregistry.PoolRegistry)
	require.Len(t, registry.Pools, 1)
	assert.Equal(t, stateops.FactoryProtocolID(d.Factory.Address()), registry.Protocols[registry.Pools[0].Protocol])

	graph := state.Protocols[stateops.GraphProtocolID].Data.(*tokenpoolregistry.TokenPoolRegistryView)
	assert.Len(t, graph.Pools, 1)
	assert.Len(t, graph.Tokens, 2)

	assert.NotEqual(t, stateops.BlockHash(1337, 1, 0), stateops.BlockHash(1337, 2, 0))
	assert.NotEqual(t, stateops.BlockHash(1, 1, 0), stateops.BlockHash(2, 1, 0))
}

// wire marshals a diff the way the stream does and decodes it the way clients do.
func wire(t *testing.T, ops *stateops.StateOps, diff *differ.StateDiff) *differ.StateDiff {
	t.Helper()
	decoded := &differ.StateDiff{
		Timestamp: diff.Timestamp,
		FromBlock: diff.FromBlock,
		ToBlock:   diff.ToBlock,
		Protocols: make(map[engine.ProtocolID]differ.ProtocolDiff, len(diff.Protocols)),
	}
	for id, pd := range diff.Protocols {
		raw, err := json.Marshal(pd.Data)
		require.NoError(t, err)
		data, err := ops.DecodeStateDiffJSON(pd.Schema, raw)
		require.NoError(t, err, id)
		pd.Data = data
		decoded.Protocols[id] = pd
	}
	return decoded
}

func requireSameData(t *testing.T, want, got *engine.State) {
	t.Helper()
	require.Len(t, got.Protocols, len(want.Protocols))
	for id, w := range want.Protocols {
		g, ok := got.Protocols[id]
		require.True(t, ok, id)
		assert.Equal(t, w.Schema, g.Schema)
		assert.Equal(t, w.Meta, g.Meta)
		wantJSON, err := json.Marshal(w.Data)
		require.NoError(t, err)
		gotJSON, err := json.Marshal(g.Data)
		require.NoError(t, err)
		assert.JSONEq(t, string(wantJSON), string(gotJSON), id)
	}
}

func TestDiffPatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := deploy(t)
	ops := newOps(t)
	factories := []*dmm.Factory{d.Factory}

	before := stateops.Snapshot(d.Chain, factories)

	_, err := d.Step(ctx, 0, scenario.Step{Action: scenario.ActionSwap, Account: "alice", Path: []string{"AAA", "BBB"}, Pools: []string{"ab"}, Amount: "1000000000000000000000"})
	require.NoError(t, err)
	provider := d.Accounts["alice"]
	pool, err := d.Factory.CreatePair(ctx, provider, d.Token("BBB"), d.Token("CCC"), 15000)
	require.NoError(t, err)

	after := stateops.Snapshot(d.Chain, factories)
	require.Greater(t, after.Block.Number, before.Block.Number)

	diff, err := ops.Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, before.Block.Number, diff.FromBlock)
	assert.Equal(t, after.Block, diff.ToBlock)
	assert.Contains(t, diff.Protocols, stateops.FactoryProtocolID(d.Factory.Address()))
	assert.Contains(t, diff.Protocols, stateops.GraphProtocolID)
	assert.Contains(t, diff.Protocols, stateops.PoolsProtocolID)

	patched, err := ops.Patch(before, wire(t, ops, diff))
	require.NoError(t, err)
	assert.Equal(t, after.Block, patched.Block)
	requireSameData(t, after, patched)

	views := patched.Protocols[stateops.FactoryProtocolID(d.Factory.Address())].Data.([]dmm.PoolView)
	require.Len(t, views, 2)
	assert.Equal(t, pool.Address(), views[1].Address)
}

func TestDiff_UnchangedStateIsEmpty(t *testing.T) {
	d := deploy(t)
	ops := newOps(t)
	factories := []*dmm.Factory{d.Factory}

	a := stateops.Snapshot(d.Chain, factories)
	b := stateops.Snapshot(d.Chain, factories)
	diff, err := ops.Diff(a, b)
	require.NoError(t, err)
	assert.True(t, diff.IsEmpty())
}

func TestDecodeStateJSON(t *testing.T) {
	d := deploy(t)
	ops := newOps(t)
	state := stateops.Snapshot(d.Chain, []*dmm.Factory{d.Factory})

	for id, ps := range state.Protocols {
		raw, err := json.Marshal(ps.Data)
		require.NoError(t, err)
		data, err := ops.DecodeStateJSON(ps.Schema, raw)
		require.NoError(t, err, id)
		again, err := json.Marshal(data)
		require.NoError(t, err)
		assert.JSONEq(t, string(raw), string(again), id)
	}

	_, err := ops.DecodeStateJSON("unknown@v1", json.RawMessage(`{}`))
	require.Error(t, err)
	_, err = ops.DecodeStateDiffJSON("unknown@v1", json.RawMessage(`{}`))
	require.Error(t, err)
	_, err = ops.DecodeStateJSON(dmm.Schema, json.RawMessage(`{"not":"a list"}`))
	require.Error(t, err)
}
