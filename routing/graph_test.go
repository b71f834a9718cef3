package routing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/periphery/router"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/routing"
	"github.com/KyberNetwork/dmm-smart-contracts/scenario"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The direct AAA/BBB pool is shallow; AAA/CCC and CCC/BBB are deep.
const exchange = `
chainId: 1337
genesis: 1700000000
deployer: "0x000000000000000000000000000000000000de01"
feeToSetter: "0x000000000000000000000000000000000000fee5"
tokens:
  - symbol: AAA
  - symbol: BBB
  - symbol: CCC
  - symbol: TAX
    feeOnTransferBps: 100
  - symbol: LONE
accounts:
  - name: alice
    balances:
      AAA: "100000000000000000000000000"
      BBB: "100000000000000000000000000"
      CCC: "100000000000000000000000000"
      TAX: "100000000000000000000000000"
pools:
  - name: ab
    tokenA: AAA
    tokenB: BBB
    ampBps: 10000
    provider: alice
    amountA: "1000000000000000000000"
    amountB: "1000000000000000000000"
  - name: ac
    tokenA: AAA
    tokenB: CCC
    ampBps: 20000
    provider: alice
    amountA: "1000000000000000000000000"
    amountB: "1000000000000000000000000"
  - name: cb
    tokenA: CCC
    tokenB: BBB
    ampBps: 20000
    provider: alice
    amountA: "1000000000000000000000000"
    amountB: "1000000000000000000000000"
  - name: at
    tokenA: AAA
    tokenB: TAX
    ampBps: 10000
    provider: alice
    amountA: "1000000000000000000000000"
    amountB: "1000000000000000000000000"
`

func deploy(t *testing.T) (*scenario.Deployment, *routing.Graph) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := scenario.ParseConfig([]byte(exchange))
	require.NoError(t, err)
	d, err := scenario.Deploy(context.Background(), cfg, logger)
	require.NoError(t, err)
	g, err := routing.FromState(stateops.Snapshot(d.Chain, []*dmm.Factory{d.Factory}))
	require.NoError(t, err)
	return d, g
}

func TestFindBestSwapPath(t *testing.T) {
	d, g := deploy(t)
	aaa, bbb, ccc := d.Token("AAA"), d.Token("BBB"), d.Token("CCC")

	tests := []struct {
		name      string
		amountIn  *uint256.Int
		wantPath  []common.Address
		wantPools []string
	}{
		{
			name:      "small trade stays on the direct pool",
			amountIn:  uint256.NewInt(1_000_000_000_000_000),
			wantPath:  []common.Address{aaa, bbb},
			wantPools: []string{"ab"},
		},
		{
			name:      "large trade goes through the deep pools",
			amountIn:  uint256.MustFromDecimal("100000000000000000000"),
			wantPath:  []common.Address{aaa, ccc, bbb},
			wantPools: []string{"ac", "cb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hops, amountOut, err := g.FindBestSwapPath(aaa, bbb, tt.amountIn, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, routing.Path(hops))

			pools := make([]common.Address, len(tt.wantPools))
			for i, name := range tt.wantPools {
				pools[i] = d.Pools[name].Address()
			}
			require.Equal(t, pools, routing.Pools(hops))

			amounts, err := d.Router.GetAmountsOut(tt.amountIn, pools, tt.wantPath)
			require.NoError(t, err)
			assert.Equal(t, amounts[len(amounts)-1], amountOut, "quote matches the router")

			out, err := d.Router.SwapExactTokensForTokens(context.Background(), d.Accounts["alice"], tt.amountIn, amountOut, router.SwapParams{
				PoolsPath: pools,
				Path:      tt.wantPath,
				To:        d.Accounts["alice"],
				Deadline:  uint64(1<<63 - 1),
			})
			require.NoError(t, err)
			assert.Equal(t, amountOut, out[len(out)-1])
		})
	}
}

func TestFindBestSwapPath_SkipsFeeOnTransferPools(t *testing.T) {
	d, g := deploy(t)
	_, _, err := g.FindBestSwapPath(d.Token("AAA"), d.Token("TAX"), uint256.NewInt(1_000_000), 0)
	require.ErrorIs(t, err, routing.ErrNoPath)
}

func TestFindBestSwapPath_Errors(t *testing.T) {
	d, g := deploy(t)
	aaa, bbb := d.Token("AAA"), d.Token("BBB")

	tests := []struct {
		name     string
		tokenIn  common.Address
		tokenOut common.Address
		amountIn *uint256.Int
		wantErr  error
	}{
		{name: "zero amount", tokenIn: aaa, tokenOut: bbb, amountIn: new(uint256.Int), wantErr: dmm.ErrInvalidInput},
		{name: "nil amount", tokenIn: aaa, tokenOut: bbb, wantErr: dmm.ErrInvalidInput},
		{name: "token without pools", tokenIn: aaa, tokenOut: d.Token("LONE"), amountIn: uint256.NewInt(1), wantErr: routing.ErrUnknownToken},
		{name: "identical tokens", tokenIn: aaa, tokenOut: aaa, amountIn: uint256.NewInt(1), wantErr: dmm.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := g.FindBestSwapPath(tt.tokenIn, tt.tokenOut, tt.amountIn, 0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPath(t *testing.T) {
	a, b, c := common.HexToAddress("0xa"), common.HexToAddress("0xb"), common.HexToAddress("0xc")
	hops := []routing.Hop{
		{TokenIn: a, TokenOut: b, Pool: common.HexToAddress("0x1")},
		{TokenIn: b, TokenOut: c, Pool: common.HexToAddress("0x2")},
	}
	assert.Equal(t, []common.Address{a, b, c}, routing.Path(hops))
	assert.Equal(t, []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}, routing.Pools(hops))
	assert.Nil(t, routing.Path(nil))
}

func TestFromState_MissingProtocol(t *testing.T) {
	d, _ := deploy(t)
	state := stateops.Snapshot(d.Chain, []*dmm.Factory{d.Factory})
	delete(state.Protocols, stateops.GraphProtocolID)
	_, err := routing.FromState(state)
	require.Error(t, err)
}
