package tokenregistry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromChain(t *testing.T) {
	ctx := context.Background()
	c, err := chain.New(&chain.Config{ChainID: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	deployer := common.HexToAddress("0x1")
	plain, err := chain.NewERC20(ctx, c, &chain.TokenConfig{Name: "Plain", Symbol: "PLN", Decimals: 6, Minter: deployer})
	require.NoError(t, err)
	taxed, err := chain.NewERC20(ctx, c, &chain.TokenConfig{Name: "Taxed", Symbol: "TAX", Decimals: 18, Minter: deployer, FeeOnTransferBps: 250})
	require.NoError(t, err)
	require.NoError(t, plain.Mint(ctx, deployer, deployer, uint256.NewInt(42)))

	tokens := FromChain(c)
	require.Len(t, tokens, 2)

	assert.Equal(t, Token{
		ID:          0,
		Address:     plain.Address(),
		Name:        "Plain",
		Symbol:      "PLN",
		Decimals:    6,
		TotalSupply: uint256.NewInt(42),
	}, tokens[0])
	assert.Equal(t, taxed.Address(), tokens[1].Address)
	assert.Equal(t, uint16(250), tokens[1].FeeOnTransferBps)
	assert.Equal(t, uint64(1), tokens[1].ID)
}
