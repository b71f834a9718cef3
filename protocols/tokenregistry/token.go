package tokenregistry

import (
	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const Schema engine.ProtocolSchema = "kyber/tokenregistry/token@v1"

// Token is a safe, structured representation of a token's data for external use.
type Token struct {
	// ID is the registration index of the token on its chain.
	ID               uint64         `json:"id"`
	Address          common.Address `json:"address"`
	Name             string         `json:"name"`
	Symbol           string         `json:"symbol"`
	Decimals         uint8          `json:"decimals"`
	FeeOnTransferBps uint16         `json:"feeOnTransferBps"`
	TotalSupply      *uint256.Int   `json:"totalSupply"`
}

type named interface {
	Name() string
}

type feeOnTransfer interface {
	FeeOnTransferBps() uint16
}

// FromChain captures the metadata of every token registered on c, in registration order.
func FromChain(c *chain.Chain) []Token {
	registered := c.Tokens()
	tokens := make([]Token, 0, len(registered))
	for i, t := range registered {
		token := Token{
			ID:          uint64(i),
			Address:     t.Address(),
			Symbol:      t.Symbol(),
			Decimals:    t.Decimals(),
			TotalSupply: t.TotalSupply(),
		}
		if n, ok := t.(named); ok {
			token.Name = n.Name()
		}
		if f, ok := t.(feeOnTransfer); ok {
			token.FeeOnTransferBps = f.FeeOnTransferBps()
		}
		tokens = append(tokens, token)
	}
	return tokens
}
