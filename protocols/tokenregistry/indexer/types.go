package indexer

import (
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedTokenSystem is a read-only view of the token registry of one state.
type IndexedTokenSystem interface {
	GetByID(id uint64) (tokenregistry.Token, bool)
	GetByAddress(address common.Address) (tokenregistry.Token, bool)
	GetBySymbol(symbol string) []tokenregistry.Token
	FeeOnTransfer() []tokenregistry.Token
	All() []tokenregistry.Token
}

var _ IndexedTokenSystem = (*IndexableTokenSystem)(nil)
