package indexer

import (
	"strings"

	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedTokenSystem views from token snapshots.
type Indexer struct{}

func New() *Indexer {
	return &Indexer{}
}

// Index indexes a token snapshot. The snapshot is copied.
func (i *Indexer) Index(tokens []tokenregistry.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem answers token lookups from a registry snapshot. Every index
// stores positions into tokens.
type IndexableTokenSystem struct {
	tokens    []tokenregistry.Token
	byID      map[uint64]int
	byAddress map[common.Address]int
	bySymbol  map[string][]int
	taxed     []int
}

func NewIndexableTokenSystem(tokens []tokenregistry.Token) *IndexableTokenSystem {
	its := &IndexableTokenSystem{
		tokens:    append([]tokenregistry.Token(nil), tokens...),
		byID:      make(map[uint64]int, len(tokens)),
		byAddress: make(map[common.Address]int, len(tokens)),
		bySymbol:  make(map[string][]int),
	}
	for pos, t := range its.tokens {
		its.byID[t.ID] = pos
		its.byAddress[t.Address] = pos
		key := strings.ToUpper(t.Symbol)
		its.bySymbol[key] = append(its.bySymbol[key], pos)
		if t.FeeOnTransferBps > 0 {
			its.taxed = append(its.taxed, pos)
		}
	}
	return its
}

func (its *IndexableTokenSystem) at(pos int, ok bool) (tokenregistry.Token, bool) {
	if !ok {
		return tokenregistry.Token{}, false
	}
	return its.tokens[pos], true
}

func (its *IndexableTokenSystem) pick(positions []int) []tokenregistry.Token {
	out := make([]tokenregistry.Token, 0, len(positions))
	for _, pos := range positions {
		out = append(out, its.tokens[pos])
	}
	return out
}

// GetByID looks a token up by its registration index.
func (its *IndexableTokenSystem) GetByID(id uint64) (tokenregistry.Token, bool) {
	pos, ok := its.byID[id]
	return its.at(pos, ok)
}

func (its *IndexableTokenSystem) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	pos, ok := its.byAddress[address]
	return its.at(pos, ok)
}

// GetBySymbol returns every token carrying symbol, ignoring case, in registration
// order. Symbols are not unique on chain.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) []tokenregistry.Token {
	return its.pick(its.bySymbol[strings.ToUpper(symbol)])
}

// FeeOnTransfer returns the tokens that burn part of every transfer.
func (its *IndexableTokenSystem) FeeOnTransfer() []tokenregistry.Token {
	return its.pick(its.taxed)
}

// All returns a copy of the snapshot.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	return append(make([]tokenregistry.Token, 0, len(its.tokens)), its.tokens...)
}
