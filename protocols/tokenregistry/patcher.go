package tokenregistry

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new state of the token system by applying a diff to a previous
// state. The result is ordered by token ID.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	byAddress := make(map[common.Address]Token, len(prevState))
	for _, token := range prevState {
		byAddress[token.Address] = deepCopy(token)
	}

	for _, addr := range diff.Deletions {
		if _, ok := byAddress[addr]; !ok {
			return nil, fmt.Errorf("cannot delete token %s: not found", addr.Hex())
		}
		delete(byAddress, addr)
	}
	for _, updated := range diff.Updates {
		if _, ok := byAddress[updated.Address]; !ok {
			return nil, fmt.Errorf("cannot update token %s: not found", updated.Address.Hex())
		}
		byAddress[updated.Address] = deepCopy(updated)
	}
	for _, added := range diff.Additions {
		if _, ok := byAddress[added.Address]; ok {
			return nil, fmt.Errorf("cannot add token %s: already exists", added.Address.Hex())
		}
		byAddress[added.Address] = deepCopy(added)
	}

	finalState := make([]Token, 0, len(byAddress))
	for _, token := range byAddress {
		finalState = append(finalState, token)
	}
	slices.SortFunc(finalState, func(a, b Token) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return a.Address.Cmp(b.Address)
	})
	return finalState, nil
}

func deepCopy(t Token) Token {
	if t.TotalSupply != nil {
		t.TotalSupply = t.TotalSupply.Clone()
	}
	return t
}
