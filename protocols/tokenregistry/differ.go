package tokenregistry

import "github.com/ethereum/go-ethereum/common"

type TokenSystemDiff struct {
	Additions []Token          `json:"additions,omitempty"`
	Updates   []Token          `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the token system, keyed by
// token address. Additions and updates keep the order of new; deletions keep the order of old.
func Differ(old, new []Token) TokenSystemDiff {
	oldByAddress := make(map[common.Address]Token, len(old))
	for _, token := range old {
		oldByAddress[token.Address] = token
	}
	newByAddress := make(map[common.Address]struct{}, len(new))

	var diff TokenSystemDiff
	for _, newToken := range new {
		newByAddress[newToken.Address] = struct{}{}
		oldToken, exists := oldByAddress[newToken.Address]
		if !exists {
			diff.Additions = append(diff.Additions, newToken)
			continue
		}
		// only supply and transfer fee change after deployment
		if oldToken.FeeOnTransferBps != newToken.FeeOnTransferBps || !sameSupply(oldToken, newToken) {
			diff.Updates = append(diff.Updates, newToken)
		}
	}

	for _, oldToken := range old {
		if _, exists := newByAddress[oldToken.Address]; !exists {
			diff.Deletions = append(diff.Deletions, oldToken.Address)
		}
	}
	return diff
}

func sameSupply(a, b Token) bool {
	if a.TotalSupply == nil || b.TotalSupply == nil {
		return a.TotalSupply == b.TotalSupply
	}
	return a.TotalSupply.Eq(b.TotalSupply)
}
