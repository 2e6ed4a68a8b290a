package types

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ledgerwatch/ethstate-core/common"
)

// keccak256 wraps go-ethereum/crypto so every hash computed in this package
// goes through one call site.
func keccak256(data ...[]byte) common.Hash {
	return crypto.Keccak256Hash(data...)
}
