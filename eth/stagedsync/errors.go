package stagedsync

import (
	"errors"
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/core/rawdb"
	"github.com/ledgerwatch/ethstate-core/trie"
)

// ErrDatabase wraps a failure from the underlying key-value store itself
// (as opposed to a missing row the writer expected — see DatabaseIntegrity).
type ErrDatabase struct {
	Op  string
	Err error
}

func (e *ErrDatabase) Error() string { return fmt.Sprintf("stagedsync: %s: %v", e.Op, e.Err) }
func (e *ErrDatabase) Unwind() bool  { return false }
func (e *ErrDatabase) Unwrap() error { return e.Err }

// IsDatabaseIntegrity reports whether err is a DatabaseIntegrity failure —
// a missing row the writer or reader expected to find, surfaced by
// core/rawdb as *rawdb.IntegrityError.
func IsDatabaseIntegrity(err error) bool {
	var ie *rawdb.IntegrityError
	return errors.As(err, &ie)
}

// IsMerkleTrie reports whether err originated in the trie loader (C6) for a
// reason other than a root mismatch — node resolution failures, corrupt
// encodings. Retryable in principle, unlike StateTrieRootMismatch.
func IsMerkleTrie(err error) bool {
	var te *trie.Error
	return errors.As(err, &te)
}

// IsStateTrieRootMismatch reports whether err is the one error in this
// system that triggers an automatic unwind: the recomputed state root
// diverges from the block header's declared root.
func IsStateTrieRootMismatch(err error) bool {
	var re *trie.RootMismatchError
	return errors.As(err, &re)
}

// RootMismatch extracts the block and hash a StateTrieRootMismatch
// occurred at, for the caller composing the unwind call.
func RootMismatch(err error) (block common.BlockNumber, hash common.Hash, ok bool) {
	var re *trie.RootMismatchError
	if !errors.As(err, &re) {
		return 0, common.Hash{}, false
	}
	return re.BlockNumber, re.BlockHash, true
}
