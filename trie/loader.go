// Package trie implements the state trie loader (C6): recomputing the
// Merkle-Patricia state root from the hashed-state tables the hashing engine
// (core/state) maintains, built directly on github.com/ethereum/go-ethereum/trie
// rather than a hand-rolled radix tree.
package trie

import (
	"fmt"

	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// RootMismatchError is StateTrieRootMismatch from the error taxonomy: the
// computed root diverges from the block header's declared root. Fatal and
// non-retryable; the caller must unwind.
type RootMismatchError struct {
	Expected    common.Hash
	Got         common.Hash
	BlockNumber common.BlockNumber
	BlockHash   common.Hash
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("trie: state root mismatch at block %d (%x): expected %x, got %x",
		e.BlockNumber, e.BlockHash, e.Expected, e.Got)
}

// Error is the MerkleTrie category of the error taxonomy: a failure
// resolving or mutating trie nodes, distinct from the fatal
// RootMismatchError. Retryable in principle — a transient store read
// failure looks the same as a corrupt node — so callers should not treat
// it as grounds for an automatic unwind the way they must for
// RootMismatchError.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("trie: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Loader wraps a go-ethereum trie.Database backed by our own ethdb.KV, so
// trie nodes live in TrieNodes alongside every other table.
type Loader struct {
	db *gethtrie.Database
}

// NewLoader constructs a Loader whose node storage is TrieNodes in tx's
// underlying store, via a kvNodeStore adapter over the standard
// ethdb.KeyValueStore interface go-ethereum/trie expects.
func NewLoader(tx ethdb.RwTx) *Loader {
	return &Loader{db: gethtrie.NewDatabase(&kvNodeStore{tx: tx})}
}

// UpdateRoot recomputes the state root starting from priorRoot, applying
// only the accounts and storage slots the hashing engine reports as touched
// in the just-applied transition range, and returns the new root. It does
// not itself compare against a header root — ValidateRoot does that and
// wraps a mismatch as RootMismatchError.
func (l *Loader) UpdateRoot(tx ethdb.RwTx, priorRoot common.Hash, touchedAddresses []common.Address, touchedStorage map[common.Address][]common.Hash) (root common.Hash, err error) {
	defer func() {
		if err != nil {
			err = wrapErr("update root", err)
		}
	}()

	t, err := gethtrie.New(priorRoot, l.db)
	if err != nil {
		return common.Hash{}, fmt.Errorf("opening trie at %x: %w", priorRoot, err)
	}

	for _, addr := range touchedAddresses {
		hashed := hashAddress(addr)
		v, err := tx.GetOne(dbutils.HashedAccount, hashed[:])
		if err != nil && err != ethdb.ErrKeyNotFound {
			return common.Hash{}, fmt.Errorf("trie: reading hashed account %x: %w", hashed, err)
		}
		if v == nil {
			if err := t.TryDelete(hashed[:]); err != nil {
				return common.Hash{}, fmt.Errorf("trie: deleting account %x: %w", hashed, err)
			}
			continue
		}

		storageRoot, err := l.updateAccountStorage(tx, addr, touchedStorage[addr])
		if err != nil {
			return common.Hash{}, err
		}
		accEnc, err := reencodeAccountWithStorageRoot(v, storageRoot)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.TryUpdate(hashed[:], accEnc); err != nil {
			return common.Hash{}, fmt.Errorf("trie: updating account %x: %w", hashed, err)
		}
	}

	root, err = t.Commit(nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("committing trie: %w", err)
	}
	if err := l.db.Commit(root, false, nil); err != nil {
		return common.Hash{}, fmt.Errorf("flushing trie nodes: %w", err)
	}
	return root, nil
}

// ValidateRoot compares got against the header's declared root, returning a
// RootMismatchError (the only error that triggers an automatic unwind) on
// divergence.
func ValidateRoot(expected, got common.Hash, block common.BlockNumber, blockHash common.Hash) error {
	if expected != got {
		return &RootMismatchError{Expected: expected, Got: got, BlockNumber: block, BlockHash: blockHash}
	}
	return nil
}

// reencodeAccountWithStorageRoot decodes a HashedAccount row, substitutes its
// storage root with the just-recomputed value, and re-encodes it for the
// trie leaf — the hashed-state tables store an account's own storage root as
// whatever it was before this transition, so the trie leaf value must be
// patched rather than written verbatim.
func reencodeAccountWithStorageRoot(v []byte, storageRoot common.Hash) ([]byte, error) {
	var acc common.Account
	if err := acc.DecodeForStorage(v); err != nil {
		return nil, fmt.Errorf("trie: decoding hashed account: %w", err)
	}
	if storageRoot == (common.Hash{}) {
		storageRoot = common.EmptyRoot
	}
	acc.Root = storageRoot
	buf := make([]byte, acc.EncodingLengthForStorage())
	acc.EncodeForStorage(buf)
	return buf, nil
}

func (l *Loader) updateAccountStorage(tx ethdb.RwTx, addr common.Address, slots []common.Hash) (common.Hash, error) {
	hashedAddr := hashAddress(addr)
	storageRootKey := append(append([]byte{}, hashedAddr[:]...), 's')
	existingRoot, err := tx.GetOne(dbutils.TrieNodes, storageRootKey)
	var priorRoot common.Hash
	if err == nil && len(existingRoot) == 32 {
		copy(priorRoot[:], existingRoot)
	}
	if len(slots) == 0 {
		return priorRoot, nil
	}

	st, err := gethtrie.New(priorRoot, l.db)
	if err != nil {
		return common.Hash{}, fmt.Errorf("trie: opening storage trie for %x: %w", hashedAddr, err)
	}

	cur, err := tx.RwCursorDupSort(dbutils.HashedStorage)
	if err != nil {
		return common.Hash{}, err
	}
	defer cur.Close()

	for _, slot := range slots {
		hashedSlot := hashSlot(slot)
		v, err := cur.SeekBothExact(hashedAddr[:], hashedSlot[:])
		if err != nil {
			return common.Hash{}, err
		}
		if v == nil {
			if err := st.TryDelete(hashedSlot[:]); err != nil {
				return common.Hash{}, fmt.Errorf("trie: deleting storage slot %x/%x: %w", hashedAddr, hashedSlot, err)
			}
			continue
		}
		_, value := dbutils.DecodeStorageEntry(v)
		if err := st.TryUpdate(hashedSlot[:], value.Bytes()); err != nil {
			return common.Hash{}, fmt.Errorf("trie: updating storage slot %x/%x: %w", hashedAddr, hashedSlot, err)
		}
	}

	root, err := st.Commit(nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("trie: committing storage trie for %x: %w", hashedAddr, err)
	}
	if err := l.db.Commit(root, false, nil); err != nil {
		return common.Hash{}, fmt.Errorf("trie: flushing storage trie nodes for %x: %w", hashedAddr, err)
	}
	if err := tx.Put(dbutils.TrieNodes, storageRootKey, root[:]); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}
