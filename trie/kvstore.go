package trie

import (
	"github.com/ethereum/go-ethereum/crypto"
	gethdb "github.com/ethereum/go-ethereum/ethdb"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

func hashAddress(addr common.Address) common.Hash { return crypto.Keccak256Hash(addr[:]) }
func hashSlot(slot common.Hash) common.Hash        { return crypto.Keccak256Hash(slot[:]) }

// kvNodeStore adapts our own ethdb.RwTx, scoped to the TrieNodes table, to
// go-ethereum's ethdb.KeyValueStore — the interface trie.NewDatabase
// requires. Trie node storage lives in the same underlying store as every
// other table instead of a second, private LevelDB/MDBX instance.
type kvNodeStore struct {
	tx ethdb.RwTx
}

func (s *kvNodeStore) Has(key []byte) (bool, error) {
	v, err := s.tx.GetOne(dbutils.TrieNodes, key)
	if err == ethdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (s *kvNodeStore) Get(key []byte) ([]byte, error) {
	v, err := s.tx.GetOne(dbutils.TrieNodes, key)
	if err == ethdb.ErrKeyNotFound {
		return nil, nil
	}
	return v, err
}

func (s *kvNodeStore) Put(key []byte, value []byte) error {
	return s.tx.Put(dbutils.TrieNodes, key, value)
}

func (s *kvNodeStore) Delete(key []byte) error {
	return s.tx.Delete(dbutils.TrieNodes, key, nil)
}

func (s *kvNodeStore) Stat(property string) (string, error) { return "", nil }

func (s *kvNodeStore) Compact(start []byte, limit []byte) error { return nil }

func (s *kvNodeStore) Close() error { return nil }

func (s *kvNodeStore) NewBatch() gethdb.Batch { return &kvBatch{store: s} }

func (s *kvNodeStore) NewIterator() gethdb.Iterator {
	return &kvIterator{tx: s.tx, pos: -1}
}

func (s *kvNodeStore) NewIteratorWithStart(start []byte) gethdb.Iterator {
	return &kvIterator{tx: s.tx, start: start, pos: -1}
}

func (s *kvNodeStore) NewIteratorWithPrefix(prefix []byte) gethdb.Iterator {
	return &kvIterator{tx: s.tx, prefix: prefix, pos: -1}
}

// kvBatch buffers writes and flushes them to the underlying table on Write,
// the role the teacher's LMDB-backed batches play for trie.Database commits.
type kvBatch struct {
	store *kvNodeStore
	ops   []batchOp
	size  int
}

type batchOp struct {
	key, value []byte
	del        bool
}

func (b *kvBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *kvBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), del: true})
	b.size += len(key)
	return nil
}

func (b *kvBatch) ValueSize() int { return b.size }

func (b *kvBatch) Write() error {
	for _, op := range b.ops {
		if op.del {
			if err := b.store.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.store.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *kvBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

func (b *kvBatch) Replay(w gethdb.KeyValueWriter) error {
	for _, op := range b.ops {
		if op.del {
			if err := w.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

// kvIterator is a minimal iterator over TrieNodes; trie.Database only uses
// iteration for the offline "dump all nodes" path, not the hot update path.
type kvIterator struct {
	tx     ethdb.RwTx
	prefix []byte
	start  []byte
	cur    ethdb.Cursor
	key    []byte
	value  []byte
	pos    int
	err    error
}

func (it *kvIterator) Next() bool {
	if it.cur == nil {
		c, err := it.tx.Cursor(dbutils.TrieNodes)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = c
		seek := append(append([]byte(nil), it.prefix...), it.start...)
		k, v, err := it.cur.Seek(seek)
		if err != nil {
			it.err = err
			return false
		}
		it.key, it.value = k, v
		return k != nil
	}
	k, v, err := it.cur.Next()
	if err != nil {
		it.err = err
		return false
	}
	it.key, it.value = k, v
	return k != nil
}

func (it *kvIterator) Error() error   { return it.err }
func (it *kvIterator) Key() []byte    { return it.key }
func (it *kvIterator) Value() []byte  { return it.value }
func (it *kvIterator) Release()       { if it.cur != nil { it.cur.Close() } }
