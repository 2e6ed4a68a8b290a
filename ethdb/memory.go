package ethdb

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerwatch/ethstate-core/common/dbutils"
)

// NewMemoryKV returns an in-memory KV store used by tests in place of the
// LMDB-backed engine. Every declared table in common/dbutils.Buckets is
// pre-created.
func NewMemoryKV() KV {
	db := &memoryKV{tables: map[string]*memTable{}}
	for _, name := range dbutils.Buckets {
		db.tables[name] = &memTable{dupSort: dbutils.IsDupSort(name)}
	}
	return db
}

type entry struct {
	key   []byte
	value []byte
}

// memTable keeps its entries sorted by (key, value) so that both the
// table-key ordering and, for dup-sort tables, the sub-key ordering
// of values under one key fall out of a single slice + binary search.
type memTable struct {
	dupSort bool
	entries []entry
}

func cmpEntry(a, b entry) int {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c
	}
	return bytes.Compare(a.value, b.value)
}

func (t *memTable) find(key []byte) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].key, key) >= 0
	})
}

func (t *memTable) findPair(key, value []byte) (int, bool) {
	target := entry{key: key, value: value}
	i := sort.Search(len(t.entries), func(i int) bool {
		return cmpEntry(t.entries[i], target) >= 0
	})
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, key) && bytes.Equal(t.entries[i].value, value) {
		return i, true
	}
	return i, false
}

type memoryKV struct {
	mu      sync.RWMutex
	tables  map[string]*memTable
	writing bool
}

func (m *memoryKV) View(_ context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx := &memTx{kv: m}
	return fn(tx)
}

func (m *memoryKV) Update(ctx context.Context, fn func(tx RwTx) error) error {
	tx, err := m.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BeginRw enforces the rule that at most one write transaction is live
// at a time: it blocks until any prior writer commits or rolls back.
func (m *memoryKV) BeginRw(_ context.Context) (RwTx, error) {
	m.mu.Lock()
	m.writing = true
	snapshot := make(map[string]*memTable, len(m.tables))
	for name, t := range m.tables {
		cp := &memTable{dupSort: t.dupSort, entries: append([]entry(nil), t.entries...)}
		snapshot[name] = cp
	}
	return &memRwTx{kv: m, tables: snapshot}, nil
}

func (m *memoryKV) Close() error { return nil }

func (m *memoryKV) table(name string) (*memTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("ethdb: unknown table %q", name)
	}
	return t, nil
}

// memTx is a read-only snapshot view taken under the store's RLock.
type memTx struct {
	kv *memoryKV
}

func (tx *memTx) GetOne(table string, key []byte) ([]byte, error) {
	t, err := tx.kv.table(table)
	if err != nil {
		return nil, err
	}
	i := t.find(key)
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, key) {
		return append([]byte(nil), t.entries[i].value...), nil
	}
	return nil, ErrKeyNotFound
}

func (tx *memTx) Cursor(table string) (Cursor, error) {
	t, err := tx.kv.table(table)
	if err != nil {
		return nil, err
	}
	return &memCursor{table: t}, nil
}

func (tx *memTx) CursorDupSort(table string) (CursorDupSort, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*memCursor), nil
}

func (tx *memTx) Rollback() {}

// memRwTx operates on a private copy of every table, taken when it begins;
// Commit atomically swaps the snapshot into the store under the write lock,
// giving callers the isolation guarantees a real engine promises, without a WAL.
type memRwTx struct {
	kv     *memoryKV
	tables map[string]*memTable
	done   bool
}

func (tx *memRwTx) table(name string) (*memTable, error) {
	t, ok := tx.tables[name]
	if !ok {
		return nil, fmt.Errorf("ethdb: unknown table %q", name)
	}
	return t, nil
}

func (tx *memRwTx) GetOne(table string, key []byte) ([]byte, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	i := t.find(key)
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, key) {
		return append([]byte(nil), t.entries[i].value...), nil
	}
	return nil, ErrKeyNotFound
}

func (tx *memRwTx) Cursor(table string) (Cursor, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	return &memCursor{table: t}, nil
}

func (tx *memRwTx) CursorDupSort(table string) (CursorDupSort, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*memCursor), nil
}

func (tx *memRwTx) RwCursor(table string) (RwCursor, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*memCursor), nil
}

func (tx *memRwTx) RwCursorDupSort(table string) (RwCursorDupSort, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*memCursor), nil
}

func (tx *memRwTx) Put(table string, key, value []byte) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	kcp, vcp := append([]byte(nil), key...), append([]byte(nil), value...)
	if t.dupSort {
		if i, ok := t.findPair(kcp, vcp); ok {
			t.entries[i].value = vcp
			return nil
		} else {
			t.entries = append(t.entries, entry{})
			copy(t.entries[i+1:], t.entries[i:])
			t.entries[i] = entry{key: kcp, value: vcp}
			return nil
		}
	}
	i := t.find(kcp)
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, kcp) {
		t.entries[i].value = vcp
		return nil
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry{key: kcp, value: vcp}
	return nil
}

func (tx *memRwTx) Append(table string, key, value []byte) error {
	return tx.Put(table, key, value)
}

func (tx *memRwTx) Delete(table string, key []byte, sub []byte) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	if sub == nil {
		lo := t.find(key)
		hi := lo
		for hi < len(t.entries) && bytes.Equal(t.entries[hi].key, key) {
			hi++
		}
		t.entries = append(t.entries[:lo], t.entries[hi:]...)
		return nil
	}
	lo := t.find(key)
	for i := lo; i < len(t.entries) && bytes.Equal(t.entries[i].key, key); i++ {
		if bytes.HasPrefix(t.entries[i].value, sub) {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (tx *memRwTx) Commit() error {
	if tx.done {
		return fmt.Errorf("ethdb: commit on finished transaction")
	}
	tx.kv.tables = tx.tables
	tx.kv.writing = false
	tx.done = true
	tx.kv.mu.Unlock()
	return nil
}

func (tx *memRwTx) Rollback() {
	if tx.done {
		return
	}
	tx.kv.writing = false
	tx.done = true
	tx.kv.mu.Unlock()
}

// memCursor implements Cursor, RwCursor, CursorDupSort and RwCursorDupSort
// over a single memTable snapshot; which interface a caller receives just
// determines which methods it is allowed to call.
type memCursor struct {
	table *memTable
	pos   int // index into table.entries; -1 means before-first, len(entries) exhausted
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte, error) {
	c.pos = c.table.find(seek)
	return c.Current()
}

func (c *memCursor) SeekExact(key []byte) ([]byte, error) {
	i := c.table.find(key)
	if i < len(c.table.entries) && bytes.Equal(c.table.entries[i].key, key) {
		c.pos = i
		return append([]byte(nil), c.table.entries[i].value...), nil
	}
	c.pos = len(c.table.entries)
	return nil, nil
}

func (c *memCursor) Next() ([]byte, []byte, error) {
	c.pos++
	return c.Current()
}

func (c *memCursor) Prev() ([]byte, []byte, error) {
	c.pos--
	return c.Current()
}

func (c *memCursor) Current() ([]byte, []byte, error) {
	if c.pos < 0 || c.pos >= len(c.table.entries) {
		return nil, nil, nil
	}
	e := c.table.entries[c.pos]
	return append([]byte(nil), e.key...), append([]byte(nil), e.value...), nil
}

func (c *memCursor) Last() ([]byte, []byte, error) {
	c.pos = len(c.table.entries) - 1
	return c.Current()
}

func (c *memCursor) Close() {}

func (c *memCursor) Put(key, value []byte) error {
	kcp, vcp := append([]byte(nil), key...), append([]byte(nil), value...)
	if c.table.dupSort {
		if i, ok := c.table.findPair(kcp, vcp); ok {
			c.table.entries[i].value = vcp
			c.pos = i
			return nil
		}
	}
	i := c.table.find(kcp)
	if !c.table.dupSort && i < len(c.table.entries) && bytes.Equal(c.table.entries[i].key, kcp) {
		c.table.entries[i].value = vcp
		c.pos = i
		return nil
	}
	if c.table.dupSort {
		i, _ = c.table.findPair(kcp, vcp)
	}
	c.table.entries = append(c.table.entries, entry{})
	copy(c.table.entries[i+1:], c.table.entries[i:])
	c.table.entries[i] = entry{key: kcp, value: vcp}
	c.pos = i
	return nil
}

func (c *memCursor) PutDup(key, value []byte) error { return c.Put(key, value) }

func (c *memCursor) Append(key, value []byte) error { return c.Put(key, value) }

func (c *memCursor) DeleteCurrent() error {
	if c.pos < 0 || c.pos >= len(c.table.entries) {
		return nil
	}
	c.table.entries = append(c.table.entries[:c.pos], c.table.entries[c.pos+1:]...)
	// Step back so that Next lands on the row that followed the deleted one.
	c.pos--
	return nil
}

func (c *memCursor) DeleteCurrentDuplicates() error {
	if c.pos < 0 || c.pos >= len(c.table.entries) {
		return nil
	}
	key := c.table.entries[c.pos].key
	lo := c.table.find(key)
	hi := lo
	for hi < len(c.table.entries) && bytes.Equal(c.table.entries[hi].key, key) {
		hi++
	}
	c.table.entries = append(c.table.entries[:lo], c.table.entries[hi:]...)
	c.pos = lo - 1
	return nil
}

func (c *memCursor) SeekBothExact(key, subkey []byte) ([]byte, error) {
	lo := c.table.find(key)
	for i := lo; i < len(c.table.entries) && bytes.Equal(c.table.entries[i].key, key); i++ {
		if bytes.HasPrefix(c.table.entries[i].value, subkey) {
			c.pos = i
			return append([]byte(nil), c.table.entries[i].value...), nil
		}
	}
	c.pos = len(c.table.entries)
	return nil, nil
}

func (c *memCursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	lo := c.table.find(key)
	for i := lo; i < len(c.table.entries) && bytes.Equal(c.table.entries[i].key, key); i++ {
		if bytes.Compare(c.table.entries[i].value, subkey) >= 0 {
			c.pos = i
			return append([]byte(nil), c.table.entries[i].value...), nil
		}
	}
	c.pos = len(c.table.entries)
	return nil, nil
}

func (c *memCursor) FirstDup() ([]byte, error) {
	if c.pos < 0 || c.pos >= len(c.table.entries) {
		return nil, nil
	}
	key := c.table.entries[c.pos].key
	i := c.table.find(key)
	c.pos = i
	return append([]byte(nil), c.table.entries[i].value...), nil
}

func (c *memCursor) NextDup() ([]byte, []byte, error) {
	if c.pos < 0 || c.pos+1 >= len(c.table.entries) {
		c.pos = len(c.table.entries)
		return nil, nil, nil
	}
	key := c.table.entries[c.pos].key
	if !bytes.Equal(c.table.entries[c.pos+1].key, key) {
		c.pos = len(c.table.entries)
		return nil, nil, nil
	}
	c.pos++
	return c.Current()
}

func (c *memCursor) CountDuplicates() (uint64, error) {
	if c.pos < 0 || c.pos >= len(c.table.entries) {
		return 0, nil
	}
	key := c.table.entries[c.pos].key
	lo := c.table.find(key)
	hi := lo
	for hi < len(c.table.entries) && bytes.Equal(c.table.entries[hi].key, key) {
		hi++
	}
	return uint64(hi - lo), nil
}
