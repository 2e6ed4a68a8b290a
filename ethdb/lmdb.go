package ethdb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/lmdb-go/lmdb"
)

// lmdbOpts accumulates the builder options for an LMDB-backed KV, following
// the teacher's NewLMDB().InMem().MustOpen(ctx) fluent style
// (ethdb/memory_database.go).
type lmdbOpts struct {
	path   string
	inMem  bool
	mapSz  int64
	noSync bool
}

// NewLMDB starts a builder for an LMDB-backed KV.
func NewLMDB() *lmdbOpts {
	return &lmdbOpts{mapSz: 1 << 38} // 256GiB address space reservation; LMDB is sparse on disk.
}

// Path sets the directory the environment is opened in.
func (o *lmdbOpts) Path(path string) *lmdbOpts {
	o.path = path
	return o
}

// InMem opens the environment against a throwaway temp directory and skips
// fsync, matching the teacher's "InMem" test-only mode.
func (o *lmdbOpts) InMem() *lmdbOpts {
	o.inMem = true
	o.noSync = true
	return o
}

// MustOpen opens the environment and creates every declared table, panicking
// on failure — the teacher's MustOpen convention for construction-time
// invariants that should never fail outside of misconfiguration.
func (o *lmdbOpts) MustOpen(ctx context.Context) KV {
	kv, err := o.Open(ctx)
	if err != nil {
		panic(err)
	}
	return kv
}

// Open opens the environment and creates every declared table.
func (o *lmdbOpts) Open(ctx context.Context) (KV, error) {
	path := o.path
	if o.inMem {
		dir, err := os.MkdirTemp("", "ethstate-lmdb-")
		if err != nil {
			return nil, fmt.Errorf("ethdb: creating in-memory lmdb dir: %w", err)
		}
		path = dir
	}
	if path == "" {
		return nil, fmt.Errorf("ethdb: lmdb path not set")
	}

	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("ethdb: lmdb.NewEnv: %w", err)
	}
	if err := env.SetMaxDBs(len(dbutils.Buckets) + 1); err != nil {
		return nil, fmt.Errorf("ethdb: SetMaxDBs: %w", err)
	}
	if err := env.SetMapSize(o.mapSz); err != nil {
		return nil, fmt.Errorf("ethdb: SetMapSize: %w", err)
	}
	if err := os.MkdirAll(path, 0744); err != nil {
		return nil, fmt.Errorf("ethdb: creating lmdb dir %s: %w", path, err)
	}
	flags := uint(lmdb.NoReadahead)
	if o.noSync {
		flags |= lmdb.NoSync
	}
	if err := env.Open(path, flags, 0644); err != nil {
		return nil, fmt.Errorf("ethdb: opening lmdb env at %s: %w", path, err)
	}

	kv := &lmdbKV{env: env, dbis: map[string]lmdb.DBI{}}
	if err := env.Update(func(txn *lmdb.Txn) error {
		for _, name := range dbutils.Buckets {
			dbiFlags := uint(0)
			if dbutils.IsDupSort(name) {
				dbiFlags |= lmdb.DupSort
			}
			dbi, err := txn.OpenDBI(name, lmdb.Create|dbiFlags)
			if err != nil {
				return fmt.Errorf("opening table %s: %w", name, err)
			}
			kv.dbis[name] = dbi
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return kv, nil
}

// lmdbKV is the production KV implementation: an LMDB environment with one
// DBI per declared table. Only one write Txn may be open at a time — LMDB
// itself enforces that by blocking inside env.BeginTxn, which is exactly the
// single-writer guarantee the write-transaction rule requires.
type lmdbKV struct {
	env  *lmdb.Env
	dbis map[string]lmdb.DBI
	wmu  sync.Mutex
}

func (kv *lmdbKV) dbi(table string) (lmdb.DBI, error) {
	dbi, ok := kv.dbis[table]
	if !ok {
		return 0, fmt.Errorf("ethdb: unknown table %q", table)
	}
	return dbi, nil
}

func (kv *lmdbKV) View(_ context.Context, fn func(tx Tx) error) error {
	return kv.env.View(func(txn *lmdb.Txn) error {
		txn.RawRead = true
		return fn(&lmdbTx{kv: kv, txn: txn})
	})
}

func (kv *lmdbKV) Update(ctx context.Context, fn func(tx RwTx) error) error {
	rwTx, err := kv.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := fn(rwTx); err != nil {
		rwTx.Rollback()
		return err
	}
	return rwTx.Commit()
}

func (kv *lmdbKV) BeginRw(_ context.Context) (RwTx, error) {
	kv.wmu.Lock()
	txn, err := kv.env.BeginTxn(nil, 0)
	if err != nil {
		kv.wmu.Unlock()
		return nil, fmt.Errorf("ethdb: BeginTxn: %w", err)
	}
	txn.RawRead = true
	return &lmdbRwTx{lmdbTx: lmdbTx{kv: kv, txn: txn}}, nil
}

func (kv *lmdbKV) Close() error {
	kv.env.Close()
	return nil
}

type lmdbTx struct {
	kv  *lmdbKV
	txn *lmdb.Txn
}

func (tx *lmdbTx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := tx.kv.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := tx.txn.Get(dbi, key)
	if lmdb.IsNotFound(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ethdb: get %s: %w", table, err)
	}
	return append([]byte(nil), v...), nil
}

func (tx *lmdbTx) Cursor(table string) (Cursor, error) {
	dbi, err := tx.kv.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("ethdb: opening cursor on %s: %w", table, err)
	}
	return &lmdbCursor{table: table, c: c, dupSort: dbutils.IsDupSort(table)}, nil
}

func (tx *lmdbTx) CursorDupSort(table string) (CursorDupSort, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*lmdbCursor), nil
}

func (tx *lmdbTx) Rollback() {
	tx.txn.Abort()
}

type lmdbRwTx struct {
	lmdbTx
	done bool
}

func (tx *lmdbRwTx) Put(table string, key, value []byte) error {
	dbi, err := tx.kv.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.txn.Put(dbi, key, value, 0); err != nil {
		return fmt.Errorf("ethdb: put %s: %w", table, err)
	}
	return nil
}

func (tx *lmdbRwTx) Append(table string, key, value []byte) error {
	dbi, err := tx.kv.dbi(table)
	if err != nil {
		return err
	}
	flags := uint(lmdb.Append)
	if dbutils.IsDupSort(table) {
		flags = lmdb.AppendDup
	}
	if err := tx.txn.Put(dbi, key, value, flags); err != nil {
		return fmt.Errorf("ethdb: append %s: %w", table, err)
	}
	return nil
}

func (tx *lmdbRwTx) Delete(table string, key []byte, sub []byte) error {
	dbi, err := tx.kv.dbi(table)
	if err != nil {
		return err
	}
	var err2 error
	if sub == nil {
		err2 = tx.txn.Del(dbi, key, nil)
	} else {
		// sub is a sub-key prefix, not a whole dup value: find the first
		// duplicate that begins with it and delete that one.
		c, err := tx.txn.OpenCursor(dbi)
		if err != nil {
			return fmt.Errorf("ethdb: delete %s: %w", table, err)
		}
		defer c.Close()
		var v []byte
		_, v, err2 = c.Get(key, sub, lmdb.GetBothRange)
		if err2 == nil && bytes.HasPrefix(v, sub) {
			err2 = c.Del(0)
		}
	}
	if err2 != nil && !lmdb.IsNotFound(err2) {
		return fmt.Errorf("ethdb: delete %s: %w", table, err2)
	}
	return nil
}

func (tx *lmdbRwTx) RwCursor(table string) (RwCursor, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*lmdbCursor), nil
}

func (tx *lmdbRwTx) RwCursorDupSort(table string) (RwCursorDupSort, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*lmdbCursor), nil
}

func (tx *lmdbRwTx) Commit() error {
	if tx.done {
		return fmt.Errorf("ethdb: commit on finished transaction")
	}
	tx.done = true
	defer tx.kv.wmu.Unlock()
	if err := tx.txn.Commit(); err != nil {
		return fmt.Errorf("ethdb: commit: %w", err)
	}
	return nil
}

func (tx *lmdbRwTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.txn.Abort()
	tx.kv.wmu.Unlock()
}

// lmdbCursor implements Cursor / RwCursor / CursorDupSort / RwCursorDupSort
// over a single lmdb.Cursor; dupSort gates which of the dup-specific
// operations are meaningful, same split the interfaces in kv.go describe.
type lmdbCursor struct {
	table   string
	c       *lmdb.Cursor
	dupSort bool
}

func (c *lmdbCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(seek, nil, lmdb.SetRange)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, nil, lmdb.Set)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ethdb: seek exact on %s: %w", c.table, err)
	}
	return append([]byte(nil), v...), nil
}

func (c *lmdbCursor) Next() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Next)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) Prev() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Prev)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) Current() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.GetCurrent)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) Last() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Last)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) Close() { c.c.Close() }

func (c *lmdbCursor) Put(key, value []byte) error {
	if err := c.c.Put(key, value, 0); err != nil {
		return fmt.Errorf("ethdb: cursor put on %s: %w", c.table, err)
	}
	return nil
}

func (c *lmdbCursor) PutDup(key, value []byte) error {
	if err := c.c.Put(key, value, 0); err != nil {
		return fmt.Errorf("ethdb: cursor putdup on %s: %w", c.table, err)
	}
	return nil
}

func (c *lmdbCursor) Append(key, value []byte) error {
	flags := uint(lmdb.Append)
	if c.dupSort {
		flags = lmdb.AppendDup
	}
	if err := c.c.Put(key, value, flags); err != nil {
		return fmt.Errorf("ethdb: cursor append on %s: %w", c.table, err)
	}
	return nil
}

func (c *lmdbCursor) DeleteCurrent() error {
	if err := c.c.Del(0); err != nil && !lmdb.IsNotFound(err) {
		return fmt.Errorf("ethdb: cursor delete on %s: %w", c.table, err)
	}
	return nil
}

func (c *lmdbCursor) DeleteCurrentDuplicates() error {
	if err := c.c.Del(lmdb.NoDupData); err != nil && !lmdb.IsNotFound(err) {
		return fmt.Errorf("ethdb: cursor delete dup on %s: %w", c.table, err)
	}
	return nil
}

func (c *lmdbCursor) SeekBothExact(key, subkey []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, subkey, lmdb.GetBothRange)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ethdb: seek both exact on %s: %w", c.table, err)
	}
	if !bytes.HasPrefix(v, subkey) {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (c *lmdbCursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, subkey, lmdb.GetBothRange)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ethdb: seek both range on %s: %w", c.table, err)
	}
	return append([]byte(nil), v...), nil
}

func (c *lmdbCursor) FirstDup() ([]byte, error) {
	_, v, err := c.c.Get(nil, nil, lmdb.FirstDup)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ethdb: first dup on %s: %w", c.table, err)
	}
	return append([]byte(nil), v...), nil
}

func (c *lmdbCursor) NextDup() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.NextDup)
	return returnKV(k, v, err)
}

func (c *lmdbCursor) CountDuplicates() (uint64, error) {
	n, err := c.c.Count()
	if err != nil {
		return 0, fmt.Errorf("ethdb: count duplicates on %s: %w", c.table, err)
	}
	return n, nil
}

func returnKV(k, v []byte, err error) ([]byte, []byte, error) {
	if lmdb.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), nil
}
