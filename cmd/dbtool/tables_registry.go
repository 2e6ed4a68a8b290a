package main

import (
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// walkEntry is one raw (undecoded) row the list command prints.
type walkEntry struct {
	Key   []byte
	Value []byte
}

// tableWalker lists the first n rows of a table starting at start, skipping
// the decoded-form formatting every table's own package would otherwise
// need a dependency on — dbtool stays a raw-bytes inspector by design.
func tableWalker(tx ethdb.Tx, table string, start []byte, n int) ([]walkEntry, error) {
	if dbutils.IsDupSort(table) {
		return walkDupSort(tx, table, start, n)
	}
	cur, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []walkEntry
	k, v, err := cur.Seek(start)
	if err != nil {
		return nil, err
	}
	for k != nil && len(out) < n {
		out = append(out, walkEntry{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		k, v, err = cur.Next()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func walkDupSort(tx ethdb.Tx, table string, start []byte, n int) ([]walkEntry, error) {
	cur, err := tx.CursorDupSort(table)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []walkEntry
	k, v, err := cur.Seek(start)
	if err != nil {
		return nil, err
	}
	for k != nil && len(out) < n {
		out = append(out, walkEntry{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		k, v, err = cur.Next()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// tablesRegistry is the fix for the dead list-dispatch bug: every declared
// table is listable by name, not just Headers. Built directly off
// dbutils.Buckets rather than a hand-maintained parallel list, so a new
// table added to the catalogue is automatically listable.
var tablesRegistry = func() map[string]bool {
	m := make(map[string]bool, len(dbutils.Buckets))
	for _, b := range dbutils.Buckets {
		m[b] = true
	}
	return m
}()

func lookupTable(name string) error {
	if !tablesRegistry[name] {
		return fmt.Errorf("dbtool: unknown table %q (run `dbtool stats` to list known tables)", name)
	}
	return nil
}
