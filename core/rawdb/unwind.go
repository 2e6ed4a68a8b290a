package rawdb

import (
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// UnwindTableByNum deletes every row of table whose key is an 8-byte
// big-endian BlockNumber >= from — the common case (CanonicalHeaders,
// Headers, HeaderTD, BlockBodies, BlockOmmers, BlockWithdrawals,
// BlockTransitionIndex all key directly on block number).
func UnwindTableByNum(tx ethdb.RwTx, table string, from common.BlockNumber) error {
	cur, err := tx.RwCursor(table)
	if err != nil {
		return err
	}
	defer cur.Close()

	k, _, err := cur.Seek(dbutils.EncodeBlockNumber(from))
	if err != nil {
		return fmt.Errorf("rawdb: seeking %s for unwind: %w", table, err)
	}
	for k != nil {
		if err := cur.DeleteCurrent(); err != nil {
			return fmt.Errorf("rawdb: deleting %s row during unwind: %w", table, err)
		}
		k, _, err = cur.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// UnwindTable walks table from its first row, and for each (k, v) whose
// selector reports a block number >= from, deletes it. Use for tables not
// directly keyed by block number, where selector must derive the owning block
// from the row itself (e.g. decoding an embedded block number field).
func UnwindTable(tx ethdb.RwTx, table string, from common.BlockNumber, selector func(k, v []byte) (common.BlockNumber, bool)) error {
	cur, err := tx.RwCursor(table)
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Seek(nil)
	if err != nil {
		return fmt.Errorf("rawdb: seeking %s for unwind: %w", table, err)
	}
	for k != nil {
		n, ok := selector(k, v)
		if ok && n >= from {
			if err := cur.DeleteCurrent(); err != nil {
				return fmt.Errorf("rawdb: deleting %s row during unwind: %w", table, err)
			}
		}
		k, v, err = cur.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// UnwindTableByWalker walks srcTable from `from` onward (srcTable must be
// BlockNumber-keyed) and, for every row, hands its value to apply so the
// caller can delete a corresponding row in a second, differently-keyed
// table — the pattern HeaderNumbers unwinding needs: walk CanonicalHeaders
// from `from`, deleting HeaderNumbers[hash] for each hash encountered.
func UnwindTableByWalker(tx ethdb.RwTx, srcTable string, from common.BlockNumber, apply func(k, v []byte) error) error {
	cur, err := tx.RwCursor(srcTable)
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Seek(dbutils.EncodeBlockNumber(from))
	if err != nil {
		return fmt.Errorf("rawdb: seeking %s for unwind: %w", srcTable, err)
	}
	for k != nil {
		if err := apply(k, v); err != nil {
			return err
		}
		if err := cur.DeleteCurrent(); err != nil {
			return fmt.Errorf("rawdb: deleting %s row during unwind: %w", srcTable, err)
		}
		k, v, err = cur.Next()
		if err != nil {
			return err
		}
	}
	return nil
}
