// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// undoTable holds one row per applied block with the operations needed to
// reverse it. Reserved; regular tables must stay below it.
const undoTable Table = 0xff

// undo op kinds.
const (
	undoRestore byte = iota // key had a prior value, restore it.
	undoDelete              // key did not exist, delete it.
)

// undoOp records how to reverse one write.
type undoOp struct {
	kind  byte
	key   []byte // raw key including the table prefix.
	value []byte
}

// WriteTxn is the single write transaction of the store. It spans several
// blocks; Commit persists everything written so far and renews the
// transaction in place.
type WriteTxn struct {
	db  *DB
	txn *badger.Txn

	recording bool
	undo      []undoOp
}

// Commit flushes all pending writes and renews the transaction.
func (w *WriteTxn) Commit() error {
	if err := w.txn.Commit(); err != nil {
		return err
	}

	w.txn = w.db.badger.NewTransaction(true)

	return nil
}

// Discard drops pending writes and releases the writer slot.
func (w *WriteTxn) Discard() {
	w.txn.Discard()
	w.db.writeMu.Unlock()
}

// Get returns the value under the key, or nil if absent,
// observing the transaction's own pending writes.
func (w *WriteTxn) Get(table Table, key []byte) ([]byte, error) {
	return item(w.txn, tableKey(table, key))
}

// Set writes the value under the key.
func (w *WriteTxn) Set(table Table, key, value []byte) error {
	return w.setRaw(tableKey(table, key), value)
}

// Delete removes the key.
func (w *WriteTxn) Delete(table Table, key []byte) error {
	return w.deleteRaw(tableKey(table, key))
}

// MPut records the value under the multimap key.
func (w *WriteTxn) MPut(table Table, key, value []byte) error {
	return w.setRaw(tableKey(table, append(append([]byte{}, key...), value...)), nil)
}

// MRemove removes one value recorded under the multimap key.
func (w *WriteTxn) MRemove(table Table, key, value []byte) error {
	return w.deleteRaw(tableKey(table, append(append([]byte{}, key...), value...)))
}

// MRemoveAll removes every value recorded under the multimap key.
func (w *WriteTxn) MRemoveAll(table Table, key []byte) error {
	values, err := w.List(table, key)
	if err != nil {
		return err
	}

	for _, value := range values {
		if err = w.MRemove(table, key, value); err != nil {
			return err
		}
	}

	return nil
}

// List returns the values recorded under the multimap key in order.
func (w *WriteTxn) List(table Table, key []byte) ([][]byte, error) {
	var values [][]byte
	err := iterate(w.txn, tableKey(table, key), func(k, _ []byte) (bool, error) {
		values = append(values, k)
		return true, nil
	})

	return values, err
}

// Iterate walks the table in key order.
func (w *WriteTxn) Iterate(table Table, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return iterate(w.txn, tableKey(table, prefix), fn)
}

// setRaw writes the raw key recording its prior state for undo.
func (w *WriteTxn) setRaw(rawKey, value []byte) error {
	if err := w.record(rawKey); err != nil {
		return err
	}

	err := w.txn.Set(rawKey, value)
	if errors.Is(err, badger.ErrTxnTooBig) {
		if err = w.Commit(); err != nil {
			return err
		}

		err = w.txn.Set(rawKey, value)
	}

	return err
}

// deleteRaw removes the raw key recording its prior state for undo.
func (w *WriteTxn) deleteRaw(rawKey []byte) error {
	if err := w.record(rawKey); err != nil {
		return err
	}

	err := w.txn.Delete(rawKey)
	if errors.Is(err, badger.ErrTxnTooBig) {
		if err = w.Commit(); err != nil {
			return err
		}

		err = w.txn.Delete(rawKey)
	}

	return err
}

// record captures the current state of the raw key into the undo buffer.
func (w *WriteTxn) record(rawKey []byte) error {
	if !w.recording {
		return nil
	}

	it, err := w.txn.Get(rawKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		w.undo = append(w.undo, undoOp{kind: undoDelete, key: append([]byte{}, rawKey...)})
		return nil
	}
	if err != nil {
		return err
	}

	value, err := it.ValueCopy(nil)
	if err != nil {
		return err
	}

	w.undo = append(w.undo, undoOp{kind: undoRestore, key: append([]byte{}, rawKey...), value: value})

	return nil
}

// StartUndo begins capturing undo information for one block.
func (w *WriteTxn) StartUndo() {
	w.recording = true
	w.undo = w.undo[:0]
}

// FinishUndo persists the captured undo operations as the block's undo row
// and stops capturing.
func (w *WriteTxn) FinishUndo(height uint32) error {
	w.recording = false

	buf := make([]byte, 0, 64)
	for _, op := range w.undo {
		buf = append(buf, op.kind)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.key)))
		buf = append(buf, op.key...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.value)))
		buf = append(buf, op.value...)
	}
	w.undo = w.undo[:0]

	return w.setRaw(tableKey(undoTable, heightKey(height)), buf)
}

// RollbackBlock reverses every write the block at height performed and
// removes its undo row. Returns an error if no undo row exists.
func (w *WriteTxn) RollbackBlock(height uint32) error {
	rawKey := tableKey(undoTable, heightKey(height))
	buf, err := item(w.txn, rawKey)
	if err != nil {
		return err
	}
	if buf == nil {
		return fmt.Errorf("no undo information for block %d", height)
	}

	ops, err := parseUndoOps(buf)
	if err != nil {
		return err
	}

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.kind {
		case undoRestore:
			err = w.txn.Set(op.key, op.value)
		case undoDelete:
			err = w.txn.Delete(op.key)
		default:
			err = fmt.Errorf("corrupt undo row for block %d", height)
		}
		if err != nil {
			return err
		}
	}

	return w.txn.Delete(rawKey)
}

// HasUndo reports whether the block at height can still be rolled back.
func (w *WriteTxn) HasUndo(height uint32) (bool, error) {
	value, err := item(w.txn, tableKey(undoTable, heightKey(height)))

	return value != nil, err
}

// PruneUndo drops the undo row of the block at height, making it final.
func (w *WriteTxn) PruneUndo(height uint32) error {
	err := w.txn.Delete(tableKey(undoTable, heightKey(height)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}

	return err
}

// parseUndoOps decodes an undo row.
func parseUndoOps(buf []byte) ([]undoOp, error) {
	var ops []undoOp
	for len(buf) > 0 {
		if len(buf) < 5 {
			return nil, errors.New("truncated undo row")
		}

		op := undoOp{kind: buf[0]}
		keyLen := binary.BigEndian.Uint32(buf[1:5])
		buf = buf[5:]
		if uint32(len(buf)) < keyLen+4 {
			return nil, errors.New("truncated undo row")
		}

		op.key = append([]byte{}, buf[:keyLen]...)
		valueLen := binary.BigEndian.Uint32(buf[keyLen : keyLen+4])
		buf = buf[keyLen+4:]
		if uint32(len(buf)) < valueLen {
			return nil, errors.New("truncated undo row")
		}

		if op.kind == undoRestore {
			op.value = append([]byte{}, buf[:valueLen]...)
		}
		buf = buf[valueLen:]

		ops = append(ops, op)
	}

	return ops, nil
}

// heightKey encodes a block height as a big-endian key.
func heightKey(height uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, height)

	return key
}
