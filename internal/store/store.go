// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package store wraps an embedded key/value database with typed table
// prefixes, multimap tables and a per-block undo log.
//
// A single long-lived write transaction owns all mutation; read-only
// snapshots may be opened concurrently. Integer keys are big-endian so
// that range iteration follows natural order.
package store

import (
	"bytes"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/BoostyLabs/ordindex/internal/logging"
)

// Table identifies a logical table by its single-byte key prefix.
type Table byte

// ErrClosed defines that the database handle was already closed.
var ErrClosed = errors.New("store is closed")

// DB is an embedded multi-table key/value store.
type DB struct {
	badger *badger.DB
	log    *zap.SugaredLogger

	// writeMu serializes writers; there is exactly one per process.
	writeMu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(logging.NewBadgerLogger()).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DB{badger: db, log: logging.GetLogger()}, nil
}

// OpenReadOnly opens the database at path for queries only. It may be used
// concurrently with an active writer process.
func OpenReadOnly(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(logging.NewBadgerLogger()).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DB{badger: db, log: logging.GetLogger()}, nil
}

// Close releases the database.
func (db *DB) Close() error {
	return db.badger.Close()
}

// Begin opens the write transaction. It blocks until any previous writer
// finishes. Commit persists the writes and keeps the transaction open;
// Discard releases it.
func (db *DB) Begin() *WriteTxn {
	db.writeMu.Lock()

	return &WriteTxn{
		db:  db,
		txn: db.badger.NewTransaction(true),
	}
}

// View runs fn over a consistent read-only snapshot.
func (db *DB) View(fn func(rtx *ReadTxn) error) error {
	return db.badger.View(func(txn *badger.Txn) error {
		return fn(&ReadTxn{txn: txn})
	})
}

// tableKey prefixes the key with its table byte.
func tableKey(table Table, key []byte) []byte {
	return append([]byte{byte(table)}, key...)
}

// item reads the value of a raw key from the transaction;
// a missing key yields a nil value and no error.
func item(txn *badger.Txn, rawKey []byte) ([]byte, error) {
	it, err := txn.Get(rawKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return it.ValueCopy(nil)
}

// iterate walks raw keys with the prefix in lexicographic order, invoking fn
// with the key beyond the prefix and the value. Returning false stops.
func iterate(txn *badger.Txn, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		value, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}

		proceed, err := fn(bytes.Clone(it.Item().Key()[len(prefix):]), value)
		if err != nil || !proceed {
			return err
		}
	}

	return nil
}

// ReadTxn is a consistent read-only snapshot of the database.
type ReadTxn struct {
	txn *badger.Txn
}

// Get returns the value under the key, or nil if absent.
func (r *ReadTxn) Get(table Table, key []byte) ([]byte, error) {
	return item(r.txn, tableKey(table, key))
}

// List returns the values recorded under the multimap key in order.
func (r *ReadTxn) List(table Table, key []byte) ([][]byte, error) {
	var values [][]byte
	err := iterate(r.txn, tableKey(table, key), func(k, _ []byte) (bool, error) {
		values = append(values, k)
		return true, nil
	})

	return values, err
}

// Iterate walks the table in key order.
func (r *ReadTxn) Iterate(table Table, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return iterate(r.txn, tableKey(table, prefix), fn)
}
