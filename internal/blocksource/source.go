// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package blocksource feeds raw blocks and spent-output values from a
// bitcoin full node into the index writer.
package blocksource

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrBlockNotFound defines that no block exists at the requested position.
var ErrBlockNotFound = errors.New("block not found")

// ErrTxNotFound defines that the requested transaction is unknown to the node.
var ErrTxNotFound = errors.New("transaction not found")

// Source pulls chain data from a full node. The live implementation speaks
// JSON-RPC; tests use the in-memory mock.
type Source interface {
	// BlockCount returns the height of the best block.
	BlockCount() (uint32, error)
	// BlockHash returns the hash of the block at height.
	BlockHash(height uint32) (*chainhash.Hash, error)
	// BestBlockHash returns the hash of the best block.
	BestBlockHash() (*chainhash.Hash, error)
	// Block returns the block with the hash, or ErrBlockNotFound.
	Block(hash *chainhash.Hash) (*wire.MsgBlock, error)
	// BlockHeader returns the header of the block with the hash.
	BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, error)
	// BlockHeight returns the height of the block with the hash.
	BlockHeight(hash *chainhash.Hash) (uint32, error)
	// Transaction returns the raw transaction, or ErrTxNotFound.
	Transaction(txid *chainhash.Hash) (*wire.MsgTx, error)
	// TxBlockHash returns the hash of the block containing the transaction,
	// or nil if unconfirmed.
	TxBlockHash(txid *chainhash.Hash) (*chainhash.Hash, error)
}

// OutputValue resolves the value in satoshis of the outpoint by fetching its
// funding transaction from the source.
func OutputValue(source Source, outpoint wire.OutPoint) (uint64, error) {
	tx, err := source.Transaction(&outpoint.Hash)
	if err != nil {
		return 0, err
	}

	if int(outpoint.Index) >= len(tx.TxOut) {
		return 0, errors.New("outpoint index beyond transaction outputs")
	}

	return uint64(tx.TxOut[outpoint.Index].Value), nil
}
