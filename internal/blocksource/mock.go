// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package blocksource

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Mock is an in-memory Source used by tests. Blocks are built from crafted
// transactions; forks are produced by truncating the chain and mining anew.
type Mock struct {
	mu sync.Mutex

	chain   []*chainhash.Hash
	blocks  map[chainhash.Hash]*wire.MsgBlock
	heights map[chainhash.Hash]uint32
	txs     map[chainhash.Hash]*chainhash.Hash // txid -> containing block.
}

// NewMock returns a mock chain holding only a genesis block.
func NewMock() *Mock {
	mock := &Mock{
		blocks:  make(map[chainhash.Hash]*wire.MsgBlock),
		heights: make(map[chainhash.Hash]uint32),
		txs:     make(map[chainhash.Hash]*chainhash.Hash),
	}

	mock.MineBlock()

	return mock
}

// CoinbaseTx builds a minimal coinbase paying subsidy to an anyone-can-spend
// output.
func (m *Mock) CoinbaseTx(subsidy uint64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  []byte{0x01, byte(len(m.chain))}, // unique per height.
	})
	tx.AddTxOut(&wire.TxOut{Value: int64(subsidy), PkScript: []byte{0x51}})

	return tx
}

// MineBlock appends a block containing a default coinbase plus txs.
func (m *Mock) MineBlock(txs ...*wire.MsgTx) *wire.MsgBlock {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mine(txs)
}

// MineBlockWithSubsidy appends a block whose coinbase pays exactly subsidy.
func (m *Mock) MineBlockWithSubsidy(subsidy uint64, txs ...*wire.MsgTx) *wire.MsgBlock {
	m.mu.Lock()
	defer m.mu.Unlock()

	coinbase := m.CoinbaseTx(subsidy)

	return m.mineWithCoinbase(coinbase, txs)
}

// mine appends a block with an auto-subsidy coinbase.
func (m *Mock) mine(txs []*wire.MsgTx) *wire.MsgBlock {
	height := uint32(len(m.chain))
	subsidy := uint64(50_0000_0000) >> (height / 210_000)

	return m.mineWithCoinbase(m.CoinbaseTx(subsidy), txs)
}

// mineWithCoinbase appends a block with the explicit coinbase.
func (m *Mock) mineWithCoinbase(coinbase *wire.MsgTx, txs []*wire.MsgTx) *wire.MsgBlock {
	var prev chainhash.Hash
	if len(m.chain) > 0 {
		prev = *m.chain[len(m.chain)-1]
	}

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: prev,
			Timestamp: time.Unix(int64(1231006505+len(m.chain)*600), 0),
			Nonce:     uint32(len(m.chain)),
		},
	}

	block.AddTransaction(coinbase)
	for _, tx := range txs {
		block.AddTransaction(tx)
	}

	// the root commits to every txid, so a block mined on a fork differs by
	// hash from the block it replaces.
	data := append([]byte(nil), prev[:]...)
	for _, tx := range block.Transactions {
		txid := tx.TxHash()
		data = append(data, txid[:]...)
	}
	block.Header.MerkleRoot = chainhash.DoubleHashH(data)

	hash := block.BlockHash()
	m.chain = append(m.chain, &hash)
	m.blocks[hash] = block
	m.heights[hash] = uint32(len(m.chain) - 1)
	for _, tx := range block.Transactions {
		txid := tx.TxHash()
		m.txs[txid] = &hash
	}

	return block
}

// InvalidateTip drops depth blocks off the active chain. The dropped blocks
// stay known by hash, like a real node after a reorg.
func (m *Mock) InvalidateTip(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chain = m.chain[:len(m.chain)-depth]
}

// Height returns the current best height.
func (m *Mock) Height() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return uint32(len(m.chain) - 1)
}

// BlockCount implements Source.
func (m *Mock) BlockCount() (uint32, error) {
	return m.Height(), nil
}

// BlockHash implements Source.
func (m *Mock) BlockHash(height uint32) (*chainhash.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(height) >= len(m.chain) {
		return nil, ErrBlockNotFound
	}

	return m.chain[height], nil
}

// BestBlockHash implements Source.
func (m *Mock) BestBlockHash() (*chainhash.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.chain[len(m.chain)-1], nil
}

// Block implements Source.
func (m *Mock) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	block, ok := m.blocks[*hash]
	if !ok {
		return nil, ErrBlockNotFound
	}

	return block, nil
}

// BlockHeader implements Source.
func (m *Mock) BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, error) {
	block, err := m.Block(hash)
	if err != nil {
		return nil, err
	}

	return &block.Header, nil
}

// Transaction implements Source.
func (m *Mock) Transaction(txid *chainhash.Hash) (*wire.MsgTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blockHash, ok := m.txs[*txid]
	if !ok {
		return nil, ErrTxNotFound
	}

	for _, tx := range m.blocks[*blockHash].Transactions {
		if tx.TxHash() == *txid {
			return tx, nil
		}
	}

	return nil, ErrTxNotFound
}

// TxBlockHash implements Source.
func (m *Mock) TxBlockHash(txid *chainhash.Hash) (*chainhash.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blockHash, ok := m.txs[*txid]
	if !ok {
		return nil, ErrTxNotFound
	}

	return blockHash, nil
}

// BlockHeight implements Source.
func (m *Mock) BlockHeight(hash *chainhash.Hash) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	height, ok := m.heights[*hash]
	if !ok {
		return 0, ErrBlockNotFound
	}

	return height, nil
}
