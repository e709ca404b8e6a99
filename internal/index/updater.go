// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"bytes"
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// ErrUnrecoverableReorg defines a reorg deeper than the rollback horizon.
var ErrUnrecoverableReorg = errors.New("unrecoverable reorg")

// errShutdown stops the update loop between blocks.
var errShutdown = errors.New("shutdown requested")

// counters are the writer's mutable totals, persisted as statistics rows at
// every block so they roll back with it.
type counters struct {
	blessed       uint64
	cursed        uint64
	lostSats      uint64
	unbound       uint64
	runes         uint64
	reservedRunes uint64
}

// Update indexes blocks until the index has caught up with the source tip,
// the height limit is reached or a shutdown is requested. It owns the single
// write transaction for its whole run.
func (i *Index) Update() error {
	wtx := i.db.Begin()
	defer wtx.Discard()

	fetcher := blocksource.NewValueFetcher(i.source, i.rpcLimit)
	defer fetcher.Close()

	blocks := blocksource.NewBlockFetcher(i.source, 32)
	defer blocks.Stop()

	valueCache := make(map[wire.OutPoint]uint64)

	var sinceCommit uint32
	for {
		err := i.updateBlock(wtx, blocks, fetcher, valueCache)
		if errors.Is(err, errCaughtUp) || errors.Is(err, errShutdown) {
			break
		}
		if err != nil {
			return err
		}

		sinceCommit++
		if sinceCommit >= i.commitInterval {
			if err = wtx.Commit(); err != nil {
				return err
			}
			sinceCommit = 0
		}
	}

	return wtx.Commit()
}

// Run keeps the index synchronized until Shutdown is requested, polling the
// source when caught up.
func (i *Index) Run() error {
	for {
		if i.shuttingDown() {
			return nil
		}

		if err := i.Update(); err != nil {
			return err
		}

		select {
		case <-i.shutdown:
			return nil
		case <-time.After(time.Second):
		}
	}
}

// Shutdown asks the writer to stop after the current block; the current
// batch is committed on the way out.
func (i *Index) Shutdown() {
	i.shutdownOnce.Do(func() { close(i.shutdown) })
}

// errCaughtUp stops the update loop at the source tip.
var errCaughtUp = errors.New("caught up with the source")

// updateBlock fetches and applies the next block.
func (i *Index) updateBlock(wtx *store.WriteTxn, blocks *blocksource.BlockFetcher, fetcher *blocksource.ValueFetcher, valueCache map[wire.OutPoint]uint64) error {
	if i.shuttingDown() {
		return errShutdown
	}

	next, err := getStat(wtx, statNextHeight)
	if err != nil {
		return err
	}
	height := uint32(next)

	if i.heightLimit > 0 && height >= i.heightLimit {
		return errCaughtUp
	}

	tip, err := i.source.BlockCount()
	if err != nil {
		return err
	}
	if height > tip {
		// the source may have replaced our tip with a fork of equal height.
		if height > 0 {
			ourTip, err := wtx.Get(tableHeightToBlockHash, u32Key(height-1))
			if err != nil {
				return err
			}

			sourceTip, err := i.source.BlockHash(height - 1)
			if err != nil && !errors.Is(err, blocksource.ErrBlockNotFound) {
				return err
			}

			if ourTip != nil && sourceTip != nil && *mustHash(ourTip) != *sourceTip {
				i.log.Warnw("reorg detected at tip", "height", height-1)

				if err = i.handleReorg(wtx, height-1); err != nil {
					return err
				}
				clear(valueCache)

				return nil
			}
		}

		return errCaughtUp
	}

	block, err := blocks.Fetch(height)
	if err != nil {
		if errors.Is(err, blocksource.ErrBlockNotFound) {
			return errCaughtUp
		}

		return err
	}

	if height > 0 {
		ourPrev, err := wtx.Get(tableHeightToBlockHash, u32Key(height-1))
		if err != nil {
			return err
		}
		if ourPrev != nil && block.Header.PrevBlock != *mustHash(ourPrev) {
			i.log.Warnw("reorg detected", "height", height, "prev", block.Header.PrevBlock)

			if err = i.handleReorg(wtx, height-1); err != nil {
				return err
			}
			clear(valueCache)

			return nil
		}
	}

	if err = i.indexBlock(wtx, fetcher, valueCache, block, height); err != nil {
		return err
	}

	i.log.Infow("indexed block", "height", height, "hash", block.BlockHash(),
		"transactions", len(block.Transactions))

	return nil
}

// handleReorg rolls the index back to the common ancestor with the source
// chain. Beyond the horizon the index flags itself unrecoverable and stops.
func (i *Index) handleReorg(wtx *store.WriteTxn, tip uint32) error {
	ancestor := tip
	for {
		ourHash, err := wtx.Get(tableHeightToBlockHash, u32Key(ancestor))
		if err != nil {
			return err
		}

		sourceHash, err := i.source.BlockHash(ancestor)
		if err != nil && !errors.Is(err, blocksource.ErrBlockNotFound) {
			return err
		}

		if ourHash != nil && sourceHash != nil && *mustHash(ourHash) == *sourceHash {
			break
		}

		if tip-ancestor >= i.reorgHorizon || ancestor == 0 {
			if err = setStat(wtx, statUnrecoverablyReorged, 1); err != nil {
				return err
			}
			if err = wtx.Commit(); err != nil {
				return err
			}

			return ErrUnrecoverableReorg
		}

		ancestor--
	}

	for height := tip; height > ancestor; height-- {
		i.log.Warnw("rolling back block", "height", height)
		if err := wtx.RollbackBlock(height); err != nil {
			return err
		}
	}

	return wtx.Commit()
}

// indexBlock applies one block inside the write transaction, recording undo
// information so the block can be reversed within the reorg horizon.
func (i *Index) indexBlock(wtx *store.WriteTxn, fetcher *blocksource.ValueFetcher, valueCache map[wire.OutPoint]uint64, block *wire.MsgBlock, height uint32) error {
	wtx.StartUndo()

	c, err := i.loadCounters(wtx)
	if err != nil {
		return err
	}

	if err = i.requestValues(wtx, fetcher, valueCache, block); err != nil {
		return err
	}

	timestamp := uint32(block.Header.Timestamp.Unix())
	iu := newInscriptionUpdater(wtx, i.chain, fetcher, valueCache, height, timestamp, &c)

	var tracker *satTracker
	if i.indexSats {
		tracker = newSatTracker(wtx)
	}

	var ru *runeUpdater
	if i.indexRunes && height >= i.chain.FirstRuneHeight() {
		ru = newRuneUpdater(wtx, i.chain, i.source, height, timestamp, &c)
	}

	txs := block.Transactions
	coinbase := txs[0]

	for _, tx := range txs[1:] {
		txid := tx.TxHash()

		var ranges []SatRange
		if tracker != nil {
			if ranges, err = tracker.inputRanges(tx); err != nil {
				return err
			}
		}

		if err = iu.indexEnvelopes(tx, txid, ranges); err != nil {
			return err
		}

		if tracker != nil {
			if err = tracker.allocate(tx, txid, ranges); err != nil {
				return err
			}
		}

		if err = i.indexTransaction(wtx, tx, txid); err != nil {
			return err
		}
	}

	coinbaseTxid := coinbase.TxHash()

	var coinbaseRanges []SatRange
	if tracker != nil {
		coinbaseRanges = tracker.coinbaseRanges(height)
	}

	if err = iu.indexEnvelopes(coinbase, coinbaseTxid, coinbaseRanges); err != nil {
		return err
	}

	if tracker != nil {
		if err = tracker.allocateCoinbase(coinbase, coinbaseTxid, coinbaseRanges); err != nil {
			return err
		}
	}

	if err = i.indexTransaction(wtx, coinbase, coinbaseTxid); err != nil {
		return err
	}

	if ru != nil {
		for txIndex, tx := range txs {
			if err = ru.indexRunes(uint32(txIndex), tx, tx.TxHash()); err != nil {
				return err
			}
		}
		if err = ru.update(); err != nil {
			return err
		}

		c.runes, c.reservedRunes = ru.counters()
	}

	updated := iu.counters()
	c.blessed = updated.blessed
	c.cursed = updated.cursed
	c.lostSats = updated.lostSats
	c.unbound = updated.unbound

	hash := block.BlockHash()
	if err = wtx.Set(tableHeightToBlockHash, u32Key(height), hash[:]); err != nil {
		return err
	}

	if err = i.storeCounters(wtx, c); err != nil {
		return err
	}
	if err = setStat(wtx, statNextHeight, uint64(height)+1); err != nil {
		return err
	}

	if err = wtx.FinishUndo(height); err != nil {
		return err
	}

	if height >= i.reorgHorizon {
		return wtx.PruneUndo(height - i.reorgHorizon)
	}

	return nil
}

// indexTransaction maintains the optional transaction and address tables.
func (i *Index) indexTransaction(wtx *store.WriteTxn, tx *wire.MsgTx, txid chainhash.Hash) error {
	if i.indexTransactions {
		var buf bytes.Buffer
		if err := tx.Serialize(&buf); err != nil {
			return err
		}
		if err := wtx.Set(tableTransactions, txid[:], buf.Bytes()); err != nil {
			return err
		}
	}

	if !i.indexAddresses {
		return nil
	}

	for _, txIn := range tx.TxIn {
		if isNullOutpoint(txIn.PreviousOutPoint) {
			continue
		}

		key := outpointKey(txIn.PreviousOutPoint)
		script, err := wtx.Get(tableOutpointToScript, key)
		if err != nil {
			return err
		}
		if script == nil {
			continue
		}

		if err = wtx.MRemove(tableScriptToOutpoint, chainhash.HashB(script), key); err != nil {
			return err
		}
		if err = wtx.Delete(tableOutpointToScript, key); err != nil {
			return err
		}
	}

	for vout, txOut := range tx.TxOut {
		key := outpointKey(wire.OutPoint{Hash: txid, Index: uint32(vout)})
		if err := wtx.Set(tableOutpointToScript, key, txOut.PkScript); err != nil {
			return err
		}
		if err := wtx.MPut(tableScriptToOutpoint, chainhash.HashB(txOut.PkScript), key); err != nil {
			return err
		}
	}

	return nil
}

// requestValues enqueues lookups for every spent outpoint whose value is
// neither cached, persisted, nor created earlier in the same block. The
// writer drains the responses in exactly this order.
func (i *Index) requestValues(wtx *store.WriteTxn, fetcher *blocksource.ValueFetcher, valueCache map[wire.OutPoint]uint64, block *wire.MsgBlock) error {
	blockTxids := make(map[[32]byte]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		blockTxids[tx.TxHash()] = struct{}{}
	}

	process := func(tx *wire.MsgTx) error {
		for _, txIn := range tx.TxIn {
			outpoint := txIn.PreviousOutPoint
			if isNullOutpoint(outpoint) {
				continue
			}
			if _, ok := valueCache[outpoint]; ok {
				continue
			}
			if _, ok := blockTxids[outpoint.Hash]; ok {
				continue
			}

			raw, err := wtx.Get(tableOutpointToValue, outpointKey(outpoint))
			if err != nil {
				return err
			}
			if raw != nil {
				continue
			}

			fetcher.Request(outpoint)
		}

		return nil
	}

	for _, tx := range block.Transactions[1:] {
		if err := process(tx); err != nil {
			return err
		}
	}

	return nil
}
