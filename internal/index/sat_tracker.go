// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// satTracker maintains the satoshi ranges of every unspent output while
// sat indexing is enabled. Ranges move from spent outpoints onto new outputs
// in input order; satoshis paid as fees flow into the block's coinbase.
type satTracker struct {
	wtx *store.WriteTxn

	// fee ranges collected from the block's transactions, in block order.
	feeRanges []SatRange
}

// newSatTracker prepares the per-block sat pass.
func newSatTracker(wtx *store.WriteTxn) *satTracker {
	return &satTracker{wtx: wtx}
}

// inputRanges removes and concatenates the sat ranges of every outpoint the
// transaction spends.
func (t *satTracker) inputRanges(tx *wire.MsgTx) ([]SatRange, error) {
	var ranges []SatRange
	for _, txIn := range tx.TxIn {
		key := outpointKey(txIn.PreviousOutPoint)
		raw, err := t.wtx.Get(tableOutpointToSatRange, key)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("no sat ranges for spent outpoint %s", txIn.PreviousOutPoint)
		}

		parsed, err := parseSatRanges(raw)
		if err != nil {
			return nil, err
		}

		ranges = append(ranges, parsed...)
		if err = t.wtx.Delete(tableOutpointToSatRange, key); err != nil {
			return nil, err
		}
	}

	return ranges, nil
}

// coinbaseRanges builds the coinbase input stream: the block subsidy
// prepended to the fees collected from the block's transactions.
func (t *satTracker) coinbaseRanges(height uint32) []SatRange {
	h := sat.Height(height)
	ranges := make([]SatRange, 0, len(t.feeRanges)+1)

	if subsidy := h.Subsidy(); subsidy > 0 {
		first := h.StartingSat().N()
		ranges = append(ranges, SatRange{Start: first, End: first + subsidy})
	}

	return append(ranges, t.feeRanges...)
}

// allocate apportions the input ranges over the transaction outputs by
// value, splitting ranges that straddle an output boundary. Leftover
// satoshis are the fee, collected for the coinbase.
func (t *satTracker) allocate(tx *wire.MsgTx, txid chainhash.Hash, ranges []SatRange) error {
	remaining, err := t.allocateOutputs(tx, txid, ranges)
	if err != nil {
		return err
	}

	t.feeRanges = append(t.feeRanges, remaining...)

	return nil
}

// allocateCoinbase apportions the coinbase stream over the coinbase outputs;
// satoshis beyond them are lost and anchor at the null outpoint.
func (t *satTracker) allocateCoinbase(tx *wire.MsgTx, txid chainhash.Hash, ranges []SatRange) error {
	remaining, err := t.allocateOutputs(tx, txid, ranges)
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		return nil
	}

	key := outpointKey(nullOutpoint)
	raw, err := t.wtx.Get(tableOutpointToSatRange, key)
	if err != nil {
		return err
	}

	lost := []SatRange{}
	if raw != nil {
		if lost, err = parseSatRanges(raw); err != nil {
			return err
		}
	}

	return t.wtx.Set(tableOutpointToSatRange, key, serializeSatRanges(append(lost, remaining...)))
}

// allocateOutputs writes each output's share of the range stream and
// returns what is left over.
func (t *satTracker) allocateOutputs(tx *wire.MsgTx, txid chainhash.Hash, ranges []SatRange) ([]SatRange, error) {
	for vout, txOut := range tx.TxOut {
		var (
			outputRanges []SatRange
			needed       = uint64(txOut.Value)
		)
		for needed > 0 && len(ranges) > 0 {
			r := ranges[0]
			if r.Size() <= needed {
				outputRanges = append(outputRanges, r)
				needed -= r.Size()
				ranges = ranges[1:]
				continue
			}

			// split the range at the output boundary.
			outputRanges = append(outputRanges, SatRange{Start: r.Start, End: r.Start + needed})
			ranges[0].Start = r.Start + needed
			needed = 0
		}

		outpoint := wire.OutPoint{Hash: txid, Index: uint32(vout)}
		err := t.wtx.Set(tableOutpointToSatRange, outpointKey(outpoint), serializeSatRanges(outputRanges))
		if err != nil {
			return nil, err
		}
	}

	return ranges, nil
}
