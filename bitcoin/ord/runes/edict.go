// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math"
	"math/big"
	"slices"

	"github.com/BoostyLabs/ordindex/internal/sequencereader"
)

// Edict defines transfer values of the rune protocol.
type Edict struct {
	RuneID RuneID
	Amount *big.Int
	Output uint32
}

// ParseEdictsFromIntSeq parses vector of Edicts from number sequence.
// An output index beyond the transaction outputs or a rune id that cannot
// be reached by delta decoding flaws the whole runestone.
func ParseEdictsFromIntSeq(sr *sequencereader.SequenceReader[*big.Int], outputs int) ([]Edict, *Flaw) {
	flaw := func(f Flaw) ([]Edict, *Flaw) { return nil, &f }

	if sr.Len()%4 != 0 {
		return flaw(FlawTrailingIntegers)
	}

	var prevRuneID RuneID
	edicts := make([]Edict, 0, sr.Len()/4)
	for sr.HasNext() {
		// skip errors due to previous mod/div 4 check.
		block, _ := sr.Next()
		tx, _ := sr.Next()
		amount, _ := sr.Next()
		output, _ := sr.Next()

		if !block.IsUint64() || !tx.IsUint64() || tx.Uint64() > math.MaxUint32 {
			return flaw(FlawEdictRuneID)
		}

		edict := Edict{
			RuneID: prevRuneID.Next(RuneID{
				Block: block.Uint64(),
				TxID:  uint32(tx.Uint64()),
			}),
			Amount: amount,
			Output: 0,
		}

		// a non-zero transaction index in block zero has no etching to refer to,
		// except the zero id which denotes the rune etched by this transaction.
		if edict.RuneID.Block == 0 && edict.RuneID.TxID != 0 {
			return flaw(FlawEdictRuneID)
		}

		if !output.IsUint64() || output.Uint64() > uint64(outputs) {
			return flaw(FlawEdictOutput)
		}
		edict.Output = uint32(output.Uint64())

		prevRuneID.Set(edict.RuneID)
		edicts = append(edicts, edict)
	}

	return edicts, nil
}

// ToIntSeq returns Edict as sequence on integers.
func (edict *Edict) ToIntSeq() []*big.Int {
	return append(edict.RuneID.ToIntSeq(), new(big.Int).Set(edict.Amount), new(big.Int).SetUint64(uint64(edict.Output)))
}

// SortEdicts sorts edicts by block number and transaction id.
func SortEdicts(edicts []Edict) {
	slices.SortFunc(edicts, func(a, b Edict) int {
		return a.RuneID.Cmp(b.RuneID)
	})
}

// UseDelta converts list of Edits using delta encoding.
func UseDelta(sortedEdicts []Edict) []Edict {
	var (
		deltaEdicts   = make([]Edict, len(sortedEdicts))
		previousBlock uint64
		previousTx    uint32
		blockDelta    uint64
		txDelta       uint32
	)

	for idx, edict := range sortedEdicts {
		blockDelta = edict.RuneID.Block - previousBlock
		if blockDelta == 0 {
			txDelta = edict.RuneID.TxID - previousTx
		} else {
			txDelta = edict.RuneID.TxID
		}

		deltaEdicts[idx] = Edict{
			RuneID: RuneID{
				Block: blockDelta,
				TxID:  txDelta,
			},
			Amount: edict.Amount,
			Output: edict.Output,
		}

		previousBlock = edict.RuneID.Block
		previousTx = edict.RuneID.TxID
	}

	return deltaEdicts
}

// EdictsToIntSeq converts list of Edicts into in list of integers.
func EdictsToIntSeq(edicts []Edict) []*big.Int {
	sequence := make([]*big.Int, 0, len(edicts)*4)
	SortEdicts(edicts)
	for _, edict := range UseDelta(edicts) {
		sequence = append(sequence, edict.ToIntSeq()...)
	}

	return sequence
}
