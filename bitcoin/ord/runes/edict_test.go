// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/internal/sequencereader"
)

func TestEdicts(t *testing.T) {
	t.Run("delta decoding", func(t *testing.T) {
		edicts, flaw := runes.ParseEdictsFromIntSeq(
			sequencereader.New(ints(840_000, 3, 100, 0, 0, 2, 50, 1, 5, 7, 25, 0)), 2)
		require.Nil(t, flaw)
		require.EqualValues(t, []runes.Edict{
			{RuneID: runes.RuneID{Block: 840_000, TxID: 3}, Amount: big.NewInt(100), Output: 0},
			{RuneID: runes.RuneID{Block: 840_000, TxID: 5}, Amount: big.NewInt(50), Output: 1},
			{RuneID: runes.RuneID{Block: 840_005, TxID: 7}, Amount: big.NewInt(25), Output: 0},
		}, edicts)
	})

	t.Run("delta encoding round trip", func(t *testing.T) {
		edicts := []runes.Edict{
			{RuneID: runes.RuneID{Block: 840_000, TxID: 3}, Amount: big.NewInt(100), Output: 0},
			{RuneID: runes.RuneID{Block: 840_000, TxID: 5}, Amount: big.NewInt(50), Output: 1},
			{RuneID: runes.RuneID{Block: 840_005, TxID: 7}, Amount: big.NewInt(25), Output: 0},
		}

		sequence := runes.EdictsToIntSeq(append([]runes.Edict{}, edicts...))
		parsed, flaw := runes.ParseEdictsFromIntSeq(sequencereader.New(sequence), 2)
		require.Nil(t, flaw)
		require.EqualValues(t, edicts, parsed)
	})

	t.Run("trailing integers", func(t *testing.T) {
		_, flaw := runes.ParseEdictsFromIntSeq(sequencereader.New(ints(1, 1, 1)), 1)
		require.NotNil(t, flaw)
		require.EqualValues(t, runes.FlawTrailingIntegers, *flaw)
	})

	t.Run("transaction index in block zero", func(t *testing.T) {
		_, flaw := runes.ParseEdictsFromIntSeq(sequencereader.New(ints(0, 5, 1, 0)), 1)
		require.NotNil(t, flaw)
		require.EqualValues(t, runes.FlawEdictRuneID, *flaw)
	})

	t.Run("output beyond transaction", func(t *testing.T) {
		_, flaw := runes.ParseEdictsFromIntSeq(sequencereader.New(ints(1, 1, 1, 3)), 2)
		require.NotNil(t, flaw)
		require.EqualValues(t, runes.FlawEdictOutput, *flaw)
	})
}
