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

func ints(values ...int64) []*big.Int {
	sequence := make([]*big.Int, 0, len(values))
	for _, value := range values {
		sequence = append(sequence, big.NewInt(value))
	}

	return sequence
}

func TestParseMessage(t *testing.T) {
	t.Run("fields and edicts", func(t *testing.T) {
		// flags=1, rune=99, body, one edict.
		message := runes.ParseMessage(sequencereader.New(ints(2, 1, 4, 99, 0, 1, 1, 25, 0)), 2)
		require.Nil(t, message.Flaw)
		require.EqualValues(t, map[runes.Tag][]*big.Int{
			runes.TagFlags: ints(1),
			runes.TagRune:  ints(99),
		}, message.Fields)
		require.EqualValues(t, []runes.Edict{{
			RuneID: runes.RuneID{Block: 1, TxID: 1},
			Amount: big.NewInt(25),
			Output: 0,
		}}, message.Edicts)
	})

	t.Run("duplicated tags keep every value in order", func(t *testing.T) {
		message := runes.ParseMessage(sequencereader.New(ints(20, 7, 20, 8)), 1)
		require.Nil(t, message.Flaw)
		require.EqualValues(t, ints(7, 8), message.Fields[runes.TagMint])
	})

	t.Run("truncated field", func(t *testing.T) {
		message := runes.ParseMessage(sequencereader.New(ints(2, 1, 4)), 1)
		require.NotNil(t, message.Flaw)
		require.EqualValues(t, runes.FlawTruncatedField, *message.Flaw)
	})

	t.Run("huge unknown odd tag is ignored", func(t *testing.T) {
		huge := new(big.Int).Lsh(big.NewInt(1), 100)
		huge.Add(huge, big.NewInt(1)) // odd.

		message := runes.ParseMessage(sequencereader.New([]*big.Int{huge, big.NewInt(0)}), 1)
		require.Nil(t, message.Flaw)
		require.Empty(t, message.Fields)
	})

	t.Run("huge unknown even tag flaws", func(t *testing.T) {
		huge := new(big.Int).Lsh(big.NewInt(1), 100)

		message := runes.ParseMessage(sequencereader.New([]*big.Int{huge, big.NewInt(0)}), 1)
		require.NotNil(t, message.Flaw)
		require.EqualValues(t, runes.FlawUnrecognizedEvenTag, *message.Flaw)
	})
}
