// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
)

func TestRune(t *testing.T) {
	t.Run("name to number", func(t *testing.T) {
		tests := []struct {
			name  string
			value int64
		}{
			{"A", 0},
			{"B", 1},
			{"Z", 25},
			{"AA", 26},
			{"AB", 27},
			{"AZ", 51},
			{"BA", 52},
			{"ZZ", 701},
			{"AAA", 702},
		}
		for _, test := range tests {
			rune_, err := runes.NewRuneFromString(test.name)
			require.NoError(t, err)
			require.EqualValues(t, test.value, rune_.Value().Int64())
			require.EqualValues(t, test.name, rune_.String())
		}
	})

	t.Run("round trip through number", func(t *testing.T) {
		for _, name := range []string{"A", "UNCOMMONGOODS", "ZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
			rune_, err := runes.NewRuneFromString(name)
			require.NoError(t, err)

			back, err := runes.NewRuneFromBig(rune_.Value())
			require.NoError(t, err)
			require.EqualValues(t, name, back.String())
		}
	})

	t.Run("invalid symbols", func(t *testing.T) {
		_, err := runes.NewRuneFromString("ABCa")
		require.Error(t, err)

		_, err = runes.NewRuneFromString("AB•CD")
		require.Error(t, err)
	})

	t.Run("spacers", func(t *testing.T) {
		rune_, spacers, err := runes.NewRuneFromStringWithSpacer("UNCOMMON•GOODS")
		require.NoError(t, err)
		require.EqualValues(t, "UNCOMMONGOODS", rune_.String())
		require.EqualValues(t, uint32(1)<<7, spacers)
		require.EqualValues(t, "UNCOMMON•GOODS", rune_.StringWithSeparator(spacers))
	})

	t.Run("reserved", func(t *testing.T) {
		require.EqualValues(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAA", runes.FirstReservedRuneName.String())
		require.True(t, runes.FirstReservedRuneName.IsReserved())

		reserved := runes.RuneReserve(runes.RuneID{Block: 1, TxID: 2})
		expected := new(big.Int).Add(runes.FirstReservedRuneNameInt,
			new(big.Int).SetUint64(1<<32|2))
		require.EqualValues(t, expected, reserved.Value())

		unreserved, err := runes.NewRuneFromString("UNCOMMONGOODS")
		require.NoError(t, err)
		require.False(t, unreserved.IsReserved())
	})

	t.Run("commitment", func(t *testing.T) {
		rune_, err := runes.NewRuneFromBig(big.NewInt(0x0102))
		require.NoError(t, err)
		require.EqualValues(t, []byte{0x02, 0x01}, rune_.Commitment())

		zero, err := runes.NewRuneFromBig(big.NewInt(0))
		require.NoError(t, err)
		require.Empty(t, zero.Commitment())
	})

	t.Run("minimum at height", func(t *testing.T) {
		const firstRuneHeight = 840_000

		// before activation only 13-character names are unlocked.
		thirteen, err := runes.NewRuneFromString("AAAAAAAAAAAAA")
		require.NoError(t, err)
		require.EqualValues(t, thirteen.Value(), runes.MinimumAtHeight(firstRuneHeight, 0).Value())
		require.EqualValues(t, thirteen.Value(), runes.MinimumAtHeight(firstRuneHeight, firstRuneHeight-2).Value())

		// the minimum decreases monotonically over the unlock period.
		previous := runes.MinimumAtHeight(firstRuneHeight, firstRuneHeight-1).Value()
		for _, height := range []uint32{
			firstRuneHeight,
			firstRuneHeight + 17_500,
			firstRuneHeight + 100_000,
			firstRuneHeight + 209_998,
		} {
			current := runes.MinimumAtHeight(firstRuneHeight, height).Value()
			require.True(t, current.Cmp(previous) <= 0, "minimum grew at height %d", height)
			previous = current
		}

		// after the unlock period every name is available.
		require.Zero(t, runes.MinimumAtHeight(firstRuneHeight, firstRuneHeight+210_000).Value().Sign())
	})
}
