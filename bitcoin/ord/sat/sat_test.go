// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
)

func TestSat(t *testing.T) {
	t.Run("supply", func(t *testing.T) {
		var supply uint64
		for epoch := sat.Epoch(0); epoch < sat.FirstPostSubsidyEpoch; epoch++ {
			supply += epoch.Subsidy() * uint64(sat.SubsidyHalvingInterval)
		}
		require.EqualValues(t, sat.Supply, supply)

		_, err := sat.NewSat(sat.Supply)
		require.ErrorIs(t, err, sat.ErrOutOfRange)

		_, err = sat.NewSat(sat.Supply - 1)
		require.NoError(t, err)
	})

	t.Run("height and epoch", func(t *testing.T) {
		require.EqualValues(t, 0, sat.Sat(0).Height())
		require.EqualValues(t, 0, sat.Sat(4_999_999_999).Height())
		require.EqualValues(t, 1, sat.Sat(5_000_000_000).Height())
		require.EqualValues(t, 0, sat.Sat(0).Epoch())

		firstHalving := sat.Epoch(1).StartingSat()
		require.EqualValues(t, 210_000, firstHalving.Height())
		require.EqualValues(t, 1, firstHalving.Epoch())
		require.EqualValues(t, uint64(2_500_000_000), sat.Epoch(1).Subsidy())
	})

	t.Run("last sat", func(t *testing.T) {
		require.EqualValues(t, "a", sat.Last.Name())
		require.EqualValues(t, 32, sat.Last.Epoch())
	})

	t.Run("name round trip", func(t *testing.T) {
		for _, n := range []uint64{0, 1, 26, 5_000_000_000, sat.Supply - 1} {
			parsed, err := sat.FromName(sat.Sat(n).Name())
			require.NoError(t, err)
			require.EqualValues(t, n, parsed.N())
		}

		require.EqualValues(t, "nvtdijuwxlp", sat.Sat(0).Name())
	})

	t.Run("degree round trip", func(t *testing.T) {
		for _, n := range []uint64{0, 1, 4_999_999_999, 5_000_000_000, 1_050_000_000_000_000, sat.Supply - 1} {
			parsed, err := sat.FromDegree(sat.Sat(n).Degree().String())
			require.NoError(t, err)
			require.EqualValues(t, n, parsed.N(), "sat %d", n)
		}
	})

	t.Run("decimal round trip", func(t *testing.T) {
		for _, n := range []uint64{0, 1, 4_999_999_999, 5_000_000_000, sat.Supply - 1} {
			parsed, err := sat.FromDecimal(sat.Sat(n).Decimal().String())
			require.NoError(t, err)
			require.EqualValues(t, n, parsed.N())
		}
	})

	t.Run("from string", func(t *testing.T) {
		for _, repr := range []string{"0", "nvtdijuwxlp", "0.0", "0°0′0″0‴"} {
			parsed, err := sat.FromString(repr)
			require.NoError(t, err)
			require.EqualValues(t, 0, parsed.N())
		}

		_, err := sat.FromString("2099999997690000")
		require.ErrorIs(t, err, sat.ErrOutOfRange)
	})

	t.Run("rarity", func(t *testing.T) {
		require.EqualValues(t, sat.RarityMythic, sat.Sat(0).Rarity())
		require.EqualValues(t, sat.RarityCommon, sat.Sat(1).Rarity())
		require.EqualValues(t, sat.RarityUncommon, sat.Height(1).StartingSat().Rarity())
		require.EqualValues(t, sat.RarityRare, sat.Height(2016).StartingSat().Rarity())
		require.EqualValues(t, sat.RarityEpic, sat.Height(210_000).StartingSat().Rarity())
		require.EqualValues(t, sat.RarityLegendary, sat.Height(6*210_000).StartingSat().Rarity())

		require.True(t, sat.Sat(1).Common())
		require.False(t, sat.Sat(0).Common())
	})

	t.Run("charms of position", func(t *testing.T) {
		require.True(t, sat.Sat(0).Coin())
		require.False(t, sat.Sat(1).Coin())
		require.True(t, sat.Sat(50*100_000_000*9).Nineball())
		require.False(t, sat.Sat(50*100_000_000*10).Nineball())
		require.True(t, sat.Sat(0).Palindrome())
		require.True(t, sat.Sat(121).Palindrome())
		require.False(t, sat.Sat(120).Palindrome())
	})

	t.Run("percentile", func(t *testing.T) {
		require.EqualValues(t, "0%", sat.Sat(0).Percentile())
		require.EqualValues(t, "100%", sat.Last.Percentile())
	})

	t.Run("third", func(t *testing.T) {
		require.EqualValues(t, 0, sat.Sat(0).Third())
		require.EqualValues(t, 1, sat.Sat(1).Third())
		require.EqualValues(t, 0, sat.Sat(5_000_000_000).Third())
	})
}
