// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
)

func TestFlags(t *testing.T) {
	t.Run("add and check", func(t *testing.T) {
		value := big.NewInt(0)
		require.False(t, runes.HasFlag(value, runes.FlagEtching))

		value = runes.AddFlag(value, runes.FlagEtching)
		require.True(t, runes.HasFlag(value, runes.FlagEtching))
		require.False(t, runes.HasFlag(value, runes.FlagTerms))

		value = runes.AddFlag(value, runes.FlagTerms)
		require.True(t, runes.HasFlag(value, runes.FlagTerms))
		require.True(t, runes.HasFlag(value, runes.FlagTurbo) == false)
	})

	t.Run("values", func(t *testing.T) {
		require.EqualValues(t, big.NewInt(1), runes.FlagEtching)
		require.EqualValues(t, big.NewInt(2), runes.FlagTerms)
		require.EqualValues(t, big.NewInt(4), runes.FlagTurbo)
	})
}
