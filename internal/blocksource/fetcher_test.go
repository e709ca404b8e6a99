// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package blocksource_test

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/internal/blocksource"
)

func TestValueFetcher(t *testing.T) {
	t.Run("responses arrive in request order", func(t *testing.T) {
		mock := blocksource.NewMock()

		var coinbases []*wire.MsgTx
		for i := 0; i < 8; i++ {
			coinbases = append(coinbases, mock.MineBlock().Transactions[0])
		}

		fetcher := blocksource.NewValueFetcher(mock, 4)
		defer fetcher.Close()

		for _, coinbase := range coinbases {
			fetcher.Request(wire.OutPoint{Hash: coinbase.TxHash(), Index: 0})
		}

		for range coinbases {
			value, err := fetcher.Recv()
			require.NoError(t, err)
			require.EqualValues(t, 5_000_000_000, value)
		}
	})

	t.Run("unknown outpoint yields an error", func(t *testing.T) {
		mock := blocksource.NewMock()

		fetcher := blocksource.NewValueFetcher(mock, 1)
		defer fetcher.Close()

		fetcher.Request(wire.OutPoint{Index: 3})
		_, err := fetcher.Recv()
		require.Error(t, err)
	})
}

func TestMockChain(t *testing.T) {
	t.Run("fork replaces the tip", func(t *testing.T) {
		mock := blocksource.NewMock()
		original := mock.MineBlock()
		originalHash := original.BlockHash()

		mock.InvalidateTip(1)
		replacement := mock.MineBlockWithSubsidy(4_000_000_000)

		tip, err := mock.BestBlockHash()
		require.NoError(t, err)
		require.EqualValues(t, replacement.BlockHash(), *tip)

		// the dropped block stays known by hash.
		_, err = mock.Block(&originalHash)
		require.NoError(t, err)
	})
}
