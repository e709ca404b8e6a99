// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/config"
	"github.com/BoostyLabs/ordindex/internal/index"
)

// p2trStub is a stand-in key-path output script.
var p2trStub = append([]byte{0x51, 0x20}, make([]byte, 32)...)

// testConfig builds an index configuration over a throwaway directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		IndexPath: t.TempDir(),
		Chain:     ord.Regtest,
		Bitcoin:   config.BitcoinConfig{RPCLimit: 2},
		Index: config.IndexConfig{
			Sats:           true,
			Runes:          true,
			CommitInterval: 1,
			ReorgHorizon:   6,
		},
	}
}

// openIndex opens a fresh index over the mock chain.
func openIndex(t *testing.T, cfg *config.Config, mock *blocksource.Mock) *index.Index {
	t.Helper()

	idx, err := index.Open(cfg, mock)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, idx.Close()) })

	return idx
}

// spend builds a transaction consuming the first output of prev.
func spend(prev *wire.MsgTx, witness wire.TxWitness, values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prev.TxHash(), Index: 0},
		Witness:          witness,
	})
	for _, value := range values {
		tx.AddTxOut(&wire.TxOut{Value: value, PkScript: p2trStub})
	}

	return tx
}

// tapscriptWitness wraps a leaf script into a script-path witness stack.
func tapscriptWitness(script []byte) wire.TxWitness {
	return wire.TxWitness{script, make([]byte, 33)}
}

// rawEnvelope assembles an envelope script byte by byte; tag pushes stay
// plain data pushes even where a canonical builder would emit pushnums.
func rawEnvelope(pairs ...[]byte) []byte {
	script := []byte{txscript.OP_0, txscript.OP_IF, 3, 'o', 'r', 'd'}
	for _, push := range pairs {
		script = append(script, byte(len(push)))
		script = append(script, push...)
	}

	return append(script, txscript.OP_ENDIF)
}

func TestSimpleInscription(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script := rawEnvelope(
		[]byte{0x01}, []byte("text/plain;charset=utf-8"),
		[]byte{}, []byte("FOO"),
	)
	reveal := spend(funding, tapscriptWitness(script), 10_000)
	mock.MineBlock(reveal)

	require.NoError(t, idx.Update())

	entry, err := idx.InscriptionByNumber(0)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.EqualValues(t, 0, entry.Number)
	require.EqualValues(t, 0, entry.Sequence)
	require.EqualValues(t, "text/plain;charset=utf-8", entry.ContentType)
	require.EqualValues(t, 3, entry.BodyLength)
	require.EqualValues(t, chainhash.HashH([]byte("FOO")), entry.BodyHash)
	require.False(t, entry.Cursed())

	revealTxid := reveal.TxHash()
	require.EqualValues(t, inscriptions.ID{TxID: &revealTxid, Index: 0}, entry.ID)

	satPoint, err := idx.SatPointOf(entry.ID)
	require.NoError(t, err)
	require.NotNil(t, satPoint)
	require.EqualValues(t, wire.OutPoint{Hash: revealTxid, Index: 0}, satPoint.OutPoint)
	require.Zero(t, satPoint.Offset)

	// the inscribed sat is the first satoshi of block 1's subsidy.
	require.NotNil(t, entry.Sat)
	require.EqualValues(t, 5_000_000_000, entry.Sat.N())
	require.True(t, ord.CharmUncommon.IsSet(entry.Charms))

	// sat ranges of the reveal output cover exactly its value.
	ranges, err := idx.SatRangesOf(satPoint.OutPoint)
	require.NoError(t, err)
	var total uint64
	for _, r := range ranges {
		total += r.Size()
	}
	require.EqualValues(t, 10_000, total)

	blessed, err := idx.Statistic(index.StatBlessedInscriptions)
	require.NoError(t, err)
	require.EqualValues(t, 1, blessed)
}

func TestPointerRedirection(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script := rawEnvelope(
		[]byte{0x01}, []byte("text/plain;charset=utf-8"),
		[]byte{0x02}, []byte{0x40, 0x42, 0x0f}, // pointer = 1_000_000 little-endian.
		[]byte{}, []byte("BAR"),
	)
	reveal := spend(funding, tapscriptWitness(script), 10_000, 2_000_000, 10_000)
	mock.MineBlock(reveal)

	require.NoError(t, idx.Update())

	revealTxid := reveal.TxHash()
	satPoint, err := idx.SatPointOf(inscriptions.ID{TxID: &revealTxid, Index: 0})
	require.NoError(t, err)
	require.NotNil(t, satPoint)
	require.EqualValues(t, wire.OutPoint{Hash: revealTxid, Index: 1}, satPoint.OutPoint)
	require.EqualValues(t, 990_000, satPoint.Offset)
}

func TestCursedDuplicateField(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script := rawEnvelope(
		[]byte{0x01}, []byte("text/plain"),
		[]byte{0x01}, []byte("image/png"),
	)
	reveal := spend(funding, tapscriptWitness(script), 10_000)
	mock.MineBlock(reveal)

	require.NoError(t, idx.Update())

	entry, err := idx.InscriptionByNumber(-1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, entry.Cursed())
	require.EqualValues(t, 0, entry.Sequence)
	require.EqualValues(t, "text/plain", entry.ContentType)
	require.True(t, ord.CharmCursed.IsSet(entry.Charms))

	cursed, err := idx.Statistic(index.StatCursedInscriptions)
	require.NoError(t, err)
	require.EqualValues(t, 1, cursed)
}

// etchScript serializes a runestone etching R with the given premine.
func etchScript(t *testing.T, name string, premine int64, symbol rune) ([]byte, *runes.Rune) {
	t.Helper()

	rune_, err := runes.NewRuneFromString(name)
	require.NoError(t, err)

	divisibility := byte(0)
	spacers := uint32(0)
	runestone := &runes.Runestone{
		Etching: &runes.Etching{
			Divisibility: &divisibility,
			Premine:      big.NewInt(premine),
			Rune:         rune_,
			Spacers:      &spacers,
			Symbol:       &symbol,
		},
	}

	script, err := runestone.IntoScript()
	require.NoError(t, err)

	return script, rune_
}

func TestRuneEtchingWithPremine(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script, rune_ := etchScript(t, "ZZZZZZZZZZZZZZZZ", 1000, '¢')

	etch := spend(funding, nil, 9_000)
	etch.AddTxOut(&wire.TxOut{Value: 0, PkScript: script})
	height := mock.Height() + 1
	mock.MineBlock(etch)

	require.NoError(t, idx.Update())

	entry, err := idx.RuneByName(rune_)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.EqualValues(t, runes.RuneID{Block: uint64(height), TxID: 1}, entry.RuneID)
	require.EqualValues(t, big.NewInt(1000), entry.Premine)
	require.Zero(t, entry.Mints.Sign())
	require.Zero(t, entry.Burned.Sign())
	require.EqualValues(t, '¢', *entry.Symbol)

	balances, err := idx.RuneBalancesOf(wire.OutPoint{Hash: etch.TxHash(), Index: 0})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.EqualValues(t, entry.RuneID, balances[0].RuneID)
	require.EqualValues(t, big.NewInt(1000), balances[0].Amount)
}

func TestEdictBurnViaOpReturn(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script, rune_ := etchScript(t, "ZZZZZZZZZZZZZZZZ", 1000, '¢')
	etch := spend(funding, nil, 9_000)
	etch.AddTxOut(&wire.TxOut{Value: 0, PkScript: script})
	height := mock.Height() + 1
	mock.MineBlock(etch)

	runeID := runes.RuneID{Block: uint64(height), TxID: 1}
	transferStone := &runes.Runestone{
		Edicts: []runes.Edict{{RuneID: runeID, Amount: big.NewInt(400), Output: 1}},
	}
	transferScript, err := transferStone.IntoScript()
	require.NoError(t, err)

	transfer := spend(etch, nil, 1_000)
	transfer.AddTxOut(&wire.TxOut{Value: 0, PkScript: []byte{txscript.OP_RETURN}})
	transfer.AddTxOut(&wire.TxOut{Value: 1_000, PkScript: p2trStub})
	transfer.AddTxOut(&wire.TxOut{Value: 0, PkScript: transferScript})
	mock.MineBlock(transfer)

	require.NoError(t, idx.Update())

	entry, err := idx.RuneByName(rune_)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.EqualValues(t, big.NewInt(400), entry.Burned)

	balances, err := idx.RuneBalancesOf(wire.OutPoint{Hash: transfer.TxHash(), Index: 0})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.EqualValues(t, big.NewInt(600), balances[0].Amount)

	for _, vout := range []uint32{1, 2, 3} {
		other, err := idx.RuneBalancesOf(wire.OutPoint{Hash: transfer.TxHash(), Index: vout})
		require.NoError(t, err)
		require.Empty(t, other)
	}

	// conservation: live balances plus burned equal the premine.
	live := new(big.Int).Add(balances[0].Amount, entry.Burned)
	require.EqualValues(t, entry.Premine, live)
}

func TestReorgDepthOne(t *testing.T) {
	mock := blocksource.NewMock()
	idx := openIndex(t, testConfig(t), mock)

	funding := mock.MineBlock().Transactions[0]

	script := rawEnvelope(
		[]byte{0x01}, []byte("text/plain;charset=utf-8"),
		[]byte{}, []byte("FOO"),
	)
	reveal := spend(funding, tapscriptWitness(script), 10_000)
	replaced := mock.MineBlock(reveal)
	replacedHeight := mock.Height()

	require.NoError(t, idx.Update())

	entry, err := idx.InscriptionByNumber(0)
	require.NoError(t, err)
	require.NotNil(t, entry)

	hash, err := idx.BlockHashAt(replacedHeight)
	require.NoError(t, err)
	require.EqualValues(t, replaced.BlockHash(), *hash)

	// a competing block replaces the tip.
	mock.InvalidateTip(1)
	competing := mock.MineBlockWithSubsidy(4_999_999_000)

	require.NoError(t, idx.Update())

	entry, err = idx.InscriptionByNumber(0)
	require.NoError(t, err)
	require.Nil(t, entry)

	blessed, err := idx.Statistic(index.StatBlessedInscriptions)
	require.NoError(t, err)
	require.Zero(t, blessed)

	hash, err = idx.BlockHashAt(replacedHeight)
	require.NoError(t, err)
	require.EqualValues(t, competing.BlockHash(), *hash)

	tip, ok, err := idx.Height()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, replacedHeight, tip)
}

func TestReorgBeyondHorizon(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.ReorgHorizon = 2

	mock := blocksource.NewMock()
	idx := openIndex(t, cfg, mock)

	for i := 0; i < 5; i++ {
		mock.MineBlock()
	}
	require.NoError(t, idx.Update())

	mock.InvalidateTip(3)
	mock.MineBlockWithSubsidy(4_999_999_000)
	mock.MineBlockWithSubsidy(4_999_998_000)
	mock.MineBlockWithSubsidy(4_999_997_000)

	require.ErrorIs(t, idx.Update(), index.ErrUnrecoverableReorg)

	flagged, err := idx.Statistic(index.StatUnrecoverablyReorged)
	require.NoError(t, err)
	require.EqualValues(t, 1, flagged)
}

func TestDeterministicReindex(t *testing.T) {
	mock := blocksource.NewMock()

	funding := mock.MineBlock().Transactions[0]
	script := rawEnvelope(
		[]byte{0x01}, []byte("text/plain;charset=utf-8"),
		[]byte{}, []byte("FOO"),
	)
	reveal := spend(funding, tapscriptWitness(script), 10_000)
	mock.MineBlock(reveal)

	first := openIndex(t, testConfig(t), mock)
	require.NoError(t, first.Update())

	second := openIndex(t, testConfig(t), mock)
	require.NoError(t, second.Update())

	for _, idx := range []*index.Index{first, second} {
		entry, err := idx.InscriptionByNumber(0)
		require.NoError(t, err)
		require.NotNil(t, entry)
		require.EqualValues(t, 0, entry.Sequence)
	}

	one, err := first.InscriptionByNumber(0)
	require.NoError(t, err)
	other, err := second.InscriptionByNumber(0)
	require.NoError(t, err)
	require.EqualValues(t, one, other)
}
