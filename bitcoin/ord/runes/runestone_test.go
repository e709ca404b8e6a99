// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
)

// txWithScripts builds a transaction whose outputs carry the given scripts.
func txWithScripts(scripts ...[]byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for _, script := range scripts {
		tx.AddTxOut(&wire.TxOut{Value: 10_000, PkScript: script})
	}

	return tx
}

// p2trStub is a stand-in key-path output script.
var p2trStub = append([]byte{0x51, 0x20}, make([]byte, 32)...)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	require.NoError(t, err)

	return data
}

func TestDecipher(t *testing.T) {
	t.Run("no runestone output", func(t *testing.T) {
		require.Nil(t, runes.Decipher(txWithScripts(p2trStub)))
	})

	t.Run("edict only", func(t *testing.T) {
		artifact := runes.Decipher(txWithScripts(
			mustDecode(t, "6a5d09008fe69d0154d70e01"),
			p2trStub,
		))
		require.NotNil(t, artifact)
		require.NotNil(t, artifact.Runestone)
		require.Nil(t, artifact.Cenotaph)
		require.EqualValues(t, []runes.Edict{{
			RuneID: runes.RuneID{Block: 2585359, TxID: 84},
			Amount: big.NewInt(1879),
			Output: 1,
		}}, artifact.Runestone.Edicts)
	})

	t.Run("mint only", func(t *testing.T) {
		artifact := runes.Decipher(txWithScripts(
			mustDecode(t, "6a5d0814e5e49d0114cc01"),
			p2trStub,
		))
		require.NotNil(t, artifact)
		require.NotNil(t, artifact.Runestone)
		require.EqualValues(t, &runes.RuneID{Block: 2585189, TxID: 204}, artifact.Runestone.Mint)
	})

	t.Run("mint with pointer", func(t *testing.T) {
		artifact := runes.Decipher(txWithScripts(
			mustDecode(t, "6a5d0a14b0dd9d011482011601"),
			p2trStub,
			p2trStub,
		))
		require.NotNil(t, artifact)
		require.NotNil(t, artifact.Runestone)
		require.EqualValues(t, &runes.RuneID{Block: 2584240, TxID: 130}, artifact.Runestone.Mint)
		require.NotNil(t, artifact.Runestone.Pointer)
		require.EqualValues(t, 1, *artifact.Runestone.Pointer)
	})

	t.Run("etching only", func(t *testing.T) {
		artifact := runes.Decipher(txWithScripts(
			mustDecode(t, "6a5d15010a0201030004dedfd1e58fd617054d0680b19164"),
			p2trStub,
		))
		require.NotNil(t, artifact)
		require.NotNil(t, artifact.Runestone)

		etching := artifact.Runestone.Etching
		require.NotNil(t, etching)
		require.EqualValues(t, byte(10), *etching.Divisibility)
		require.EqualValues(t, big.NewInt(210000000), etching.Premine)
		require.EqualValues(t, big.NewInt(104114246938590), etching.Rune.Value())
		require.EqualValues(t, uint32(0), *etching.Spacers)
		require.EqualValues(t, 'M', *etching.Symbol)
		require.Nil(t, etching.Terms)
	})

	t.Run("runestone survives a malformed non-runestone output", func(t *testing.T) {
		artifact := runes.Decipher(txWithScripts(
			[]byte{0x4c}, // truncated OP_PUSHDATA1, not a runestone output.
			mustDecode(t, "6a5d0814e5e49d0114cc01"),
		))
		require.NotNil(t, artifact)
		require.NotNil(t, artifact.Runestone)
	})

	t.Run("cenotaphs", func(t *testing.T) {
		cenotaph := func(t *testing.T, flaw runes.Flaw, scripts ...[]byte) {
			t.Helper()
			artifact := runes.Decipher(txWithScripts(scripts...))
			require.NotNil(t, artifact)
			require.Nil(t, artifact.Runestone)
			require.NotNil(t, artifact.Cenotaph)
			require.EqualValues(t, flaw, artifact.Cenotaph.Flaw)
		}

		t.Run("non-push opcode in payload", func(t *testing.T) {
			cenotaph(t, runes.FlawOpcode, []byte{0x6a, 0x5d, 0x75 /* OP_DROP */}, p2trStub)
		})

		t.Run("truncated push in payload", func(t *testing.T) {
			cenotaph(t, runes.FlawInvalidScript, []byte{0x6a, 0x5d, 0x05, 0x00}, p2trStub)
		})

		t.Run("truncated varint", func(t *testing.T) {
			cenotaph(t, runes.FlawVarint, []byte{0x6a, 0x5d, 0x01, 0x80}, p2trStub)
		})

		t.Run("unrecognized even tag", func(t *testing.T) {
			// tag 126 is the explicit cenotaph tag.
			cenotaph(t, runes.FlawUnrecognizedEvenTag, []byte{0x6a, 0x5d, 0x02, 126, 0x00}, p2trStub)
		})

		t.Run("unrecognized flag", func(t *testing.T) {
			// flags = 1<<7 carries no known meaning.
			cenotaph(t, runes.FlawUnrecognizedFlag, []byte{0x6a, 0x5d, 0x03, 0x02, 0x80, 0x01}, p2trStub)
		})

		t.Run("trailing integers after edicts", func(t *testing.T) {
			cenotaph(t, runes.FlawTrailingIntegers, []byte{0x6a, 0x5d, 0x04, 0x00, 0x01, 0x01, 0x01}, p2trStub)
		})

		t.Run("edict output beyond transaction outputs", func(t *testing.T) {
			// output 5 with two transaction outputs.
			cenotaph(t, runes.FlawEdictOutput, []byte{0x6a, 0x5d, 0x05, 0x00, 0x01, 0x01, 0x01, 0x05}, p2trStub)
		})

		t.Run("tag without value", func(t *testing.T) {
			cenotaph(t, runes.FlawTruncatedField, []byte{0x6a, 0x5d, 0x01, 0x02}, p2trStub)
		})

		t.Run("oversized divisibility", func(t *testing.T) {
			// etching with divisibility 39.
			cenotaph(t, runes.FlawInvalidEtching, []byte{0x6a, 0x5d, 0x04, 0x02, 0x01, 0x01, 39}, p2trStub)
		})

		t.Run("supply overflow", func(t *testing.T) {
			runestone := &runes.Runestone{
				Etching: &runes.Etching{
					Premine: new(big.Int).Lsh(big.NewInt(1), 127),
					Terms: &runes.Terms{
						Cap:    big.NewInt(2),
						Amount: new(big.Int).Lsh(big.NewInt(1), 127),
					},
				},
			}
			script, err := runestone.IntoScript()
			require.NoError(t, err)

			cenotaph(t, runes.FlawSupplyOverflow, script, p2trStub)
		})
	})

	t.Run("round trip", func(t *testing.T) {
		divisibility := byte(2)
		spacers := uint32(0b101)
		symbol := '¢'
		pointer := uint32(1)
		capacity := big.NewInt(100)
		amount := big.NewInt(50)
		heightStart := uint64(850_000)
		rune_, err := runes.NewRuneFromString("UNCOMMONGOODS")
		require.NoError(t, err)

		runestone := &runes.Runestone{
			Edicts: []runes.Edict{
				{RuneID: runes.RuneID{Block: 840_000, TxID: 1}, Amount: big.NewInt(7), Output: 1},
				{RuneID: runes.RuneID{Block: 840_000, TxID: 5}, Amount: big.NewInt(9), Output: 0},
			},
			Etching: &runes.Etching{
				Divisibility: &divisibility,
				Premine:      big.NewInt(1000),
				Rune:         rune_,
				Spacers:      &spacers,
				Symbol:       &symbol,
				Terms: &runes.Terms{
					Amount:      amount,
					Cap:         capacity,
					HeightStart: &heightStart,
				},
				Turbo: true,
			},
			Mint:    &runes.RuneID{Block: 840_000, TxID: 3},
			Pointer: &pointer,
		}

		script, err := runestone.IntoScript()
		require.NoError(t, err)

		artifact := runes.Decipher(txWithScripts(script, p2trStub, p2trStub))
		require.NotNil(t, artifact)
		require.Nil(t, artifact.Cenotaph)
		require.EqualValues(t, runestone, artifact.Runestone)
	})
}
