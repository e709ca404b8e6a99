// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package index materializes the ordinals and runes protocols from raw
// blocks into the embedded store.
package index

import (
	"encoding/binary"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// SchemaVersion guards the on-disk layout; a mismatch forces a reindex.
const SchemaVersion uint64 = 1

// Logical tables of the index, by key prefix.
const (
	tableStatistics         store.Table = 0x01 // statistic id -> u64.
	tableHeightToBlockHash  store.Table = 0x02 // u32 -> block hash.
	tableOutpointToSatRange store.Table = 0x03 // outpoint -> sat ranges.
	tableOutpointToValue    store.Table = 0x04 // outpoint -> u64.
	tableOutpointToBalances store.Table = 0x05 // outpoint -> rune balances.
	tableScriptToOutpoint   store.Table = 0x06 // multimap scriptPubKey hash -> outpoint.
	tableTransactions       store.Table = 0x07 // txid -> raw transaction.
	tableSatToInscription   store.Table = 0x08 // multimap u64 -> inscription id.
	tableSatpointToID       store.Table = 0x09 // multimap satpoint -> inscription id.
	tableIDToEntry          store.Table = 0x0a // inscription id -> entry.
	tableSequenceToID       store.Table = 0x0b // u64 -> inscription id.
	tableNumberToID         store.Table = 0x0c // i64 -> inscription id.
	tableParentToChild      store.Table = 0x0d // multimap inscription id -> inscription id.
	tableIDToSatpoint       store.Table = 0x0e // inscription id -> satpoint.
	tableRuneIDToEntry      store.Table = 0x0f // rune id -> rune entry.
	tableRuneToRuneID       store.Table = 0x10 // u128 -> rune id.
	tableOutpointToScript   store.Table = 0x11 // outpoint -> scriptPubKey.
)

// Statistics rows, by single-byte key.
const (
	statSchemaVersion byte = iota + 1
	statBlessedInscriptions
	statCursedInscriptions
	statLostSats
	statUnboundInscriptions
	statRunes
	statReservedRunes
	statUnrecoverablyReorged
	statIndexSats
	statIndexRunes
	statIndexTransactions
	statIndexAddresses
	statNextHeight
)

// unboundOutpoint anchors inscriptions that lost their satoshi while being
// indexed. The vout sentinel is observable through the query interfaces and
// must never change.
var unboundOutpoint = wire.OutPoint{Index: math.MaxUint32 - 1}

// nullOutpoint anchors inscriptions whose satoshi was spent to fees and not
// claimed by the coinbase outputs.
var nullOutpoint = wire.OutPoint{Index: math.MaxUint32}

// SatPoint is the location of a satoshi: an outpoint plus the byte offset of
// the satoshi inside it.
type SatPoint struct {
	OutPoint wire.OutPoint
	Offset   uint64
}

// u32Key encodes an integer key in natural iteration order.
func u32Key(v uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, v)

	return key
}

// u64Key encodes an integer key in natural iteration order.
func u64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)

	return key
}

// i64Key encodes a signed key so negative values sort before positive ones.
func i64Key(v int64) []byte {
	return u64Key(uint64(v) + (1 << 63))
}

// outpointKey encodes an outpoint as a 36-byte key.
func outpointKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, 36)
	copy(key, outpoint.Hash[:])
	binary.BigEndian.PutUint32(key[32:], outpoint.Index)

	return key
}

// parseOutpointKey decodes a 36-byte outpoint key.
func parseOutpointKey(key []byte) wire.OutPoint {
	var outpoint wire.OutPoint
	copy(outpoint.Hash[:], key[:32])
	outpoint.Index = binary.BigEndian.Uint32(key[32:])

	return outpoint
}

// satpointKey encodes a satpoint as a 44-byte key; offsets iterate in order
// within one outpoint prefix.
func satpointKey(satpoint SatPoint) []byte {
	key := make([]byte, 44)
	copy(key, outpointKey(satpoint.OutPoint))
	binary.BigEndian.PutUint64(key[36:], satpoint.Offset)

	return key
}

// parseSatpointKey decodes a 44-byte satpoint key.
func parseSatpointKey(key []byte) SatPoint {
	return SatPoint{
		OutPoint: parseOutpointKey(key[:36]),
		Offset:   binary.BigEndian.Uint64(key[36:]),
	}
}

// idKey encodes an inscription id as a 36-byte key ordered by reveal index.
func idKey(id inscriptions.ID) []byte {
	key := make([]byte, 36)
	copy(key, id.TxID[:])
	binary.BigEndian.PutUint32(key[32:], id.Index)

	return key
}

// parseIDKey decodes a 36-byte inscription id key.
func parseIDKey(key []byte) inscriptions.ID {
	txid, _ := chainhash.NewHash(key[:32])

	return inscriptions.ID{TxID: txid, Index: binary.BigEndian.Uint32(key[32:])}
}
