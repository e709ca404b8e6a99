// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
)

// errCorruptEntry defines that a stored row failed to decode.
var errCorruptEntry = errors.New("corrupt index entry")

// InscriptionEntry is the write-once record of an inscription. Only the
// satpoint tables change after creation.
type InscriptionEntry struct {
	BodyHash        chainhash.Hash
	BodyLength      uint64
	Charms          uint16
	ContentEncoding string
	ContentType     string
	Delegate        *inscriptions.ID
	Fee             uint64
	Height          uint32
	ID              inscriptions.ID
	Metaprotocol    string
	Number          int64
	Parents         []inscriptions.ID
	Sat             *sat.Sat
	Sequence        uint64
	Timestamp       uint32
}

// Cursed reports whether the inscription carries a negative number.
func (e *InscriptionEntry) Cursed() bool {
	return e.Number < 0
}

// Bytes serializes the entry.
func (e *InscriptionEntry) Bytes() []byte {
	w := newWriter()
	w.u16(e.Charms)
	w.u64(e.Fee)
	w.u32(e.Height)
	w.raw(idKey(e.ID))
	w.u64(uint64(e.Number) + (1 << 63))
	w.u64(e.Sequence)
	w.u32(e.Timestamp)
	w.raw(e.BodyHash[:])
	w.u64(e.BodyLength)
	w.str(e.ContentType)
	w.str(e.ContentEncoding)
	w.str(e.Metaprotocol)

	if e.Sat != nil {
		w.u8(1)
		w.u64(e.Sat.N())
	} else {
		w.u8(0)
	}

	if e.Delegate != nil {
		w.u8(1)
		w.raw(idKey(*e.Delegate))
	} else {
		w.u8(0)
	}

	w.u32(uint32(len(e.Parents)))
	for _, parent := range e.Parents {
		w.raw(idKey(parent))
	}

	return w.bytes()
}

// ParseInscriptionEntry deserializes an entry row.
func ParseInscriptionEntry(value []byte) (*InscriptionEntry, error) {
	r := newReader(value)
	e := new(InscriptionEntry)

	e.Charms = r.u16()
	e.Fee = r.u64()
	e.Height = r.u32()
	e.ID = parseIDKey(r.raw(36))
	e.Number = int64(r.u64() - (1 << 63))
	e.Sequence = r.u64()
	e.Timestamp = r.u32()
	copy(e.BodyHash[:], r.raw(32))
	e.BodyLength = r.u64()
	e.ContentType = r.str()
	e.ContentEncoding = r.str()
	e.Metaprotocol = r.str()

	if r.u8() == 1 {
		s := sat.Sat(r.u64())
		e.Sat = &s
	}

	if r.u8() == 1 {
		delegate := parseIDKey(r.raw(36))
		e.Delegate = &delegate
	}

	parents := r.u32()
	for i := uint32(0); i < parents && r.err == nil; i++ {
		e.Parents = append(e.Parents, parseIDKey(r.raw(36)))
	}

	if r.err != nil {
		return nil, r.err
	}

	return e, nil
}

// RuneEntry is the state of an etched rune.
type RuneEntry struct {
	RuneID       runes.RuneID
	Burned       *big.Int
	Divisibility byte
	Etching      chainhash.Hash
	Mints        *big.Int
	Number       uint64
	Premine      *big.Int
	Rune         *runes.Rune
	Spacers      uint32
	Symbol       *rune
	Terms        *runes.Terms
	Timestamp    uint32
	Turbo        bool
}

// SpacedRune returns the display name with spacers applied.
func (e *RuneEntry) SpacedRune() string {
	return e.Rune.StringWithSeparator(e.Spacers)
}

// mintable errors, observable through mint failures only as absent mints.
var (
	errMintCap    = errors.New("mint cap reached")
	errMintStart  = errors.New("mint has not started")
	errMintEnd    = errors.New("mint has ended")
	errUnmintable = errors.New("rune has no mint terms")
)

// Mintable returns the amount one mint yields at height, or why minting is
// closed.
func (e *RuneEntry) Mintable(height uint32) (*big.Int, error) {
	if e.Terms == nil {
		return nil, errUnmintable
	}

	if e.Terms.HeightStart != nil && uint64(height) < *e.Terms.HeightStart {
		return nil, errMintStart
	}
	if e.Terms.HeightEnd != nil && uint64(height) >= *e.Terms.HeightEnd {
		return nil, errMintEnd
	}
	if e.Terms.OffsetStart != nil && uint64(height) < e.RuneID.Block+*e.Terms.OffsetStart {
		return nil, errMintStart
	}
	if e.Terms.OffsetEnd != nil && uint64(height) >= e.RuneID.Block+*e.Terms.OffsetEnd {
		return nil, errMintEnd
	}

	cap_ := big.NewInt(0)
	if e.Terms.Cap != nil {
		cap_ = e.Terms.Cap
	}

	if e.Mints.Cmp(cap_) >= 0 {
		return nil, errMintCap
	}

	amount := big.NewInt(0)
	if e.Terms.Amount != nil {
		amount = new(big.Int).Set(e.Terms.Amount)
	}

	return amount, nil
}

// Bytes serializes the entry.
func (e *RuneEntry) Bytes() []byte {
	w := newWriter()
	w.raw(e.RuneID.Bytes())
	w.u128(e.Burned)
	w.u8(e.Divisibility)
	w.raw(e.Etching[:])
	w.u128(e.Mints)
	w.u64(e.Number)
	w.u128(e.Premine)
	w.u128(e.Rune.Value())
	w.u32(e.Spacers)
	w.u32(e.Timestamp)
	w.bool(e.Turbo)

	if e.Symbol != nil {
		w.u8(1)
		w.u32(uint32(*e.Symbol))
	} else {
		w.u8(0)
	}

	if e.Terms != nil {
		w.u8(1)
		w.optU128(e.Terms.Amount)
		w.optU128(e.Terms.Cap)
		w.optU64(e.Terms.HeightStart)
		w.optU64(e.Terms.HeightEnd)
		w.optU64(e.Terms.OffsetStart)
		w.optU64(e.Terms.OffsetEnd)
	} else {
		w.u8(0)
	}

	return w.bytes()
}

// ParseRuneEntry deserializes a rune entry row.
func ParseRuneEntry(value []byte) (*RuneEntry, error) {
	r := newReader(value)
	e := new(RuneEntry)

	runeID, err := runes.NewRuneIDFromBytes(r.raw(runes.RuneIDLen))
	if err != nil && r.err == nil {
		return nil, err
	}
	e.RuneID = runeID
	e.Burned = r.u128()
	e.Divisibility = r.u8()
	copy(e.Etching[:], r.raw(32))
	e.Mints = r.u128()
	e.Number = r.u64()
	e.Premine = r.u128()
	e.Rune, _ = runes.NewRuneFromBig(r.u128())
	e.Spacers = r.u32()
	e.Timestamp = r.u32()
	e.Turbo = r.bool()

	if r.u8() == 1 {
		symbol := rune(r.u32())
		e.Symbol = &symbol
	}

	if r.u8() == 1 {
		e.Terms = &runes.Terms{
			Amount:      r.optU128(),
			Cap:         r.optU128(),
			HeightStart: r.optU64(),
			HeightEnd:   r.optU64(),
			OffsetStart: r.optU64(),
			OffsetEnd:   r.optU64(),
		}
	}

	if r.err != nil {
		return nil, r.err
	}

	return e, nil
}

// RuneBalance is one rune amount held by an outpoint.
type RuneBalance struct {
	RuneID runes.RuneID
	Amount *big.Int
}

// serializeBalances encodes outpoint rune balances sorted by rune id.
func serializeBalances(balances []RuneBalance) []byte {
	w := newWriter()
	w.u32(uint32(len(balances)))
	for _, balance := range balances {
		w.raw(balance.RuneID.Bytes())
		w.u128(balance.Amount)
	}

	return w.bytes()
}

// parseBalances decodes outpoint rune balances.
func parseBalances(value []byte) ([]RuneBalance, error) {
	r := newReader(value)
	count := r.u32()

	balances := make([]RuneBalance, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		runeID, err := runes.NewRuneIDFromBytes(r.raw(runes.RuneIDLen))
		if err != nil && r.err == nil {
			return nil, err
		}

		balances = append(balances, RuneBalance{RuneID: runeID, Amount: r.u128()})
	}

	if r.err != nil {
		return nil, r.err
	}

	return balances, nil
}

// SatRange is a half-open range of satoshis.
type SatRange struct {
	Start uint64
	End   uint64
}

// Size returns the number of satoshis in the range.
func (r SatRange) Size() uint64 {
	return r.End - r.Start
}

// serializeSatRanges encodes the ranges held by one outpoint.
func serializeSatRanges(ranges []SatRange) []byte {
	buf := make([]byte, 0, len(ranges)*16)
	for _, r := range ranges {
		buf = binary.BigEndian.AppendUint64(buf, r.Start)
		buf = binary.BigEndian.AppendUint64(buf, r.End)
	}

	return buf
}

// parseSatRanges decodes the ranges held by one outpoint.
func parseSatRanges(value []byte) ([]SatRange, error) {
	if len(value)%16 != 0 {
		return nil, errCorruptEntry
	}

	ranges := make([]SatRange, 0, len(value)/16)
	for i := 0; i < len(value); i += 16 {
		ranges = append(ranges, SatRange{
			Start: binary.BigEndian.Uint64(value[i : i+8]),
			End:   binary.BigEndian.Uint64(value[i+8 : i+16]),
		})
	}

	return ranges, nil
}
