// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RuneIDLen defines the length of the binary RuneID representation.
const RuneIDLen = 12

// RuneID defined the id of the rune: the block and transaction index of its etching.
type RuneID struct {
	Block uint64
	TxID  uint32
}

// NewRuneIDFromString returns RuneID parsed from string.
func NewRuneIDFromString(s string) (RuneID, error) {
	data := strings.Split(s, ":")
	if len(data) != 2 {
		return RuneID{}, fmt.Errorf("invalid rune id format: %s", s)
	}

	block, err := strconv.ParseUint(data[0], 10, 64)
	if err != nil {
		return RuneID{}, err
	}

	txID, err := strconv.ParseUint(data[1], 10, 32)
	if err != nil {
		return RuneID{}, err
	}

	return RuneID{Block: block, TxID: uint32(txID)}, nil
}

// NewRuneIDFromBytes returns RuneID decoded from its binary representation.
func NewRuneIDFromBytes(data []byte) (RuneID, error) {
	if len(data) != RuneIDLen {
		return RuneID{}, fmt.Errorf("invalid rune id length: %d", len(data))
	}

	return RuneID{
		Block: binary.BigEndian.Uint64(data[:8]),
		TxID:  binary.BigEndian.Uint32(data[8:]),
	}, nil
}

// Next produces next RuneID from delta encoding.
func (id *RuneID) Next(delta RuneID) RuneID {
	if delta.Block == 0 {
		return RuneID{Block: id.Block, TxID: id.TxID + delta.TxID}
	}

	return RuneID{Block: id.Block + delta.Block, TxID: delta.TxID}
}

// Set is a copying setter, sets runeID values to id.
func (id *RuneID) Set(runeID RuneID) {
	id.Block = runeID.Block
	id.TxID = runeID.TxID
}

// Cmp compares two rune ids by etching order.
func (id RuneID) Cmp(other RuneID) int {
	switch {
	case id.Block < other.Block:
		return -1
	case id.Block > other.Block:
		return 1
	case id.TxID < other.TxID:
		return -1
	case id.TxID > other.TxID:
		return 1
	default:
		return 0
	}
}

// String returns RuneID as string.
func (id RuneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.TxID)
}

// Bytes returns RuneID as big-endian bytes, ordered the same as etching order.
func (id RuneID) Bytes() []byte {
	data := make([]byte, RuneIDLen)
	binary.BigEndian.PutUint64(data[:8], id.Block)
	binary.BigEndian.PutUint32(data[8:], id.TxID)

	return data
}

// ToIntSeq returns RuneID as integer sequence.
func (id *RuneID) ToIntSeq() []*big.Int {
	return []*big.Int{new(big.Int).SetUint64(id.Block), new(big.Int).SetUint64(uint64(id.TxID))}
}
