// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
)

// Etching defines values to create new rune.
type Etching struct {
	Divisibility *byte
	Premine      *big.Int
	Rune         *Rune
	Spacers      *uint32
	Symbol       *rune
	Terms        *Terms
	Turbo        bool
}

// Terms defines additional Etching parameters.
type Terms struct {
	Amount      *big.Int
	Cap         *big.Int
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Supply returns the total number of rune units the etching can ever release,
// or false if the total overflows uint128.
func (e *Etching) Supply() (*big.Int, bool) {
	supply := big.NewInt(0)
	if e.Premine != nil {
		supply.Set(e.Premine)
	}

	if e.Terms != nil && e.Terms.Cap != nil && e.Terms.Amount != nil {
		supply.Add(supply, new(big.Int).Mul(e.Terms.Cap, e.Terms.Amount))
	}

	if supply.Cmp(maxUint128()) > 0 {
		return nil, false
	}

	return supply, true
}
