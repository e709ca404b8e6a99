// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"math/big"
	"strings"

	"github.com/BoostyLabs/ordindex/internal/numbers"
)

// DefaultSpacer defines default spacer for Rune name.
const DefaultSpacer = '•'

// MaxSpacers defines max value for spacers.
const MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111

// unlockedSteps defines how many name lengths are locked at protocol start.
const unlockedSteps = 12

// base26 defines 26 as *big.Int.
var base26 = big.NewInt(26)

// FirstReservedRuneNameInt defines FirstReservedRuneName as number.
var FirstReservedRuneNameInt, _ = new(big.Int).SetString("6402364363415443603228541259936211926", 10)

// FirstReservedRuneName defines first reserved rune name AAAAAAAAAAAAAAAAAAAAAAAAAAA.
var FirstReservedRuneName = RuneReserve(RuneID{0, 0})

// nameLengthSteps holds the smallest rune value of each name length:
// nameLengthSteps[n] is the value of "A"*(n+1).
var nameLengthSteps = func() [unlockedSteps + 1]*big.Int {
	var steps [unlockedSteps + 1]*big.Int
	steps[0] = big.NewInt(0)
	for i := 1; i <= unlockedSteps; i++ {
		// value("A"*(n+1)) = (value("A"*n) + 1) * 26.
		steps[i] = new(big.Int).Mul(new(big.Int).Add(steps[i-1], numbers.OneBigInt), base26)
	}

	return steps
}()

// maxUint128 returns the maximum uint128 value.
func maxUint128() *big.Int {
	return numbers.MaxUInt128Value
}

// Rune defines rune names and encodes as modified base-26 integers.
type Rune struct {
	value *big.Int
}

// NewRuneFromString creates new Rune from string name.
// NOTE: Valid symbols are A-Z only.
func NewRuneFromString(runeStr string) (*Rune, error) {
	var value = big.NewInt(0)
	for i, c := range runeStr {
		if i > 0 {
			value.Add(value, numbers.OneBigInt)
		}
		value = value.Mul(value, base26)
		if c < 'A' || c > 'Z' {
			return nil, errors.New("invalid symbol in the rune")
		}
		value = value.Add(value, big.NewInt(int64(c)-'A'))
	}

	if numbers.IsGreater(value, numbers.MaxUInt128Value) {
		return nil, errors.New("value overflows uint128")
	}

	return &Rune{value: value}, nil
}

// NewRuneFromStringWithSpacer creates new Rune from string name with spacers scanned.
//
//	NOTE:
//	- Instead of empty spacer the default one will be used.
//	- If many spacers were provided, the first one will be used.
func NewRuneFromStringWithSpacer(runeStr string, spacer ...rune) (*Rune, uint32, error) {
	var s = DefaultSpacer
	if len(spacer) > 0 {
		s = spacer[0]
	}

	var (
		spacers uint32
		idx     uint
	)
	for _, char := range runeStr {
		if char == s {
			spacers |= 1 << (idx - 1)
		} else {
			idx++
		}
	}

	runeStr = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r
		}

		return -1
	}, runeStr)
	rune_, err := NewRuneFromString(runeStr)
	if err != nil {
		return nil, 0, err
	}

	return rune_, spacers, nil
}

// NewRuneFromNumber creates new Rune from number, rejecting reserved names.
func NewRuneFromNumber(number *big.Int) (*Rune, error) {
	rune_, err := NewRuneFromBig(number)
	if err != nil {
		return nil, err
	}
	if rune_.IsReserved() {
		return nil, errors.New("reserved name")
	}

	return rune_, nil
}

// NewRuneFromBig creates new Rune from number, with bounds validation only.
func NewRuneFromBig(number *big.Int) (*Rune, error) {
	if numbers.IsGreater(number, numbers.MaxUInt128Value) || number.Sign() < 0 {
		return nil, errors.New("invalid number")
	}

	return &Rune{value: new(big.Int).Set(number)}, nil
}

// Value returns Rune name as number.
func (r *Rune) Value() *big.Int {
	return r.value
}

// IsReserved returns true if the name lies in the reserved space.
func (r *Rune) IsReserved() bool {
	return !numbers.IsLess(r.value, FirstReservedRuneNameInt)
}

// Commitment returns the name as little-endian bytes with trailing zeros
// omitted, as pushed into the tapscript that commits to an etching.
func (r *Rune) Commitment() []byte {
	bytes := r.value.Bytes()
	// big.Int bytes are big-endian; reverse in place over a copy.
	commitment := make([]byte, len(bytes))
	for i, b := range bytes {
		commitment[len(bytes)-1-i] = b
	}

	return commitment
}

// String returns Rune name as string.
func (r *Rune) String() string {
	var value = new(big.Int).Set(r.value)
	if numbers.IsEqual(value, numbers.MaxUInt128Value) {
		return "BCGDENLQRQWDSLRUGSNLBTMFIJAV"
	}

	value = value.Add(value, numbers.OneBigInt)
	var symbol string
	for value.Sign() > 0 {
		valueSubOne := new(big.Int).Sub(value, numbers.OneBigInt)
		idx := new(big.Int).Mod(valueSubOne, base26)

		symbol = string(rune('A'+idx.Int64())) + symbol

		value = valueSubOne.Div(valueSubOne, base26)
	}

	return symbol
}

// StringWithSeparator returns Rune name as string with provides spacer.
//
//	NOTE:
//	- Instead of empty spacer the default one will be used.
//	- If many spacers were provided, the first one will be used.
func (r *Rune) StringWithSeparator(spacers uint32, spacer ...rune) string {
	rune_ := r.String()

	var s = string(DefaultSpacer)
	if len(spacer) > 0 {
		s = string(spacer[0])
	}

	symbol := ""
	for idx, char := range rune_ {
		symbol += string(char)

		if idx < len(rune_)-1 && spacers&(1<<idx) != 0 {
			symbol += s
		}
	}

	return symbol
}

// RuneReserve returns allocated rune name in case it was omitted in etching.
func RuneReserve(runeID RuneID) *Rune {
	reservedName := new(big.Int).Add(FirstReservedRuneNameInt, new(big.Int).Or(
		new(big.Int).Lsh(new(big.Int).SetUint64(runeID.Block), 32),
		new(big.Int).SetUint64(uint64(runeID.TxID))))

	return &Rune{value: reservedName}
}

// MinimumAtHeight returns the smallest allowed rune name value at the height.
// Before activation only 13-character names are unlocked; one character
// unlocks every twelfth of a halving interval after activation, with the
// bound interpolated linearly inside each unlock period.
func MinimumAtHeight(firstRuneHeight uint32, height uint32) *Rune {
	offset := uint64(height) + 1

	start := uint64(firstRuneHeight)
	end := start + 210_000

	if offset < start {
		return &Rune{value: new(big.Int).Set(nameLengthSteps[unlockedSteps])}
	}

	if offset >= end {
		return &Rune{value: big.NewInt(0)}
	}

	unlockInterval := uint64(210_000 / 12)
	progress := offset - start

	length := uint64(unlockedSteps) - progress/unlockInterval

	stepEnd := nameLengthSteps[length-1]
	stepStart := nameLengthSteps[length]

	remainder := new(big.Int).SetUint64(progress % unlockInterval)

	interpolated := new(big.Int).Sub(stepStart, stepEnd)
	interpolated.Mul(interpolated, remainder)
	interpolated.Div(interpolated, new(big.Int).SetUint64(unlockInterval))

	return &Rune{value: new(big.Int).Sub(stepStart, interpolated)}
}
