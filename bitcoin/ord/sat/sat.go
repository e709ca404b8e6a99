// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sat

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CoinValue defines the number of satoshis in one bitcoin.
	CoinValue uint64 = 100_000_000
	// SubsidyHalvingInterval defines the number of blocks between subsidy halvings.
	SubsidyHalvingInterval uint32 = 210_000
	// DiffChangeInterval defines the number of blocks between difficulty adjustments.
	DiffChangeInterval uint32 = 2016
	// CycleEpochs defines the number of halving epochs in one cycle,
	// i.e. until a halving coincides with a difficulty adjustment.
	CycleEpochs uint32 = 6

	// Supply defines the total number of satoshis that will ever exist.
	Supply uint64 = 2_099_999_997_690_000
)

// Last defines the last satoshi to be mined.
const Last = Sat(Supply - 1)

// ErrOutOfRange defines that a value does not map to a valid satoshi.
var ErrOutOfRange = errors.New("sat out of range")

// Sat defines a single satoshi by its ordinal number,
// counted from the first satoshi of the genesis block subsidy.
type Sat uint64

// NewSat validates n against the supply cap and returns it as Sat.
func NewSat(n uint64) (Sat, error) {
	if n >= Supply {
		return 0, ErrOutOfRange
	}

	return Sat(n), nil
}

// N returns the ordinal number of the satoshi.
func (s Sat) N() uint64 {
	return uint64(s)
}

// Epoch returns the halving epoch the satoshi was mined in.
func (s Sat) Epoch() Epoch {
	return EpochOfSat(s)
}

// EpochPosition returns the offset of the satoshi within its epoch.
func (s Sat) EpochPosition() uint64 {
	return s.N() - s.Epoch().StartingSat().N()
}

// Height returns the block height the satoshi was mined at.
func (s Sat) Height() Height {
	return s.Epoch().StartingHeight() +
		Height(s.EpochPosition()/s.Epoch().Subsidy())
}

// Cycle returns the cycle number of the satoshi.
func (s Sat) Cycle() uint32 {
	return uint32(s.Epoch()) / CycleEpochs
}

// Period returns the difficulty adjustment period of the satoshi.
func (s Sat) Period() uint32 {
	return s.Height().N() / DiffChangeInterval
}

// Third returns the offset of the satoshi within its block.
func (s Sat) Third() uint64 {
	return s.EpochPosition() % s.Epoch().Subsidy()
}

// Degree returns the degree notation of the satoshi.
func (s Sat) Degree() Degree {
	return NewDegree(s)
}

// Decimal returns the decimal notation of the satoshi.
func (s Sat) Decimal() Decimal {
	return Decimal{Height: s.Height(), Offset: s.Third()}
}

// Rarity returns the rarity of the satoshi.
func (s Sat) Rarity() Rarity {
	return RarityOfSat(s)
}

// Common reports whether the satoshi is common. Cheaper than Rarity.
func (s Sat) Common() bool {
	// block rewards for epochs 0 through 9 are all multiples of the epoch 9
	// reward, so any earlier sat not divisible by it is common.
	if s < Epoch(10).StartingSat() && s.N()%Epoch(9).Subsidy() != 0 {
		return true
	}

	return s.Third() != 0
}

// Coin reports whether the satoshi is the first of a whole bitcoin.
func (s Sat) Coin() bool {
	return s.N()%CoinValue == 0
}

// Nineball reports whether the satoshi was mined in block 9.
func (s Sat) Nineball() bool {
	return s.N() >= 50*CoinValue*9 && s.N() < 50*CoinValue*10
}

// Palindrome reports whether the decimal digits of the satoshi read the same backwards.
func (s Sat) Palindrome() bool {
	var n, reversed = s.N(), uint64(0)
	for n > 0 {
		reversed = reversed*10 + n%10
		n /= 10
	}

	return s.N() == reversed
}

// Name returns the modified base-26 name of the satoshi.
// The last satoshi is named "a", earlier satoshis have longer names.
func (s Sat) Name() string {
	var (
		x    = Supply - s.N()
		name []byte
	)
	for x > 0 {
		name = append(name, 'a'+byte((x-1)%26))
		x = (x - 1) / 26
	}

	for i, j := 0, len(name)-1; i < j; i, j = i+1, j-1 {
		name[i], name[j] = name[j], name[i]
	}

	return string(name)
}

// Percentile returns the position of the satoshi in the total supply as a percentage.
func (s Sat) Percentile() string {
	return fmt.Sprintf("%v%%", float64(s.N())/float64(Last.N())*100)
}

// String returns the ordinal number as a decimal string.
func (s Sat) String() string {
	return fmt.Sprintf("%d", s.N())
}

// FromName parses a satoshi from its base-26 name.
func FromName(name string) (Sat, error) {
	var x uint64
	for _, c := range name {
		if c < 'a' || c > 'z' {
			return 0, fmt.Errorf("invalid character in sat name: %q", c)
		}

		x = x*26 + uint64(c) - 'a' + 1
		if x > Supply {
			return 0, ErrOutOfRange
		}
	}
	if x == 0 {
		return 0, errors.New("empty sat name")
	}

	return Sat(Supply - x), nil
}

// FromString parses a satoshi from any of its representations:
// degree, name, decimal notation or the raw ordinal number.
func FromString(s string) (Sat, error) {
	switch {
	case s == "":
		return 0, errors.New("empty sat")
	case strings.ContainsRune(s, DegreeSymbol):
		return FromDegree(s)
	case s[0] >= 'a' && s[0] <= 'z':
		return FromName(s)
	case strings.ContainsRune(s, '.'):
		return FromDecimal(s)
	default:
		var n uint64
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return 0, err
		}

		return NewSat(n)
	}
}
