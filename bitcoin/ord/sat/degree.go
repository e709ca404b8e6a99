// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sat

import (
	"fmt"
	"strconv"
	"strings"
)

// Degree notation symbols.
const (
	DegreeSymbol = '°'
	MinuteSymbol = '′'
	SecondSymbol = '″'
	ThirdSymbol  = '‴'
)

// Degree defines the degree notation of a satoshi:
// hour is the cycle, minute the offset within the halving epoch,
// second the offset within the difficulty adjustment period and
// third the offset within the block.
type Degree struct {
	Hour   uint32
	Minute uint32
	Second uint32
	Third  uint64
}

// NewDegree returns the Degree of a satoshi.
func NewDegree(s Sat) Degree {
	return Degree{
		Hour:   s.Cycle(),
		Minute: s.Height().EpochOffset(),
		Second: s.Height().PeriodOffset(),
		Third:  s.Third(),
	}
}

// String returns the degree in "H°M′S″T‴" form.
func (d Degree) String() string {
	return fmt.Sprintf("%d%c%d%c%d%c%d%c",
		d.Hour, DegreeSymbol, d.Minute, MinuteSymbol, d.Second, SecondSymbol, d.Third, ThirdSymbol)
}

// FromDegree parses a satoshi from degree notation.
func FromDegree(degree string) (Sat, error) {
	hourStr, rest, ok := strings.Cut(degree, string(DegreeSymbol))
	if !ok {
		return 0, fmt.Errorf("missing degree symbol in %q", degree)
	}

	hour, err := strconv.ParseUint(hourStr, 10, 32)
	if err != nil {
		return 0, err
	}

	minuteStr, rest, ok := strings.Cut(rest, string(MinuteSymbol))
	if !ok {
		return 0, fmt.Errorf("missing minute symbol in %q", degree)
	}

	minute, err := strconv.ParseUint(minuteStr, 10, 32)
	if err != nil {
		return 0, err
	}
	if uint32(minute) >= SubsidyHalvingInterval {
		return 0, fmt.Errorf("invalid epoch offset %d", minute)
	}

	secondStr, rest, ok := strings.Cut(rest, string(SecondSymbol))
	if !ok {
		return 0, fmt.Errorf("missing second symbol in %q", degree)
	}

	second, err := strconv.ParseUint(secondStr, 10, 32)
	if err != nil {
		return 0, err
	}
	if uint32(second) >= DiffChangeInterval {
		return 0, fmt.Errorf("invalid period offset %d", second)
	}

	var third uint64
	if thirdStr, tail, ok := strings.Cut(rest, string(ThirdSymbol)); ok {
		if tail != "" {
			return 0, fmt.Errorf("trailing characters in %q", degree)
		}

		third, err = strconv.ParseUint(thirdStr, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if rest != "" {
		return 0, fmt.Errorf("trailing characters in %q", degree)
	}

	cycleStartEpoch := uint32(hour) * CycleEpochs

	// For a valid degree the relationship between the epoch offset and the
	// period offset advances by this increment on every halving.
	halvingIncrement := SubsidyHalvingInterval % DiffChangeInterval

	relationship := uint32(second) + SubsidyHalvingInterval*CycleEpochs - uint32(minute)
	if relationship%halvingIncrement != 0 {
		return 0, fmt.Errorf("relationship between epoch offset and period offset violated in %q", degree)
	}

	epochsSinceCycleStart := relationship % DiffChangeInterval / halvingIncrement

	height := Height((cycleStartEpoch+epochsSinceCycleStart)*SubsidyHalvingInterval + uint32(minute))
	if third >= height.Subsidy() {
		return 0, fmt.Errorf("invalid block offset %d at height %d", third, height)
	}

	return height.StartingSat() + Sat(third), nil
}
