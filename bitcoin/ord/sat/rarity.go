// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sat

// Rarity defines the rarity of a satoshi according to ordinal theory.
type Rarity byte

const (
	// RarityCommon defines any satoshi that is not the first of its block.
	RarityCommon Rarity = iota
	// RarityUncommon defines the first satoshi of a block.
	RarityUncommon
	// RarityRare defines the first satoshi of a difficulty adjustment period.
	RarityRare
	// RarityEpic defines the first satoshi of a halving epoch.
	RarityEpic
	// RarityLegendary defines the first satoshi of a cycle.
	RarityLegendary
	// RarityMythic defines the first satoshi of the genesis block.
	RarityMythic
)

// RarityOfSat returns the Rarity of a satoshi derived from its degree.
func RarityOfSat(s Sat) Rarity {
	degree := s.Degree()
	switch {
	case degree.Third != 0:
		return RarityCommon
	case degree.Minute == 0 && degree.Second == 0 && degree.Hour == 0:
		return RarityMythic
	case degree.Minute == 0 && degree.Second == 0:
		return RarityLegendary
	case degree.Minute == 0:
		return RarityEpic
	case degree.Second == 0:
		return RarityRare
	default:
		return RarityUncommon
	}
}

// String returns the lowercase name of the rarity.
func (r Rarity) String() string {
	switch r {
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	case RarityMythic:
		return "mythic"
	default:
		return "common"
	}
}
