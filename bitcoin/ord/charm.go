// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package ord

import (
	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
)

// Charm defines a notable property of an inscription, recorded as a bit
// in the entry's charm bitmask.
type Charm uint16

const (
	// CharmCoin marks an inscription on the first satoshi of a whole bitcoin.
	CharmCoin Charm = iota
	// CharmCursed marks an inscription with a negative inscription number.
	CharmCursed
	// CharmEpic marks an inscription on an epic satoshi.
	CharmEpic
	// CharmLegendary marks an inscription on a legendary satoshi.
	CharmLegendary
	// CharmLost marks an inscription whose satoshi went to fees and was not claimed.
	CharmLost
	// CharmNineball marks an inscription on a satoshi mined in block 9.
	CharmNineball
	// CharmRare marks an inscription on a rare satoshi.
	CharmRare
	// CharmReinscription marks an inscription on a previously inscribed satoshi.
	CharmReinscription
	// CharmUnbound marks an inscription without a satoshi.
	CharmUnbound
	// CharmUncommon marks an inscription on an uncommon satoshi.
	CharmUncommon
	// CharmVindicated marks an inscription that would have been cursed before the jubilee.
	CharmVindicated
	// CharmMythic marks an inscription on the mythic satoshi.
	CharmMythic
	// CharmBurned marks an inscription sent to an OP_RETURN output.
	CharmBurned
	// CharmPalindrome marks an inscription on a satoshi whose decimal digits are a palindrome.
	CharmPalindrome
)

// charmNames maps charms to display names ordered by bit position.
var charmNames = [...]string{
	"coin", "cursed", "epic", "legendary", "lost", "nineball", "rare",
	"reinscription", "unbound", "uncommon", "vindicated", "mythic", "burned",
	"palindrome",
}

// Set sets the charm bit in the mask.
func (c Charm) Set(charms *uint16) {
	*charms |= 1 << c
}

// IsSet returns true if the charm bit is set in the mask.
func (c Charm) IsSet(charms uint16) bool {
	return charms&(1<<c) != 0
}

// String returns the display name of the charm.
func (c Charm) String() string {
	if int(c) < len(charmNames) {
		return charmNames[c]
	}

	return "unknown"
}

// CharmsOfSat returns the charm mask a satoshi confers on its inscriptions.
func CharmsOfSat(s sat.Sat) uint16 {
	var charms uint16
	if s.Nineball() {
		CharmNineball.Set(&charms)
	}
	if s.Palindrome() {
		CharmPalindrome.Set(&charms)
	}
	if s.Coin() {
		CharmCoin.Set(&charms)
	}

	switch s.Rarity() {
	case sat.RarityUncommon:
		CharmUncommon.Set(&charms)
	case sat.RarityRare:
		CharmRare.Set(&charms)
	case sat.RarityEpic:
		CharmEpic.Set(&charms)
	case sat.RarityLegendary:
		CharmLegendary.Set(&charms)
	case sat.RarityMythic:
		CharmMythic.Set(&charms)
	}

	return charms
}
