// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package ord

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
)

// Chain defines the bitcoin network a deployment of the protocols runs on.
type Chain byte

const (
	// Mainnet defines the bitcoin main network.
	Mainnet Chain = iota
	// Testnet defines the bitcoin test network (testnet3).
	Testnet
	// Signet defines the bitcoin signet network.
	Signet
	// Regtest defines the bitcoin regression test network.
	Regtest
)

// NewChain parses a Chain from its name.
func NewChain(name string) (Chain, error) {
	switch name {
	case "mainnet", "bitcoin":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "signet":
		return Signet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network: %s", name)
	}
}

// String returns the network name.
func (c Chain) String() string {
	switch c {
	case Testnet:
		return "testnet"
	case Signet:
		return "signet"
	case Regtest:
		return "regtest"
	default:
		return "mainnet"
	}
}

// Params returns the chaincfg parameters of the network.
func (c Chain) Params() *chaincfg.Params {
	switch c {
	case Testnet:
		return &chaincfg.TestNet3Params
	case Signet:
		return &chaincfg.SigNetParams
	case Regtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// FirstInscriptionHeight returns the height of the first inscription on the network.
// Blocks below it are indexed without envelope scanning.
func (c Chain) FirstInscriptionHeight() uint32 {
	switch c {
	case Mainnet:
		return 767_430
	case Testnet:
		return 2_413_343
	case Signet:
		return 112_402
	default:
		return 0
	}
}

// FirstRuneHeight returns the rune protocol activation height on the network.
func (c Chain) FirstRuneHeight() uint32 {
	switch c {
	case Mainnet:
		return 4 * sat.SubsidyHalvingInterval
	case Testnet:
		return 12 * sat.SubsidyHalvingInterval
	default:
		return 0
	}
}

// JubileeHeight returns the height at which the pointer, pushnum and stutter
// curses stop applying and such inscriptions are blessed instead.
func (c Chain) JubileeHeight() uint32 {
	switch c {
	case Mainnet:
		return 824_544
	case Testnet:
		return 2_544_192
	case Signet:
		return 175_392
	default:
		return 110
	}
}
