// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// errNoLeafScripts defines that a tapscript tree was requested without leaves.
var errNoLeafScripts = errors.New("no leaf scripts provided")

// ExtractAddress renders the canonical address of a scriptPubKey, or an
// empty string for non-standard and unspendable scripts.
func ExtractAddress(script []byte, chainParams *chaincfg.Params) string {
	_, addresses, _, err := txscript.ExtractPkScriptAddrs(script, chainParams)
	if err != nil || len(addresses) != 1 {
		return ""
	}

	return addresses[0].EncodeAddress()
}

// NewTaprootAddressFromScripts generates taproot address with tree built from provided leaf scripts.
func NewTaprootAddressFromScripts(chainParams *chaincfg.Params, masterPrivateKey *btcec.PrivateKey, leafScripts ...[]byte) (*btcutil.AddressTaproot, error) {
	tapScriptTree, err := NewTapScriptTreeFromRawScripts(leafScripts...)
	if err != nil {
		return nil, err
	}

	tapScriptRootHash := tapScriptTree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(masterPrivateKey.PubKey(), tapScriptRootHash[:])

	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
}

// MustTaprootAddressFromScripts uses NewTaprootAddressFromScripts, panics in case of error.
func MustTaprootAddressFromScripts(chainParams *chaincfg.Params, masterPrivateKey *btcec.PrivateKey, leafScripts ...[]byte) *btcutil.AddressTaproot {
	address, err := NewTaprootAddressFromScripts(chainParams, masterPrivateKey, leafScripts...)
	if err != nil {
		panic(err)
	}

	return address
}
