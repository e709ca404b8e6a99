// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"math/big"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
)

// UTXO describes unspent transaction output data as exposed to the wallet:
// the native value plus any runes and inscriptions located on it.
type UTXO struct {
	TxHash       string
	Index        uint32   // output index in transaction outputs.
	Amount       *big.Int // in Satoshi.
	Script       []byte   // ScriptPubKey.
	Address      string   // output recipient address.
	Runes        []RuneUTXO
	Inscriptions []*inscriptions.ID
}

// RuneUTXO describes linked to UTXO runes transaction.
type RuneUTXO struct {
	RuneID runes.RuneID
	Amount *big.Int // in rune units.
}
