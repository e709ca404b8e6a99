// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// NewUnspendableScript builds provably unspendable script (e.g. OP_RETURN) with optional data added after.
// INFO: Def: https://en.bitcoin.it/wiki/OP_RETURN.
func NewUnspendableScript(msg ...byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN)
	if len(msg) > 0 {
		scriptBuilder.AddData(msg)
	}

	return scriptBuilder.Script()
}

// MustUnspendableScript uses NewUnspendableScript, panics in case of error.
func MustUnspendableScript(msg ...byte) []byte {
	script, err := NewUnspendableScript(msg...)
	if err != nil {
		panic(err)
	}

	return script
}

// NewTapscriptWitness wraps a leaf script into the witness stack shape of a
// taproot script-path spend: the script followed by a control block stub.
func NewTapscriptWitness(leafScript []byte) wire.TxWitness {
	return wire.TxWitness{leafScript, make([]byte, 33)}
}

// NewTapScriptTreeFromRawScripts builds tapScript tree from provided raw leaf scripts.
func NewTapScriptTreeFromRawScripts(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errNoLeafScripts
	}

	var tapLeafs = make([]txscript.TapLeaf, len(leafScripts))
	for i, leafScript := range leafScripts {
		tapLeafs[i] = txscript.NewBaseTapLeaf(leafScript)
	}

	return txscript.AssembleTaprootScriptTree(tapLeafs...), nil
}

// MustTapScriptTreeFromRawScripts uses NewTapScriptTreeFromRawScripts, panics in case of error.
func MustTapScriptTreeFromRawScripts(leafScripts ...[]byte) *txscript.IndexedTapScriptTree {
	tree, err := NewTapScriptTreeFromRawScripts(leafScripts...)
	if err != nil {
		panic(err)
	}

	return tree
}
