// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/bitcoin/ord"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/numbers"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// commitmentConfirmations defines how old an etching commitment input must be.
const commitmentConfirmations uint32 = 6

// runeUpdater applies the rune protocol transaction by transaction within
// one block.
type runeUpdater struct {
	wtx    *store.WriteTxn
	chain  ord.Chain
	source blocksource.Source

	height    uint32
	timestamp uint32
	minimum   *runes.Rune

	// running totals of etched runes and reserved names, carried in from
	// the statistics and used for entry numbering.
	runeCount     uint64
	reservedCount uint64

	// burned amounts accumulated over the block, flushed by update.
	burned map[runes.RuneID]*big.Int
}

// newRuneUpdater prepares the per-block rune pass.
func newRuneUpdater(wtx *store.WriteTxn, chain ord.Chain, source blocksource.Source, height, timestamp uint32, counters *counters) *runeUpdater {
	return &runeUpdater{
		wtx:           wtx,
		chain:         chain,
		source:        source,
		height:        height,
		timestamp:     timestamp,
		minimum:       runes.MinimumAtHeight(chain.FirstRuneHeight(), height),
		runeCount:     counters.runes,
		reservedCount: counters.reservedRunes,
		burned:        make(map[runes.RuneID]*big.Int),
	}
}

// counters returns the running totals back to the orchestrator.
func (u *runeUpdater) counters() (runeCount, reservedCount uint64) {
	return u.runeCount, u.reservedCount
}

// indexRunes processes one transaction of the block.
func (u *runeUpdater) indexRunes(txIndex uint32, tx *wire.MsgTx, txid chainhash.Hash) error {
	artifact := runes.Decipher(tx)

	unallocated, err := u.unallocated(tx)
	if err != nil {
		return err
	}

	allocated := make([]map[runes.RuneID]*big.Int, len(tx.TxOut))
	for i := range allocated {
		allocated[i] = make(map[runes.RuneID]*big.Int)
	}

	cenotaph := artifact != nil && artifact.Cenotaph != nil

	if artifact != nil {
		if mintID := artifactMint(artifact); mintID != nil {
			amount, minted, err := u.mint(*mintID)
			if err != nil {
				return err
			}
			if minted {
				add(unallocated, *mintID, amount)
			}
		}

		etchedID, etchedRune, etched, err := u.etched(txIndex, tx, artifact)
		if err != nil {
			return err
		}

		if artifact.Runestone != nil {
			runestone := artifact.Runestone

			if etched && runestone.Etching.Premine != nil {
				add(unallocated, etchedID, runestone.Etching.Premine)
			}

			for _, edict := range runestone.Edicts {
				id := edict.RuneID

				// the zero id names the rune etched by this very transaction.
				if id.Block == 0 && id.TxID == 0 {
					if !etched {
						cenotaph = true
						break
					}
					id = etchedID
				}

				if known, err := u.runeExists(id); err != nil {
					return err
				} else if !known && !(etched && id == etchedID) {
					// moving a rune that was never etched poisons the transaction.
					cenotaph = true
					break
				}

				applyEdict(unallocated, allocated, tx, edict, id)
			}
		}

		if etched {
			if err = u.createRuneEntry(txid, artifact, runes.RuneID{Block: uint64(u.height), TxID: txIndex}, etchedRune); err != nil {
				return err
			}
		}
	}

	if cenotaph {
		// all input and minted runes are burned, including any amounts an
		// edict managed to place before the defect surfaced.
		for id, amount := range unallocated {
			u.burn(id, amount)
		}
		for _, balances := range allocated {
			for id, amount := range balances {
				u.burn(id, amount)
			}
			clear(balances)
		}
	} else {
		u.allocateRemainder(unallocated, allocated, artifact, tx)
	}

	// persist per-output balances; anything on an OP_RETURN output burns.
	for vout, balances := range allocated {
		if len(balances) == 0 {
			continue
		}

		if isOpReturn(tx.TxOut[vout].PkScript) {
			for id, amount := range balances {
				u.burn(id, amount)
			}
			continue
		}

		outpoint := wire.OutPoint{Hash: txid, Index: uint32(vout)}
		if err := u.wtx.Set(tableOutpointToBalances, outpointKey(outpoint), serializeBalances(sortedBalances(balances))); err != nil {
			return err
		}
	}

	return nil
}

// update flushes the burned totals accumulated over the block into the
// rune entries.
func (u *runeUpdater) update() error {
	for id, amount := range u.burned {
		raw, err := u.wtx.Get(tableRuneIDToEntry, id.Bytes())
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}

		entry, err := ParseRuneEntry(raw)
		if err != nil {
			return err
		}

		entry.Burned = new(big.Int).Add(entry.Burned, amount)
		if err = u.wtx.Set(tableRuneIDToEntry, id.Bytes(), entry.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

// artifactMint returns the mint id of the artifact, if any.
func artifactMint(artifact *runes.Artifact) *runes.RuneID {
	if artifact.Runestone != nil {
		return artifact.Runestone.Mint
	}

	return artifact.Cenotaph.Mint
}

// unallocated gathers the rune balances of every spent outpoint.
func (u *runeUpdater) unallocated(tx *wire.MsgTx) (map[runes.RuneID]*big.Int, error) {
	unallocated := make(map[runes.RuneID]*big.Int)
	for _, txIn := range tx.TxIn {
		if isNullOutpoint(txIn.PreviousOutPoint) {
			continue
		}

		key := outpointKey(txIn.PreviousOutPoint)
		raw, err := u.wtx.Get(tableOutpointToBalances, key)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}

		balances, err := parseBalances(raw)
		if err != nil {
			return nil, err
		}

		for _, balance := range balances {
			add(unallocated, balance.RuneID, balance.Amount)
		}

		if err = u.wtx.Delete(tableOutpointToBalances, key); err != nil {
			return nil, err
		}
	}

	return unallocated, nil
}

// mint increments the mint counter of the rune and returns the amount one
// mint yields. Failed mints are silent.
func (u *runeUpdater) mint(id runes.RuneID) (*big.Int, bool, error) {
	raw, err := u.wtx.Get(tableRuneIDToEntry, id.Bytes())
	if err != nil || raw == nil {
		return nil, false, err
	}

	entry, err := ParseRuneEntry(raw)
	if err != nil {
		return nil, false, err
	}

	amount, err := entry.Mintable(u.height)
	if err != nil {
		return nil, false, nil
	}

	entry.Mints = new(big.Int).Add(entry.Mints, numbers.OneBigInt)
	if err = u.wtx.Set(tableRuneIDToEntry, id.Bytes(), entry.Bytes()); err != nil {
		return nil, false, err
	}

	return amount, true, nil
}

// etched evaluates the etching of the artifact: name availability, the
// minimum-at-height schedule and the commitment escape hatch.
func (u *runeUpdater) etched(txIndex uint32, tx *wire.MsgTx, artifact *runes.Artifact) (runes.RuneID, *runes.Rune, bool, error) {
	var etchedRune *runes.Rune
	switch {
	case artifact.Runestone != nil:
		if artifact.Runestone.Etching == nil {
			return runes.RuneID{}, nil, false, nil
		}
		etchedRune = artifact.Runestone.Etching.Rune
	case artifact.Cenotaph != nil:
		etchedRune = artifact.Cenotaph.Etching
	}

	if etchedRune == nil {
		if artifact.Cenotaph != nil {
			// unnamed etchings in cenotaphs are dropped entirely.
			return runes.RuneID{}, nil, false, nil
		}
		if artifact.Runestone.Etching == nil {
			return runes.RuneID{}, nil, false, nil
		}

		// allocate the next reserved name.
		u.reservedCount++

		return runes.RuneID{Block: uint64(u.height), TxID: txIndex},
			runes.RuneReserve(runes.RuneID{Block: uint64(u.height), TxID: txIndex}), true, nil
	}

	if etchedRune.IsReserved() {
		return runes.RuneID{}, nil, false, nil
	}

	exists, err := u.runeNameExists(etchedRune)
	if err != nil || exists {
		return runes.RuneID{}, nil, false, err
	}

	// a name below the unlock schedule needs a matured tapscript commitment.
	if numbers.IsLess(etchedRune.Value(), u.minimum.Value()) {
		committed, err := u.txCommitsToRune(tx, etchedRune)
		if err != nil {
			return runes.RuneID{}, nil, false, err
		}
		if !committed {
			return runes.RuneID{}, nil, false, nil
		}
	}

	return runes.RuneID{Block: uint64(u.height), TxID: txIndex}, etchedRune, true, nil
}

// txCommitsToRune searches the transaction inputs for a tapscript push of
// the rune commitment at least six blocks old.
func (u *runeUpdater) txCommitsToRune(tx *wire.MsgTx, rune_ *runes.Rune) (bool, error) {
	commitment := rune_.Commitment()

	for _, txIn := range tx.TxIn {
		if len(txIn.Witness) < 2 {
			continue
		}

		script := txIn.Witness[len(txIn.Witness)-2]
		tokenizer := txscript.MakeScriptTokenizer(0, script)
		found := false
		for tokenizer.Next() {
			if tokenizer.Opcode() <= txscript.OP_PUSHDATA4 && bytes.Equal(tokenizer.Data(), commitment) {
				found = true
				break
			}
		}
		if !found {
			continue
		}

		blockHash, err := u.source.TxBlockHash(&txIn.PreviousOutPoint.Hash)
		if err != nil || blockHash == nil {
			continue
		}

		commitHeight, err := u.source.BlockHeight(blockHash)
		if err != nil {
			continue
		}

		if u.height+1-commitHeight >= commitmentConfirmations {
			return true, nil
		}
	}

	return false, nil
}

// runeNameExists reports whether the name was etched or reserved before.
func (u *runeUpdater) runeNameExists(rune_ *runes.Rune) (bool, error) {
	raw, err := u.wtx.Get(tableRuneToRuneID, runeNameKey(rune_))

	return raw != nil, err
}

// runeExists reports whether the id refers to an etched rune.
func (u *runeUpdater) runeExists(id runes.RuneID) (bool, error) {
	raw, err := u.wtx.Get(tableRuneIDToEntry, id.Bytes())

	return raw != nil, err
}

// createRuneEntry records the etched rune. Cenotaph etchings only reserve
// the name: zero premine, no terms.
func (u *runeUpdater) createRuneEntry(txid chainhash.Hash, artifact *runes.Artifact, id runes.RuneID, rune_ *runes.Rune) error {
	entry := &RuneEntry{
		RuneID:    id,
		Burned:    big.NewInt(0),
		Etching:   txid,
		Mints:     big.NewInt(0),
		Number:    u.runeCount,
		Premine:   big.NewInt(0),
		Rune:      rune_,
		Timestamp: u.timestamp,
	}
	u.runeCount++

	if artifact.Runestone != nil {
		etching := artifact.Runestone.Etching
		if etching.Divisibility != nil {
			entry.Divisibility = *etching.Divisibility
		}
		if etching.Premine != nil {
			entry.Premine = new(big.Int).Set(etching.Premine)
		}
		if etching.Spacers != nil {
			entry.Spacers = *etching.Spacers
		}
		entry.Symbol = etching.Symbol
		entry.Terms = etching.Terms
		entry.Turbo = etching.Turbo
	}

	if err := u.wtx.Set(tableRuneToRuneID, runeNameKey(rune_), id.Bytes()); err != nil {
		return err
	}

	return u.wtx.Set(tableRuneIDToEntry, id.Bytes(), entry.Bytes())
}

// applyEdict moves the edict amount from the unallocated pool to outputs.
func applyEdict(unallocated map[runes.RuneID]*big.Int, allocated []map[runes.RuneID]*big.Int, tx *wire.MsgTx, edict runes.Edict, id runes.RuneID) {
	balance := unallocated[id]
	if balance == nil || balance.Sign() == 0 {
		return
	}

	amount := edict.Amount
	if amount.Sign() == 0 {
		// zero amount means all remaining units of the rune.
		amount = balance
	}
	amount = numbers.Min(amount, balance)

	// an output index equal to the output count splits the amount equally
	// across every non-OP_RETURN output; the first remainder outputs
	// receive one extra unit each.
	if int(edict.Output) == len(tx.TxOut) {
		var destinations []uint32
		for vout, txOut := range tx.TxOut {
			if !isOpReturn(txOut.PkScript) {
				destinations = append(destinations, uint32(vout))
			}
		}
		if len(destinations) == 0 {
			return
		}

		share, remainder := new(big.Int).DivMod(
			new(big.Int).Set(amount), big.NewInt(int64(len(destinations))), new(big.Int))
		for i, vout := range destinations {
			portion := new(big.Int).Set(share)
			if int64(i) < remainder.Int64() {
				portion.Add(portion, numbers.OneBigInt)
			}
			move(unallocated, allocated[vout], id, portion)
		}

		return
	}

	move(unallocated, allocated[edict.Output], id, amount)
}

// allocateRemainder sends leftover runes to the pointer output or the first
// non-OP_RETURN output; with no destination they burn.
func (u *runeUpdater) allocateRemainder(unallocated map[runes.RuneID]*big.Int, allocated []map[runes.RuneID]*big.Int, artifact *runes.Artifact, tx *wire.MsgTx) {
	var destination *uint32
	if artifact != nil && artifact.Runestone != nil && artifact.Runestone.Pointer != nil {
		destination = artifact.Runestone.Pointer
	} else {
		for vout, txOut := range tx.TxOut {
			if !isOpReturn(txOut.PkScript) {
				v := uint32(vout)
				destination = &v
				break
			}
		}
	}

	for id, amount := range unallocated {
		if amount.Sign() == 0 {
			continue
		}

		if destination == nil {
			u.burn(id, amount)
			continue
		}

		add(allocated[*destination], id, amount)
	}
}

// burn accumulates the amount into the block's burned totals.
func (u *runeUpdater) burn(id runes.RuneID, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}

	if prior, ok := u.burned[id]; ok {
		prior.Add(prior, amount)
	} else {
		u.burned[id] = new(big.Int).Set(amount)
	}
}

// add accumulates amount into the balance map.
func add(balances map[runes.RuneID]*big.Int, id runes.RuneID, amount *big.Int) {
	if prior, ok := balances[id]; ok {
		prior.Add(prior, amount)
	} else {
		balances[id] = new(big.Int).Set(amount)
	}
}

// move transfers amount of id from the pool into the output balances.
func move(unallocated map[runes.RuneID]*big.Int, target map[runes.RuneID]*big.Int, id runes.RuneID, amount *big.Int) {
	amount = new(big.Int).Set(amount)
	unallocated[id].Sub(unallocated[id], amount)
	add(target, id, amount)
}

// sortedBalances flattens a balance map into rune id order.
func sortedBalances(balances map[runes.RuneID]*big.Int) []RuneBalance {
	flat := make([]RuneBalance, 0, len(balances))
	for id, amount := range balances {
		if amount.Sign() == 0 {
			continue
		}
		flat = append(flat, RuneBalance{RuneID: id, Amount: amount})
	}

	sort.Slice(flat, func(i, j int) bool {
		return flat[i].RuneID.Cmp(flat[j].RuneID) < 0
	})

	return flat
}

// runeNameKey encodes a rune name as its 16-byte table key.
func runeNameKey(rune_ *runes.Rune) []byte {
	var key [16]byte
	rune_.Value().FillBytes(key[:])

	return key[:]
}

// isOpReturn reports whether the script is provably unspendable.
func isOpReturn(script []byte) bool {
	return len(script) > 0 && script[0] == txscript.OP_RETURN
}
