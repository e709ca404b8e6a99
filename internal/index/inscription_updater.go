// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/bitcoin/ord"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// Curse identifies the protocol stricture an inscription violates, in
// priority order. The order is frozen: it decides inscription numbers.
type Curse byte

const (
	// CurseUnrecognizedEvenField defines an unknown even envelope tag.
	CurseUnrecognizedEvenField Curse = iota + 1
	// CurseDuplicateField defines a repeated envelope tag.
	CurseDuplicateField
	// CurseIncompleteField defines a tag without a value.
	CurseIncompleteField
	// CurseNotInFirstInput defines an envelope beyond the first input.
	CurseNotInFirstInput
	// CurseNotAtOffsetZero defines a second envelope within one input.
	CurseNotAtOffsetZero
	// CursePointer defines a pointer field before the jubilee.
	CursePointer
	// CursePushnum defines pushnum opcodes in the envelope before the jubilee.
	CursePushnum
	// CurseStutter defines a stuttering envelope opening before the jubilee.
	CurseStutter
	// CurseReinscription defines an inscription on an already inscribed satoshi.
	CurseReinscription
)

// newOrigin carries the details of an inscription created by the current
// transaction until it settles on an output.
type newOrigin struct {
	cursed        bool
	fee           uint64
	inscription   *inscriptions.Inscription
	parents       []inscriptions.ID
	pointer       *uint64
	reinscription bool
	unbound       bool
	vindicated    bool
}

// oldOrigin carries an existing inscription being transferred.
type oldOrigin struct {
	oldSatPoint SatPoint
}

// flotsam is an inscription in motion during per-transaction processing,
// not yet assigned to an output.
type flotsam struct {
	inscriptionID inscriptions.ID
	offset        uint64
	new           *newOrigin
	old           *oldOrigin
}

// inscriptionUpdater applies the inscription protocol transaction by
// transaction within one block.
type inscriptionUpdater struct {
	wtx     *store.WriteTxn
	chain   ord.Chain
	fetcher *blocksource.ValueFetcher

	height        uint32
	timestamp     uint32
	jubilant      bool
	scanEnvelopes bool

	// inscriptions carried between transactions of the block, offsets
	// rebased against the accumulating coinbase reward.
	flotsam []flotsam
	reward  uint64

	valueCache map[wire.OutPoint]uint64

	// counters persisted as statistics at the end of the block.
	blessedCount uint64
	cursedCount  uint64
	lostSats     uint64
	unboundCount uint64
	nextSequence uint64
}

// newInscriptionUpdater prepares the per-block inscription pass.
func newInscriptionUpdater(
	wtx *store.WriteTxn,
	chain ord.Chain,
	fetcher *blocksource.ValueFetcher,
	valueCache map[wire.OutPoint]uint64,
	height uint32,
	timestamp uint32,
	counters *counters,
) *inscriptionUpdater {
	return &inscriptionUpdater{
		wtx:           wtx,
		chain:         chain,
		fetcher:       fetcher,
		height:        height,
		timestamp:     timestamp,
		jubilant:      height >= chain.JubileeHeight(),
		scanEnvelopes: height >= chain.FirstInscriptionHeight(),
		reward:        sat.Height(height).Subsidy(),
		valueCache:    valueCache,
		blessedCount:  counters.blessed,
		cursedCount:   counters.cursed,
		lostSats:      counters.lostSats,
		unboundCount:  counters.unbound,
		nextSequence:  counters.blessed + counters.cursed,
	}
}

// counters returns the running totals back to the orchestrator.
func (u *inscriptionUpdater) counters() counters {
	return counters{
		blessed:  u.blessedCount,
		cursed:   u.cursedCount,
		lostSats: u.lostSats,
		unbound:  u.unboundCount,
	}
}

// offsetEntry tracks the first inscription seen at an input offset and how
// many more arrived there.
type offsetEntry struct {
	id    inscriptions.ID
	count int
}

// indexEnvelopes processes one transaction: migrates existing inscriptions
// across the spend, assigns numbers and locations to new envelopes.
func (u *inscriptionUpdater) indexEnvelopes(tx *wire.MsgTx, txid chainhash.Hash, inputSatRanges []SatRange) error {
	// below the first inscription height no envelopes can exist, so the
	// witness scan is skipped while transfers are still tracked.
	var envelopes []inscriptions.Envelope
	if u.scanEnvelopes {
		envelopes = inscriptions.EnvelopesFromTransaction(tx)
	}

	var (
		floating         []flotsam
		inscribedOffsets = make(map[uint64]*offsetEntry)
		totalInputValue  uint64
		idCounter        uint32
	)

	for inputIndex, txIn := range tx.TxIn {
		// skip subsidy since no inscriptions possible.
		if isNullOutpoint(txIn.PreviousOutPoint) {
			totalInputValue += sat.Height(u.height).Subsidy()
			continue
		}

		// find existing inscriptions on the spent output (transfers).
		transferred, err := u.inscriptionsOnOutput(txIn.PreviousOutPoint)
		if err != nil {
			return err
		}
		for _, located := range transferred {
			offset := totalInputValue + located.satPoint.Offset
			floating = append(floating, flotsam{
				inscriptionID: located.id,
				offset:        offset,
				old:           &oldOrigin{oldSatPoint: located.satPoint},
			})

			if entry, ok := inscribedOffsets[offset]; ok {
				entry.count++
			} else {
				inscribedOffsets[offset] = &offsetEntry{id: located.id}
			}
		}

		offset := totalInputValue

		currentInputValue, err := u.inputValue(txIn.PreviousOutPoint)
		if err != nil {
			return err
		}
		totalInputValue += currentInputValue

		for len(envelopes) > 0 && envelopes[0].Input == uint32(inputIndex) {
			envelope := envelopes[0]
			envelopes = envelopes[1:]

			inscriptionID := inscriptions.ID{TxID: &txid, Index: idCounter}
			idCounter++

			curse := u.curseOf(envelope, inscribedOffsets, offset)

			cursed := curse != 0
			if curse == CurseReinscription {
				// a reinscription on a sat whose first inscription was itself
				// cursed is blessed, but only the first time.
				entry := inscribedOffsets[offset]
				firstReinscription := entry.count == 0
				initialCursed, err := u.entryCursed(entry.id)
				if err != nil {
					return err
				}

				cursed = !(initialCursed && firstReinscription)
			}

			vindicated := curse != 0 && !u.cursePersists(curse)
			if vindicated {
				cursed = false
			}

			unbound := currentInputValue == 0 || curse == CurseUnrecognizedEvenField

			floating = append(floating, flotsam{
				inscriptionID: inscriptionID,
				offset:        offset,
				new: &newOrigin{
					cursed:        cursed,
					inscription:   envelope.Payload,
					parents:       nil, // resolved below against the whole transaction.
					pointer:       envelope.Payload.Pointer,
					reinscription: curse == CurseReinscription,
					unbound:       unbound,
					vindicated:    vindicated,
				},
			})
		}
	}

	if err := u.resolveParents(tx, txid, floating, idCounter); err != nil {
		return err
	}

	var totalOutputValue uint64
	for _, txOut := range tx.TxOut {
		totalOutputValue += uint64(txOut.Value)
	}

	// normalize the transaction fee over the new inscriptions.
	if idCounter > 0 {
		fee := (totalInputValue - totalOutputValue) / uint64(idCounter)
		for i := range floating {
			if floating[i].new != nil {
				floating[i].new.fee = fee
			}
		}
	}

	isCoinbase := len(tx.TxIn) > 0 && isNullOutpoint(tx.TxIn[0].PreviousOutPoint)
	if isCoinbase {
		floating = append(floating, u.flotsam...)
		u.flotsam = u.flotsam[:0]
	}

	sort.SliceStable(floating, func(i, j int) bool {
		return floating[i].offset < floating[j].offset
	})

	type outputRange struct {
		start uint64
		end   uint64
		vout  uint32
	}

	var (
		ranges      []outputRange
		locations   []struct{ satPoint SatPoint; f flotsam }
		outputValue uint64
	)
	for vout, txOut := range tx.TxOut {
		end := outputValue + uint64(txOut.Value)

		for len(floating) > 0 && floating[0].offset < end {
			locations = append(locations, struct{ satPoint SatPoint; f flotsam }{
				satPoint: SatPoint{
					OutPoint: wire.OutPoint{Hash: txid, Index: uint32(vout)},
					Offset:   floating[0].offset - outputValue,
				},
				f: floating[0],
			})
			floating = floating[1:]
		}

		ranges = append(ranges, outputRange{start: outputValue, end: end, vout: uint32(vout)})
		outputValue = end

		outpoint := wire.OutPoint{Hash: txid, Index: uint32(vout)}
		u.valueCache[outpoint] = uint64(txOut.Value)
		if err := u.wtx.Set(tableOutpointToValue, outpointKey(outpoint), u64Key(uint64(txOut.Value))); err != nil {
			return err
		}
	}

	for _, location := range locations {
		satPoint := location.satPoint
		f := location.f

		// a pointer inside the outputs redirects the inscription.
		if f.new != nil && f.new.pointer != nil && *f.new.pointer < outputValue {
			pointer := *f.new.pointer
			for _, r := range ranges {
				if pointer >= r.start && pointer < r.end {
					f.offset = pointer
					satPoint = SatPoint{
						OutPoint: wire.OutPoint{Hash: txid, Index: r.vout},
						Offset:   pointer - r.start,
					}
					break
				}
			}
		}

		if err := u.updateInscriptionLocation(tx, inputSatRanges, f, satPoint); err != nil {
			return err
		}
	}

	if isCoinbase {
		for _, f := range floating {
			satPoint := SatPoint{
				OutPoint: nullOutpoint,
				Offset:   u.lostSats + f.offset - outputValue,
			}
			if err := u.updateInscriptionLocation(tx, inputSatRanges, f, satPoint); err != nil {
				return err
			}
		}
		u.lostSats += u.reward - outputValue

		return nil
	}

	for _, f := range floating {
		f.offset = u.reward + f.offset - outputValue
		u.flotsam = append(u.flotsam, f)
	}
	u.reward += totalInputValue - outputValue

	return nil
}

// curseOf evaluates the curse priority chain for one envelope.
func (u *inscriptionUpdater) curseOf(envelope inscriptions.Envelope, inscribedOffsets map[uint64]*offsetEntry, offset uint64) Curse {
	payload := envelope.Payload
	switch {
	case payload.UnrecognizedEvenField:
		return CurseUnrecognizedEvenField
	case payload.DuplicateField:
		return CurseDuplicateField
	case payload.IncompleteField:
		return CurseIncompleteField
	case envelope.Input != 0:
		return CurseNotInFirstInput
	case envelope.Offset != 0:
		return CurseNotAtOffsetZero
	case payload.Pointer != nil:
		return CursePointer
	case envelope.Pushnum:
		return CursePushnum
	case envelope.Stutter:
		return CurseStutter
	default:
		if _, ok := inscribedOffsets[offset]; ok {
			return CurseReinscription
		}

		return 0
	}
}

// cursePersists reports whether the curse still applies at the current
// height; the jubilee retracts the pointer, pushnum and stutter curses.
func (u *inscriptionUpdater) cursePersists(curse Curse) bool {
	if !u.jubilant {
		return true
	}

	switch curse {
	case CursePointer, CursePushnum, CurseStutter:
		return false
	default:
		return true
	}
}

// entryCursed reports whether the committed entry of the id carries a
// negative number.
func (u *inscriptionUpdater) entryCursed(id inscriptions.ID) (bool, error) {
	value, err := u.wtx.Get(tableIDToEntry, idKey(id))
	if err != nil || value == nil {
		return false, err
	}

	entry, err := ParseInscriptionEntry(value)
	if err != nil {
		return false, err
	}

	return entry.Cursed(), nil
}

// resolveParents drops parent references that neither settle in this
// transaction nor already exist in the index.
func (u *inscriptionUpdater) resolveParents(tx *wire.MsgTx, txid chainhash.Hash, floating []flotsam, idCounter uint32) error {
	for i := range floating {
		if floating[i].new == nil {
			continue
		}

		for _, parent := range floating[i].new.inscription.Parents {
			if parent.TxID.IsEqual(&txid) && parent.Index < idCounter {
				floating[i].new.parents = append(floating[i].new.parents, *parent)
				continue
			}

			value, err := u.wtx.Get(tableIDToEntry, idKey(*parent))
			if err != nil {
				return err
			}
			if value != nil {
				floating[i].new.parents = append(floating[i].new.parents, *parent)
			}
		}
	}

	return nil
}

// locatedInscription pairs an inscription id with its current satpoint.
type locatedInscription struct {
	satPoint SatPoint
	id       inscriptions.ID
}

// inscriptionsOnOutput returns the inscriptions located on the outpoint in
// offset order.
func (u *inscriptionUpdater) inscriptionsOnOutput(outpoint wire.OutPoint) ([]locatedInscription, error) {
	var located []locatedInscription
	err := u.wtx.Iterate(tableSatpointToID, outpointKey(outpoint), func(key, _ []byte) (bool, error) {
		// key is offset (8 bytes) followed by the inscription id.
		if len(key) != 8+36 {
			return false, errCorruptEntry
		}

		satPoint := parseSatpointKey(append(outpointKey(outpoint), key[:8]...))
		located = append(located, locatedInscription{satPoint: satPoint, id: parseIDKey(key[8:])})

		return true, nil
	})

	return located, err
}

// inputValue resolves the value of a spent output through the cache, the
// UTXO table and finally the parallel fetch pool.
func (u *inscriptionUpdater) inputValue(outpoint wire.OutPoint) (uint64, error) {
	if value, ok := u.valueCache[outpoint]; ok {
		delete(u.valueCache, outpoint)
		if err := u.wtx.Delete(tableOutpointToValue, outpointKey(outpoint)); err != nil {
			return 0, err
		}

		return value, nil
	}

	if raw, err := u.wtx.Get(tableOutpointToValue, outpointKey(outpoint)); err != nil {
		return 0, err
	} else if raw != nil {
		if len(raw) != 8 {
			return 0, errCorruptEntry
		}
		if err = u.wtx.Delete(tableOutpointToValue, outpointKey(outpoint)); err != nil {
			return 0, err
		}

		return parseU64(raw), nil
	}

	value, err := u.fetcher.Recv()
	if err != nil {
		return 0, fmt.Errorf("failed to get value of %s: %w", outpoint, err)
	}

	return value, nil
}

// updateInscriptionLocation writes the new location of the flotsam, numbering
// it first if it is new.
func (u *inscriptionUpdater) updateInscriptionLocation(tx *wire.MsgTx, inputSatRanges []SatRange, f flotsam, satPoint SatPoint) error {
	id := idKey(f.inscriptionID)

	unbound := false
	if f.old != nil {
		if err := u.wtx.MRemoveAll(tableSatpointToID, satpointKey(f.old.oldSatPoint)); err != nil {
			return err
		}
	} else {
		origin := f.new

		var number int64
		if origin.cursed {
			number = -int64(u.cursedCount) - 1
			u.cursedCount++
		} else {
			number = int64(u.blessedCount)
			u.blessedCount++
		}

		sequence := u.nextSequence
		u.nextSequence++

		var inscriptionSat *sat.Sat
		if !origin.unbound {
			inscriptionSat = calculateSat(inputSatRanges, f.offset)
		}

		charms := u.charmsOf(tx, origin, inscriptionSat, satPoint)

		entry := InscriptionEntry{
			Charms:          charms,
			ContentEncoding: origin.inscription.ContentEncoding,
			ContentType:     origin.inscription.ContentType,
			Fee:             origin.fee,
			Height:          u.height,
			ID:              f.inscriptionID,
			Metaprotocol:    string(origin.inscription.Metaprotocol),
			Number:          number,
			Parents:         origin.parents,
			Sat:             inscriptionSat,
			Sequence:        sequence,
			Timestamp:       u.timestamp,
		}

		if origin.inscription.Delegate != nil {
			delegate := *origin.inscription.Delegate
			entry.Delegate = &delegate
		}

		if origin.inscription.Body != nil {
			entry.BodyHash = chainhash.HashH(origin.inscription.Body)
			entry.BodyLength = uint64(len(origin.inscription.Body))
		}

		if err := u.wtx.Set(tableNumberToID, i64Key(number), id); err != nil {
			return err
		}
		if err := u.wtx.Set(tableSequenceToID, u64Key(sequence), id); err != nil {
			return err
		}
		if inscriptionSat != nil {
			if err := u.wtx.MPut(tableSatToInscription, u64Key(inscriptionSat.N()), id); err != nil {
				return err
			}
		}
		if err := u.wtx.Set(tableIDToEntry, id, entry.Bytes()); err != nil {
			return err
		}
		for _, parent := range origin.parents {
			if err := u.wtx.MPut(tableParentToChild, idKey(parent), id); err != nil {
				return err
			}
		}

		unbound = origin.unbound
	}

	if unbound {
		satPoint = SatPoint{
			OutPoint: unboundOutpoint,
			Offset:   u.unboundCount,
		}
		u.unboundCount++
	}

	if err := u.wtx.MPut(tableSatpointToID, satpointKey(satPoint), id); err != nil {
		return err
	}

	return u.wtx.Set(tableIDToSatpoint, id, satpointKey(satPoint))
}

// charmsOf assembles the charm bitmask for a new inscription.
func (u *inscriptionUpdater) charmsOf(tx *wire.MsgTx, origin *newOrigin, inscriptionSat *sat.Sat, satPoint SatPoint) uint16 {
	var charms uint16

	if origin.cursed {
		ord.CharmCursed.Set(&charms)
	}
	if origin.reinscription {
		ord.CharmReinscription.Set(&charms)
	}
	if origin.unbound {
		ord.CharmUnbound.Set(&charms)
	}
	if origin.vindicated {
		ord.CharmVindicated.Set(&charms)
	}
	if inscriptionSat != nil {
		charms |= ord.CharmsOfSat(*inscriptionSat)
	}
	if satPoint.OutPoint == nullOutpoint {
		ord.CharmLost.Set(&charms)
	}
	if satPoint.OutPoint.Hash == tx.TxHash() && int(satPoint.OutPoint.Index) < len(tx.TxOut) {
		script := tx.TxOut[satPoint.OutPoint.Index].PkScript
		if len(script) > 0 && script[0] == txscript.OP_RETURN {
			ord.CharmBurned.Set(&charms)
		}
	}

	return charms
}

// calculateSat maps an offset on the transaction's input sat stream to the
// satoshi sitting there.
func calculateSat(inputSatRanges []SatRange, inputOffset uint64) *sat.Sat {
	if inputSatRanges == nil {
		return nil
	}

	var offset uint64
	for _, r := range inputSatRanges {
		if offset+r.Size() > inputOffset {
			s := sat.Sat(r.Start + inputOffset - offset)
			return &s
		}
		offset += r.Size()
	}

	return nil
}

// isNullOutpoint reports whether the outpoint is the coinbase sentinel.
func isNullOutpoint(outpoint wire.OutPoint) bool {
	return outpoint.Index == wire.MaxPrevOutIndex && outpoint.Hash == (chainhash.Hash{})
}

// parseU64 decodes a big-endian u64 row.
func parseU64(raw []byte) uint64 {
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}

	return v
}
