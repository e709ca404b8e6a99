// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/aviate-labs/leb128"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/ordindex/internal/numbers"
	"github.com/BoostyLabs/ordindex/internal/sequencereader"
)

// MaxDivisibility defines maximum divisibility for runes.
const MaxDivisibility byte = 38

// ErrCenotaph defines invalid runestone produced malformed payload.
var ErrCenotaph = errors.New("cenotaph")

// Runestone abstractly defines runestone fields.
type Runestone struct {
	Edicts  []Edict
	Etching *Etching
	Mint    *RuneID
	Pointer *uint32
}

// Cenotaph defines a malformed runestone. Its only effects are burning the
// transaction's input runes, reserving the etched name and counting the mint.
type Cenotaph struct {
	Etching *Rune
	Mint    *RuneID
	Flaw    Flaw
}

// Artifact defines the outcome of deciphering a transaction:
// exactly one of Runestone or Cenotaph is set.
type Artifact struct {
	Runestone *Runestone
	Cenotaph  *Cenotaph
}

// Decipher extracts the runestone from the transaction, if any.
// The first output starting with OP_RETURN OP_13 is interpreted; any defect
// in it yields a cenotaph rather than a silent miss.
func Decipher(tx *wire.MsgTx) *Artifact {
	payload, flaw := payload(tx)
	if payload == nil && flaw == nil {
		return nil
	}

	if flaw != nil {
		return &Artifact{Cenotaph: &Cenotaph{Flaw: *flaw}}
	}

	integers, err := PayloadIntoIntSequence(payload)
	if err != nil {
		return &Artifact{Cenotaph: &Cenotaph{Flaw: FlawVarint}}
	}

	message := ParseMessage(sequencereader.New(integers), len(tx.TxOut))

	return artifactFromMessage(message, len(tx.TxOut))
}

// payload locates the runestone output and concatenates its data pushes.
func payload(tx *wire.MsgTx) ([]byte, *Flaw) {
	for _, txOut := range tx.TxOut {
		script := txOut.PkScript
		if len(script) < 2 || script[0] != txscript.OP_RETURN || script[1] != txscript.OP_13 {
			continue
		}

		var payload []byte
		tokenizer := txscript.MakeScriptTokenizer(0, script[2:])
		for tokenizer.Next() {
			if tokenizer.Opcode() > txscript.OP_PUSHDATA4 {
				flaw := FlawOpcode
				return nil, &flaw
			}

			payload = append(payload, tokenizer.Data()...)
		}
		if tokenizer.Err() != nil {
			flaw := FlawInvalidScript
			return nil, &flaw
		}

		if payload == nil {
			payload = []byte{}
		}

		return payload, nil
	}

	return nil, nil
}

// artifactFromMessage evaluates the parsed message into a runestone or cenotaph.
func artifactFromMessage(message *Message, outputs int) *Artifact {
	var (
		runestone = &Runestone{Edicts: message.Edicts}
		flaw      = message.Flaw
		setFlaw   = func(f Flaw) {
			if flaw == nil {
				flaw = &f
			}
		}
	)

	var etching, terms, turbo bool
	if flags := message.takeField(TagFlags); flags != nil {
		value := new(big.Int).Set(flags[0])

		etching = HasFlag(value, FlagEtching)
		if etching {
			value.Xor(value, FlagEtching)
		}

		terms = HasFlag(value, FlagTerms)
		if terms {
			value.Xor(value, FlagTerms)
		}

		turbo = HasFlag(value, FlagTurbo)
		if turbo {
			value.Xor(value, FlagTurbo)
		}

		if value.Sign() != 0 {
			setFlaw(FlawUnrecognizedFlag)
		}
	}

	if etching {
		runestone.etching().Turbo = turbo

		if ints := message.takeField(TagRune); ints != nil {
			rune_, err := NewRuneFromBig(ints[0])
			if err != nil {
				setFlaw(FlawInvalidEtching)
			} else {
				runestone.etching().Rune = rune_
			}
		}

		if ints := message.takeField(TagDivisibility); ints != nil {
			if !ints[0].IsUint64() || byte(ints[0].Uint64()) > MaxDivisibility || ints[0].Uint64() > math.MaxUint8 {
				setFlaw(FlawInvalidEtching)
			} else {
				divisibility := byte(ints[0].Uint64())
				runestone.etching().Divisibility = &divisibility
			}
		}

		if ints := message.takeField(TagPremine); ints != nil {
			runestone.etching().Premine = ints[0]
		}

		if ints := message.takeField(TagSpacers); ints != nil {
			if !ints[0].IsUint64() || ints[0].Uint64() > uint64(MaxSpacers) {
				setFlaw(FlawInvalidEtching)
			} else {
				spacers := uint32(ints[0].Uint64())
				runestone.etching().Spacers = &spacers
			}
		}

		if ints := message.takeField(TagSymbol); ints != nil {
			if !ints[0].IsUint64() || ints[0].Uint64() > utf8.MaxRune || !utf8.ValidRune(rune(ints[0].Uint64())) {
				setFlaw(FlawInvalidEtching)
			} else {
				symbol := rune(ints[0].Uint64())
				runestone.etching().Symbol = &symbol
			}
		}

		if terms {
			if ints := message.takeField(TagAmount); ints != nil {
				runestone.terms().Amount = ints[0]
			}

			if ints := message.takeField(TagCap); ints != nil {
				runestone.terms().Cap = ints[0]
			}

			if ints := message.takeField(TagHeightStart); ints != nil && ints[0].IsUint64() {
				height := ints[0].Uint64()
				runestone.terms().HeightStart = &height
			}

			if ints := message.takeField(TagHeightEnd); ints != nil && ints[0].IsUint64() {
				height := ints[0].Uint64()
				runestone.terms().HeightEnd = &height
			}

			if ints := message.takeField(TagOffsetStart); ints != nil && ints[0].IsUint64() {
				offset := ints[0].Uint64()
				runestone.terms().OffsetStart = &offset
			}

			if ints := message.takeField(TagOffsetEnd); ints != nil && ints[0].IsUint64() {
				offset := ints[0].Uint64()
				runestone.terms().OffsetEnd = &offset
			}
		}

		runestone.fillDefaultEtching()

		if _, ok := runestone.Etching.Supply(); !ok {
			setFlaw(FlawSupplyOverflow)
		}
	}

	if ints := message.takeField(TagMint); ints != nil {
		if len(ints) >= 2 && ints[0].IsUint64() && ints[1].IsUint64() && ints[1].Uint64() <= math.MaxUint32 {
			runestone.Mint = &RuneID{Block: ints[0].Uint64(), TxID: uint32(ints[1].Uint64())}
			if runestone.Mint.Block == 0 && runestone.Mint.TxID != 0 {
				setFlaw(FlawUnrecognizedEvenTag)
			}
		} else {
			setFlaw(FlawUnrecognizedEvenTag)
		}
	}

	if ints := message.takeField(TagPointer); ints != nil {
		if ints[0].IsUint64() && ints[0].Uint64() < uint64(outputs) {
			pointer := uint32(ints[0].Uint64())
			runestone.Pointer = &pointer
		} else {
			setFlaw(FlawUnrecognizedEvenTag)
		}
	}

	// the explicit cenotaph tag and any other unrecognized even tag poison the runestone.
	for tag := range message.Fields {
		if tag.IsEven() {
			setFlaw(FlawUnrecognizedEvenTag)
			break
		}
	}

	if flaw != nil {
		cenotaph := &Cenotaph{Flaw: *flaw, Mint: runestone.Mint}
		if runestone.Etching != nil {
			cenotaph.Etching = runestone.Etching.Rune
		}

		return &Artifact{Cenotaph: cenotaph}
	}

	return &Artifact{Runestone: runestone}
}

// IntoScript returns Runestone as OP_RETURN script bytes.
func (runestone *Runestone) IntoScript() ([]byte, error) {
	payload, err := runestone.Serialize()
	if err != nil {
		return nil, err
	}

	scriptBuilder := txscript.NewScriptBuilder()
	scriptBuilder.AddOp(txscript.OP_RETURN)
	scriptBuilder.AddOp(txscript.OP_13)
	scriptBuilder.AddData(payload)

	return scriptBuilder.Script()
}

// Serialize returns Runestone as bytes array.
func (runestone *Runestone) Serialize() ([]byte, error) {
	message := Message{
		Edicts: runestone.Edicts,
		Fields: map[Tag][]*big.Int{},
	}
	flags := big.NewInt(0)
	if runestone.Etching != nil {
		flags = AddFlag(flags, FlagEtching)
		if runestone.Etching.Divisibility != nil && *runestone.Etching.Divisibility != 0 {
			message.Fields[TagDivisibility] = []*big.Int{big.NewInt(int64(*runestone.Etching.Divisibility))}
		}
		if runestone.Etching.Premine != nil && runestone.Etching.Premine.Sign() != 0 {
			message.Fields[TagPremine] = []*big.Int{runestone.Etching.Premine}
		}
		if runestone.Etching.Rune != nil {
			message.Fields[TagRune] = []*big.Int{runestone.Etching.Rune.Value()}
		}
		if runestone.Etching.Spacers != nil && *runestone.Etching.Spacers != 0 {
			message.Fields[TagSpacers] = []*big.Int{big.NewInt(int64(*runestone.Etching.Spacers))}
		}
		if runestone.Etching.Symbol != nil && *runestone.Etching.Symbol != 0 {
			message.Fields[TagSymbol] = []*big.Int{big.NewInt(int64(*runestone.Etching.Symbol))}
		}

		if runestone.Etching.Terms != nil {
			flags = AddFlag(flags, FlagTerms)
			if runestone.Etching.Terms.Cap != nil {
				message.Fields[TagCap] = []*big.Int{runestone.Etching.Terms.Cap}
			}
			if runestone.Etching.Terms.Amount != nil {
				message.Fields[TagAmount] = []*big.Int{runestone.Etching.Terms.Amount}
			}
			if runestone.Etching.Terms.HeightStart != nil {
				message.Fields[TagHeightStart] = []*big.Int{new(big.Int).SetUint64(*runestone.Etching.Terms.HeightStart)}
			}
			if runestone.Etching.Terms.HeightEnd != nil {
				message.Fields[TagHeightEnd] = []*big.Int{new(big.Int).SetUint64(*runestone.Etching.Terms.HeightEnd)}
			}
			if runestone.Etching.Terms.OffsetStart != nil {
				message.Fields[TagOffsetStart] = []*big.Int{new(big.Int).SetUint64(*runestone.Etching.Terms.OffsetStart)}
			}
			if runestone.Etching.Terms.OffsetEnd != nil {
				message.Fields[TagOffsetEnd] = []*big.Int{new(big.Int).SetUint64(*runestone.Etching.Terms.OffsetEnd)}
			}
		}

		if runestone.Etching.Turbo {
			flags = AddFlag(flags, FlagTurbo)
		}

		message.Fields[TagFlags] = []*big.Int{flags}
	}

	if runestone.Mint != nil {
		message.Fields[TagMint] = runestone.Mint.ToIntSeq()
	}

	if runestone.Pointer != nil {
		message.Fields[TagPointer] = []*big.Int{big.NewInt(int64(*runestone.Pointer))}
	}

	return IntSequenceIntoPayload(message.ToIntSeq())
}

// etching return Etching fieldType and initialize it if needed.
func (runestone *Runestone) etching() *Etching {
	if runestone.Etching == nil {
		runestone.Etching = new(Etching)
	}

	return runestone.Etching
}

// terms return Etching.Terms fieldType and initialize it if needed.
func (runestone *Runestone) terms() *Terms {
	if runestone.etching().Terms == nil {
		runestone.etching().Terms = new(Terms)
	}

	return runestone.Etching.Terms
}

// fillDefaultEtching fills runestone etching fields to be valid for further processing.
func (runestone *Runestone) fillDefaultEtching() {
	if runestone.Etching != nil {
		if runestone.Etching.Premine == nil {
			runestone.Etching.Premine = big.NewInt(0)
		}
		if runestone.Etching.Divisibility == nil {
			runestone.Etching.Divisibility = new(byte)
		}
		if runestone.Etching.Spacers == nil {
			runestone.Etching.Spacers = new(uint32)
		}
		if runestone.Etching.Symbol == nil {
			runestone.Etching.Symbol = new(rune)
		}
	}
}

// PayloadIntoIntSequence decodes payload in LEB128 into integer sequence.
func PayloadIntoIntSequence(payload []byte) ([]*big.Int, error) {
	sequence := make([]*big.Int, 0)
	data := bytes.NewReader(payload)
	for data.Len() > 0 {
		num, err := leb128.DecodeUnsigned(data)
		if err != nil {
			return nil, err
		}

		if numbers.IsGreater(num, numbers.MaxUInt128Value) {
			return nil, ErrCenotaph
		}

		sequence = append(sequence, num)
	}

	return sequence, nil
}

// IntSequenceIntoPayload encodes integer sequence into payload in LEB128.
func IntSequenceIntoPayload(sequence []*big.Int) ([]byte, error) {
	payload := make([]byte, 0)
	for _, num := range sequence {
		bytes, err := leb128.EncodeUnsigned(num)
		if err != nil {
			return nil, err
		}

		payload = append(payload, bytes...)
	}

	return payload, nil
}
