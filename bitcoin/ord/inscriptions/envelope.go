// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// protocolID defines the envelope protocol identifier push.
var protocolID = []byte("ord")

// annexTag defines the leading byte of a taproot annex witness element.
const annexTag byte = 0x50

// Envelope defines a single inscription envelope recovered from a tapscript:
// an OP_FALSE OP_IF .. OP_ENDIF region whose first push is the protocol
// identifier. Input and Offset record where in the transaction it was found.
type Envelope struct {
	Input   uint32
	Offset  uint32
	Payload *Inscription
	Pushnum bool
	Stutter bool
}

// instruction defines a single decoded script instruction.
type instruction struct {
	opcode byte
	data   []byte
}

// isPush returns true if the instruction pushes data, including the empty push.
func (in instruction) isPush() bool {
	return in.opcode <= txscript.OP_PUSHDATA4
}

// isEmptyPush returns true if the instruction pushes zero bytes.
func (in instruction) isEmptyPush() bool {
	return in.isPush() && len(in.data) == 0
}

// EnvelopesFromTransaction scans every input's tapscript and returns all
// inscription envelopes in (input, offset) order.
func EnvelopesFromTransaction(tx *wire.MsgTx) []Envelope {
	var envelopes []Envelope
	for inputIndex, txIn := range tx.TxIn {
		script := tapscript(txIn.Witness)
		if script == nil {
			continue
		}

		instrs, err := tokenize(script)
		if err != nil {
			// undecodable tapscript carries no envelopes.
			continue
		}

		envelopes = append(envelopes, envelopesFromInstructions(instrs, uint32(inputIndex))...)
	}

	return envelopes
}

// tapscript returns the script-path leaf script of a taproot witness,
// or nil for key-path spends and non-taproot witnesses.
func tapscript(witness wire.TxWitness) []byte {
	if len(witness) >= 2 && len(witness[len(witness)-1]) > 0 && witness[len(witness)-1][0] == annexTag {
		witness = witness[:len(witness)-1]
	}

	if len(witness) < 2 {
		return nil
	}

	return witness[len(witness)-2]
}

// tokenize decodes the script into instructions, failing on malformed pushes.
func tokenize(script []byte) ([]instruction, error) {
	var instrs []instruction
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		instrs = append(instrs, instruction{opcode: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}

	return instrs, nil
}

// envelopesFromInstructions walks the instruction stream of one tapscript and
// collects every well-formed envelope. A failed open attempt immediately
// preceded by an extra empty push marks the following envelope as stuttering.
func envelopesFromInstructions(instrs []instruction, input uint32) []Envelope {
	var (
		envelopes []Envelope
		stuttered bool
	)
	for i := 0; i < len(instrs); i++ {
		if !instrs[i].isEmptyPush() {
			continue
		}

		envelope, next, stutter := envelopeFromInstructions(instrs, i+1, input, uint32(len(envelopes)), stuttered)
		if envelope != nil {
			envelopes = append(envelopes, *envelope)
			stuttered = false
		} else {
			stuttered = stutter
		}
		if next > i {
			i = next - 1
		}
	}

	return envelopes
}

// envelopeFromInstructions attempts to parse an envelope beginning right
// after an empty push at index start-1. It returns the parsed envelope or
// nil, the index to resume scanning from, and whether the failed attempt
// ended on another empty push.
func envelopeFromInstructions(instrs []instruction, start int, input, offset uint32, stutter bool) (*Envelope, int, bool) {
	i := start
	if i >= len(instrs) || instrs[i].opcode != txscript.OP_IF {
		return nil, i, i < len(instrs) && instrs[i].isEmptyPush()
	}
	i++

	if i >= len(instrs) || !instrs[i].isPush() || !bytes.Equal(instrs[i].data, protocolID) {
		return nil, i, i < len(instrs) && instrs[i].isEmptyPush()
	}
	i++

	var (
		pushnum bool
		payload [][]byte
	)
	for ; i < len(instrs); i++ {
		in := instrs[i]
		switch {
		case in.opcode == txscript.OP_ENDIF:
			return &Envelope{
				Input:   input,
				Offset:  offset,
				Payload: inscriptionFromPayload(payload),
				Pushnum: pushnum,
				Stutter: stutter,
			}, i + 1, false
		case in.opcode == txscript.OP_1NEGATE:
			pushnum = true
			payload = append(payload, []byte{0x81})
		case in.opcode >= txscript.OP_1 && in.opcode <= txscript.OP_16:
			pushnum = true
			payload = append(payload, []byte{in.opcode - txscript.OP_1 + 1})
		case in.isPush():
			payload = append(payload, in.data)
		default:
			// non-push opcode aborts the envelope without recording it.
			return nil, i + 1, false
		}
	}

	// truncated before OP_ENDIF.
	return nil, i, false
}

// inscriptionFromPayload interprets the envelope pushes as tag/value pairs up
// to the body separator and assembles the Inscription.
func inscriptionFromPayload(payload [][]byte) *Inscription {
	bodyStart := -1
	for i := 0; i < len(payload); i += 2 {
		if len(payload[i]) == 0 {
			bodyStart = i
			break
		}
	}

	fieldEnd := len(payload)
	if bodyStart >= 0 {
		fieldEnd = bodyStart
	}

	inscription := new(Inscription)

	var (
		order  [][]byte
		fields = make(map[string][][]byte)
	)
	for i := 0; i < fieldEnd; i += 2 {
		if i+1 >= fieldEnd {
			inscription.IncompleteField = true
			break
		}

		key := string(payload[i])
		if _, ok := fields[key]; !ok {
			order = append(order, payload[i])
		}

		fields[key] = append(fields[key], payload[i+1])
	}

	for _, values := range fields {
		if len(values) > 1 {
			inscription.DuplicateField = true
			break
		}
	}

	inscription.fillFields(fields)

	// any unconsumed even tag makes the inscription unrecognized.
	for _, key := range order {
		if _, ok := fields[string(key)]; ok && key[0]%2 == 0 {
			inscription.UnrecognizedEvenField = true
			break
		}
	}

	if bodyStart >= 0 {
		var body []byte
		for _, push := range payload[bodyStart+1:] {
			body = append(body, push...)
		}
		if body == nil {
			body = []byte{}
		}
		inscription.Body = body
	}

	return inscription
}
