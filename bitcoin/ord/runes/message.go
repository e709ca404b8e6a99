// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
	"slices"

	"github.com/BoostyLabs/ordindex/internal/sequencereader"
)

// fieldType defines helping struct for ordering map.
type fieldType struct {
	Tag  Tag
	Nums []*big.Int
}

// Message defines helping struct for serialising and deserializing Runestone.
type Message struct {
	Edicts []Edict
	Fields map[Tag][]*big.Int
	Flaw   *Flaw
}

// ParseMessage parses Message from integer sequence. Edicts are validated
// against the transaction output count.
func ParseMessage(sr *sequencereader.SequenceReader[*big.Int], outputs int) *Message {
	message := &Message{
		Fields: make(map[Tag][]*big.Int),
	}

	for sr.HasNext() {
		tagBigInt, _ := sr.Next() // skip error due to loop condition check.

		// tags outside the single-byte space can never be recognized; consume
		// the value and judge them by their lowest bit alone.
		if !tagBigInt.IsUint64() || tagBigInt.Uint64() > 255 {
			if tagBigInt.Bit(0) == 0 {
				message.flaw(FlawUnrecognizedEvenTag)
			}
			if _, err := sr.Next(); err != nil {
				message.flaw(FlawTruncatedField)
				break
			}

			continue
		}
		tag := Tag(tagBigInt.Uint64())

		if TagBody == tag {
			var flaw *Flaw
			message.Edicts, flaw = ParseEdictsFromIntSeq(sr, outputs)
			if flaw != nil {
				message.flaw(*flaw)
			}

			break
		}

		value, err := sr.Next()
		if err != nil {
			message.flaw(FlawTruncatedField)
			break
		}

		message.Fields[tag] = append(message.Fields[tag], value)
	}

	return message
}

// flaw records the first flaw observed while parsing.
func (message *Message) flaw(flaw Flaw) {
	if message.Flaw == nil {
		message.Flaw = &flaw
	}
}

// takeField removes the tag from the message and returns its values.
// Duplicated tags keep all values in occurrence order; callers use the first.
func (message *Message) takeField(tag Tag) []*big.Int {
	values, ok := message.Fields[tag]
	if !ok {
		return nil
	}

	delete(message.Fields, tag)

	return values
}

// ToIntSeq returns Message as sequence on integers.
func (message *Message) ToIntSeq() []*big.Int {
	ordered := make([]fieldType, 0, len(message.Fields))
	for tag, ints := range message.Fields {
		ordered = append(ordered, fieldType{tag, ints})
	}

	// sort ordered for immutability.
	slices.SortFunc(ordered, func(a, b fieldType) int {
		return int(a.Tag) - int(b.Tag)
	})

	// capacity hint: 2 ints per field and 4 per edict; fields with several
	// values and the body tag grow the slice beyond it.
	sequence := make([]*big.Int, 0, len(message.Fields)*2+len(message.Edicts)*4)
	for _, field := range ordered {
		for _, val := range field.Nums {
			sequence = append(sequence, field.Tag.BigInt(), val)
		}
	}

	if message.Edicts != nil {
		sequence = append(sequence, TagBody.BigInt())
		sequence = append(sequence, EdictsToIntSeq(message.Edicts)...)
	}

	return sequence
}
