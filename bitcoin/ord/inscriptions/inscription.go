// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/internal/reverse"
)

// maxBodyDataPushLen defines maximum size of the data push for bitcoin scripts.
const maxBodyDataPushLen int = 520

// maxPointerLen defines maximum encoded length of the pointer field value.
const maxPointerLen int = 8

// Inscription describes inscription type of the inscription protocol,
// which inscribe sats with arbitrary content, creating bitcoin-native digital artifacts.
type Inscription struct {
	Body            []byte
	ContentEncoding string
	ContentType     string
	Delegate        *ID
	Metadata        []byte
	Metaprotocol    []byte
	Parents         []*ID
	Pointer         *uint64
	Rune            *runes.Rune

	// parse defects observed while reading the envelope.
	DuplicateField        bool
	IncompleteField       bool
	UnrecognizedEvenField bool
}

// fillFields consumes the known tag values from the field map, leaving only
// unrecognized tags behind.
func (i *Inscription) fillFields(fields map[string][][]byte) {
	if values := takeField(fields, TagContentType); values != nil {
		i.ContentType = string(values[0])
	}

	if values := takeField(fields, TagContentEncoding); values != nil {
		i.ContentEncoding = string(values[0])
	}

	if values := takeField(fields, TagMetaprotocol); values != nil {
		i.Metaprotocol = values[0]
	}

	// metadata may be chunked over several pushes; concatenate them.
	if values := takeField(fields, TagMetadata); values != nil {
		for _, value := range values {
			i.Metadata = append(i.Metadata, value...)
		}
	}

	if values := takeField(fields, TagPointer); values != nil {
		i.Pointer = pointerFromValue(values[0])
	}

	if values := takeField(fields, TagParent); values != nil {
		for _, value := range values {
			if id, err := NewIDFromDataPush(value); err == nil {
				i.Parents = append(i.Parents, id)
			}
		}
	}

	if values := takeField(fields, TagDelegate); values != nil {
		if id, err := NewIDFromDataPush(values[0]); err == nil {
			i.Delegate = id
		}
	}

	if values := takeField(fields, TagRune); values != nil {
		value := append([]byte(nil), values[0]...)
		if rune_, err := runes.NewRuneFromBig(new(big.Int).SetBytes(reverse.Bytes(value))); err == nil {
			i.Rune = rune_
		}
	}
}

// takeField removes and returns the values recorded under the tag.
func takeField(fields map[string][][]byte, tag Tag) [][]byte {
	key := string([]byte{byte(tag)})
	values, ok := fields[key]
	if !ok {
		return nil
	}

	delete(fields, key)

	return values
}

// pointerFromValue decodes the little-endian pointer field value.
// Values with significant bytes beyond a u64 are discarded.
func pointerFromValue(value []byte) *uint64 {
	if len(value) > maxPointerLen {
		for _, b := range value[maxPointerLen:] {
			if b != 0 {
				return nil
			}
		}
	}

	var buf [8]byte
	copy(buf[:], value)
	pointer := binary.LittleEndian.Uint64(buf[:])

	return &pointer
}

// PointerValue encodes a pointer as the little-endian field value with
// trailing zeros omitted.
func PointerValue(pointer uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], pointer)

	end := len(buf)
	for end > 0 && buf[end-1] == 0 {
		end--
	}

	return buf[:end]
}

// IntoScript returns Inscription as a script.
func (i *Inscription) IntoScript() ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder()

	// inscription protocol start.
	scriptBuilder.AddOp(txscript.OP_FALSE)
	scriptBuilder.AddOp(txscript.OP_IF)
	scriptBuilder.AddData(protocolID)

	// tags and content.
	if len(i.ContentType) != 0 {
		scriptBuilder.AddOps(TagContentType.IntoDataPush())
		scriptBuilder.AddData([]byte(i.ContentType))
	}

	if i.Pointer != nil {
		scriptBuilder.AddOps(TagPointer.IntoDataPush())
		scriptBuilder.AddData(PointerValue(*i.Pointer))
	}

	for _, parent := range i.Parents {
		scriptBuilder.AddOps(TagParent.IntoDataPush())
		scriptBuilder.AddData(parent.IntoDataPush())
	}

	if len(i.Metadata) != 0 {
		scriptBuilder.AddOps(TagMetadata.IntoDataPush())
		scriptBuilder.AddData(i.Metadata)
	}

	if len(i.Metaprotocol) != 0 {
		scriptBuilder.AddOps(TagMetaprotocol.IntoDataPush())
		scriptBuilder.AddData(i.Metaprotocol)
	}

	if len(i.ContentEncoding) != 0 {
		scriptBuilder.AddOps(TagContentEncoding.IntoDataPush())
		scriptBuilder.AddData([]byte(i.ContentEncoding))
	}

	if i.Delegate != nil {
		scriptBuilder.AddOps(TagDelegate.IntoDataPush())
		scriptBuilder.AddData(i.Delegate.IntoDataPush())
	}

	if i.Rune != nil {
		scriptBuilder.AddOps(TagRune.IntoDataPush())
		scriptBuilder.AddData(reverse.Bytes(i.Rune.Value().Bytes()))
	}

	if len(i.Body) != 0 {
		scriptBuilder.AddOp(txscript.OP_0)
		for _, chunk := range i.PrepareBody() {
			scriptBuilder.AddData(chunk)
		}
	}

	// inscription protocol end.
	scriptBuilder.AddOp(txscript.OP_ENDIF)

	return scriptBuilder.Script()
}

// PrepareBody returns Inscription body as array of bytes arrays with maxBodyDataPushLen size.
func (i *Inscription) PrepareBody() [][]byte {
	buffer := make([][]byte, 0, (len(i.Body)/maxBodyDataPushLen)+1)
	start := 0
	end := maxBodyDataPushLen
	for len(i.Body) >= end {
		buffer = append(buffer, i.Body[start:end])
		start = end
		end += maxBodyDataPushLen
	}

	if start < len(i.Body) {
		buffer = append(buffer, i.Body[start:])
	}

	return buffer
}

// IntoScriptForWitness returns Inscription as a script with pubKey verify at the beginning for witness data.
func (i *Inscription) IntoScriptForWitness(serializedPubKey []byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder()
	scriptBuilder.AddData(serializedPubKey)
	scriptBuilder.AddOp(txscript.OP_CHECKSIG)
	script, err := scriptBuilder.Script()
	if err != nil {
		return nil, err
	}

	inscription, err := i.IntoScript()
	if err != nil {
		return nil, err
	}

	return append(script, inscription...), nil
}

// IntoAddress returns generated address from inscription script data.
func (i *Inscription) IntoAddress(publicKey string, chainParams *chaincfg.Params) (string, error) {
	pubKey, err := hex.DecodeString(publicKey)
	if err != nil {
		return "", err
	}

	pubKeyBtcec, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return "", err
	}

	serializedPubKey := schnorr.SerializePubKey(pubKeyBtcec)
	pkScript, err := i.IntoScriptForWitness(serializedPubKey)
	if err != nil {
		return "", err
	}

	tapLeaf := txscript.NewBaseTapLeaf(pkScript)
	tapScriptTree := txscript.AssembleTaprootScriptTree(tapLeaf)
	tapScriptRootHash := tapScriptTree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(pubKeyBtcec, tapScriptRootHash[:])

	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
	if err != nil {
		return "", err
	}

	return addr.String(), nil
}

// VBytesSize returns estimated inscription input size in virtual bytes.
func (i *Inscription) VBytesSize() (int, error) {
	script, err := i.IntoScript()
	if err != nil {
		return 0, err
	}

	// INFO: pubkey size [1 byte] + pubkey [32 bytes] + OP_CHECKSIG [1 byte] + inscription script size [variable].
	bytesSize := len(script) + 34
	// INFO: use ceil approach.
	vBytesSize := bytesSize / 4
	if bytesSize%4 != 0 {
		vBytesSize++
	}

	return vBytesSize, nil
}
