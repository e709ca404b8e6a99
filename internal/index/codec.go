// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"encoding/binary"
	"math/big"
)

// writer builds fixed-layout entry rows.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 128)}
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) u8(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) raw(v []byte) { w.buf = append(w.buf, v...) }

func (w *writer) str(v string) {
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// u128 writes a non-negative big integer as 16 big-endian bytes.
func (w *writer) u128(v *big.Int) {
	var buf [16]byte
	if v != nil {
		v.FillBytes(buf[:])
	}
	w.raw(buf[:])
}

func (w *writer) optU64(v *uint64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u64(*v)
}

func (w *writer) optU128(v *big.Int) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u128(v)
}

// reader decodes entry rows, latching the first error.
type reader struct {
	buf []byte
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) take(n int) []byte {
	if r.err != nil || len(r.buf) < n {
		r.err = errCorruptEntry
		return make([]byte, n)
	}

	v := r.buf[:n]
	r.buf = r.buf[n:]

	return v
}

func (r *reader) u8() byte    { return r.take(1)[0] }
func (r *reader) u16() uint16 { return binary.BigEndian.Uint16(r.take(2)) }
func (r *reader) u32() uint32 { return binary.BigEndian.Uint32(r.take(4)) }
func (r *reader) u64() uint64 { return binary.BigEndian.Uint64(r.take(8)) }

func (r *reader) bool() bool { return r.u8() == 1 }

func (r *reader) raw(n int) []byte { return r.take(n) }

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil || uint32(len(r.buf)) < n {
		r.err = errCorruptEntry
		return ""
	}

	return string(r.take(int(n)))
}

func (r *reader) u128() *big.Int {
	return new(big.Int).SetBytes(r.take(16))
}

func (r *reader) optU64() *uint64 {
	if r.u8() == 0 {
		return nil
	}

	v := r.u64()

	return &v
}

func (r *reader) optU128() *big.Int {
	if r.u8() == 0 {
		return nil
	}

	return r.u128()
}
