//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package binser implements the compact binary writer/reader used by the
// CJSON codec, the WAL and the persisted system records. Integers use
// varint/zigzag encoding, strings and byte blobs are length-prefixed.
package binser

import (
	"encoding/binary"
	"math"

	"github.com/weaviate/kestrel/entities/dberrors"
)

type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) PutUInt8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutUInt16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) PutUInt32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutUInt64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutVarUInt(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) PutVarInt(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

func (w *Writer) PutDouble(v float64) {
	w.PutUInt64(math.Float64bits(v))
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUInt8(1)
	} else {
		w.PutUInt8(0)
	}
}

func (w *Writer) PutVString(s string) {
	w.PutVarUInt(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) PutVBytes(b []byte) {
	w.PutVarUInt(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Append writes raw bytes without a length prefix.
func (w *Writer) Append(b []byte) {
	w.buf = append(w.buf, b...)
}

type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error { return r.err }
func (r *Reader) Pos() int   { return r.pos }
func (r *Reader) EOF() bool  { return r.pos >= len(r.buf) }

func (r *Reader) fail() {
	if r.err == nil {
		r.err = dberrors.New(dberrors.KindParseBin, "unexpected end of buffer at %d", r.pos)
	}
}

func (r *Reader) UInt8() uint8 {
	if r.pos+1 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *Reader) UInt16() uint16 {
	if r.pos+2 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *Reader) UInt32() uint32 {
	if r.pos+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *Reader) UInt64() uint64 {
	if r.pos+8 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *Reader) VarUInt() uint64 {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.pos += n
	return v
}

func (r *Reader) VarInt() int64 {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.pos += n
	return v
}

func (r *Reader) Double() float64 {
	return math.Float64frombits(r.UInt64())
}

func (r *Reader) Bool() bool {
	return r.UInt8() != 0
}

func (r *Reader) VString() string {
	n := r.VarUInt()
	if r.pos+int(n) > len(r.buf) {
		r.fail()
		return ""
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

func (r *Reader) VBytes() []byte {
	n := r.VarUInt()
	if r.pos+int(n) > len(r.buf) {
		r.fail()
		return nil
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}
