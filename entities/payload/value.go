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

package payload

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

// Value is the per-row record: one slot of Variants per payload field plus
// the row LSN. The backing data is shared between copies and guarded by a
// reference count; CopyForWrite unshares before mutation so in-flight
// readers keep their view for the duration of a select.
type Value struct {
	d *valueData
}

type valueData struct {
	refs  int64
	lsn   int64
	slots []Variants
}

func NewValue(t *Type) Value {
	return Value{d: &valueData{refs: 1, slots: make([]Variants, t.NumFields())}}
}

func (v Value) IsFree() bool { return v.d == nil }

func (v *Value) AddRef() {
	if v.d != nil {
		atomic.AddInt64(&v.d.refs, 1)
	}
}

// Release drops one reference and reports whether this was the last one.
func (v *Value) Release() bool {
	if v.d == nil {
		return false
	}
	return atomic.AddInt64(&v.d.refs, -1) == 0
}

func (v Value) LSN() int64       { return v.d.lsn }
func (v *Value) SetLSN(l int64)  { v.d.lsn = l }
func (v Value) NumFields() int   { return len(v.d.slots) }

// CopyForWrite returns a value safe to mutate: either the receiver when it
// is exclusively owned, or a deep copy of the slots.
func (v Value) CopyForWrite() Value {
	if atomic.LoadInt64(&v.d.refs) == 1 {
		return v
	}
	nd := &valueData{refs: 1, lsn: v.d.lsn, slots: make([]Variants, len(v.d.slots))}
	for i, s := range v.d.slots {
		nd.slots[i] = append(Variants(nil), s...)
	}
	return Value{d: nd}
}

func (v Value) Get(field int) Variants {
	if field < 0 || field >= len(v.d.slots) {
		return nil
	}
	return v.d.slots[field]
}

func (v Value) Set(field int, vals Variants) error {
	if field < 0 || field >= len(v.d.slots) {
		return dberrors.Params("field %d out of payload range [0..%d)", field, len(v.d.slots))
	}
	v.d.slots[field] = vals
	return nil
}

// ResizeFields grows the slot list after a payload type change; existing
// slots keep their values.
func (v Value) ResizeFields(n int) Value {
	for len(v.d.slots) < n {
		v.d.slots = append(v.d.slots, nil)
	}
	return v
}

// Hash returns the row hash used for the namespace dataHash XOR invariant.
// The tuple slot participates, so any document change is observable.
func (v Value) Hash() uint64 {
	var d xxhash.Digest
	d.Reset()
	var tmp [8]byte
	for _, slot := range v.d.slots {
		for _, val := range slot {
			putUint64(tmp[:], val.Hash())
			_, _ = d.Write(tmp[:])
		}
		tmp[0] = 0xfe
		_, _ = d.Write(tmp[:1])
	}
	return d.Sum64()
}

// SerializeFields writes the values of the given fields; used to build the
// storage key from the PK fields.
func (v Value) SerializeFields(w *binser.Writer, fields []int) {
	for _, f := range fields {
		for _, val := range v.Get(f) {
			switch val.Kind() {
			case KindInt, KindInt64, KindBool:
				w.PutVarInt(val.Int64())
			case KindDouble:
				w.PutDouble(val.Float())
			case KindString:
				w.PutVString(val.Str())
			case KindNull:
				w.PutUInt8(0xff)
			}
		}
	}
}

// RetiredStrings collects the string values of the row; fed to the
// StringsHolder when the row is deleted or overwritten.
func (v Value) RetiredStrings() []string {
	var out []string
	for _, slot := range v.d.slots {
		for _, val := range slot {
			if val.Kind() == KindString && val.Str() != "" {
				out = append(out, val.Str())
			}
		}
	}
	return out
}
