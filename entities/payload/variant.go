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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/weaviate/kestrel/entities/dberrors"
)

// Kind enumerates the value kinds a payload field can hold. Composite is a
// virtual kind: composite index keys are evaluated against the whole row and
// never stored in a slot.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindInt64
	KindDouble
	KindBool
	KindString
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func KindFromString(s string) (Kind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "int64":
		return KindInt64, nil
	case "double":
		return KindDouble, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "composite":
		return KindComposite, nil
	default:
		return KindNull, dberrors.Params("unknown field kind %q", s)
	}
}

// Variant is a single typed value. The numeric fields overlay: Int and
// Int64 use n, Double uses f, Bool uses n as 0/1.
type Variant struct {
	kind Kind
	n    int64
	f    float64
	s    string
}

func Null() Variant                { return Variant{kind: KindNull} }
func Int(v int) Variant            { return Variant{kind: KindInt, n: int64(v)} }
func Int64Value(v int64) Variant   { return Variant{kind: KindInt64, n: v} }
func Double(v float64) Variant     { return Variant{kind: KindDouble, f: v} }
func Bool(v bool) Variant          { return Variant{kind: KindBool, n: b2i(v)} }
func String(v string) Variant      { return Variant{kind: KindString, s: v} }

func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (v Variant) Kind() Kind      { return v.kind }
func (v Variant) IsNull() bool    { return v.kind == KindNull }
func (v Variant) Int() int        { return int(v.n) }
func (v Variant) Int64() int64    { return v.n }
func (v Variant) Float() float64  { return v.f }
func (v Variant) Bool() bool      { return v.n != 0 }
func (v Variant) Str() string     { return v.s }

// AsFloat widens any numeric kind to float64; used by relaxed comparison
// and the aggregation folds.
func (v Variant) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt, KindInt64, KindBool:
		return float64(v.n), true
	case KindDouble:
		return v.f, true
	default:
		return 0, false
	}
}

// FromInterface converts a decoded JSON value into a Variant of the target
// kind, converting across numeric kinds where lossless.
func FromInterface(val interface{}, target Kind) (Variant, error) {
	switch t := val.(type) {
	case nil:
		return Null(), nil
	case bool:
		if target != KindBool && target != KindNull {
			return Variant{}, dberrors.Params("can't convert bool to %s", target)
		}
		return Bool(t), nil
	case float64:
		switch target {
		case KindInt:
			return Int(int(t)), nil
		case KindInt64:
			return Int64Value(int64(t)), nil
		case KindDouble, KindNull:
			return Double(t), nil
		case KindBool:
			return Bool(t != 0), nil
		}
		return Variant{}, dberrors.Params("can't convert number to %s", target)
	case int64:
		switch target {
		case KindInt:
			return Int(int(t)), nil
		case KindInt64, KindNull:
			return Int64Value(t), nil
		case KindDouble:
			return Double(float64(t)), nil
		case KindBool:
			return Bool(t != 0), nil
		}
		return Variant{}, dberrors.Params("can't convert integer to %s", target)
	case int:
		return FromInterface(int64(t), target)
	case string:
		switch target {
		case KindString, KindNull:
			return String(t), nil
		case KindInt:
			n, err := strconv.Atoi(t)
			if err != nil {
				return Variant{}, dberrors.Params("can't convert %q to int", t)
			}
			return Int(n), nil
		case KindInt64:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return Variant{}, dberrors.Params("can't convert %q to int64", t)
			}
			return Int64Value(n), nil
		case KindDouble:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return Variant{}, dberrors.Params("can't convert %q to double", t)
			}
			return Double(f), nil
		}
		return Variant{}, dberrors.Params("can't convert string to %s", target)
	default:
		return Variant{}, dberrors.Params("unsupported value type %T", val)
	}
}

// Interface returns the value as a plain Go value for JSON encoding.
func (v Variant) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindInt:
		return int(v.n)
	case KindInt64:
		return v.n
	case KindDouble:
		return v.f
	case KindBool:
		return v.n != 0
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Compare orders v against other. Numeric kinds compare numerically across
// each other; strings compare per the collate options. Null sorts first.
// Comparing a string against a number is a Params error.
func (v Variant) Compare(other Variant, collate *CollateOpts) (int, error) {
	if v.kind == KindNull || other.kind == KindNull {
		switch {
		case v.kind == other.kind:
			return 0, nil
		case v.kind == KindNull:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if v.kind == KindString || other.kind == KindString {
		if v.kind != other.kind {
			return 0, dberrors.Params("can't compare %s with %s", v.kind, other.kind)
		}
		return collateCompare(v.s, other.s, collate), nil
	}
	a, _ := v.AsFloat()
	b, _ := other.AsFloat()
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// RelaxedEqual is the cross-type equality used by DISTINCT and equality
// joins: numerically equal values of different numeric kinds are equal,
// nulls are only equal to nulls.
func (v Variant) RelaxedEqual(other Variant) bool {
	if v.kind == KindNull || other.kind == KindNull {
		return v.kind == other.kind
	}
	if v.kind == KindString || other.kind == KindString {
		return v.kind == other.kind && v.s == other.s
	}
	a, _ := v.AsFloat()
	b, _ := other.AsFloat()
	return a == b
}

// Hash returns a stable 64-bit hash of the value. Numerically equal ints of
// different widths hash equally, so relaxed-keyed sets can use it directly.
func (v Variant) Hash() uint64 {
	var d xxhash.Digest
	d.Reset()
	var tmp [9]byte
	switch v.kind {
	case KindNull:
		tmp[0] = 0
		_, _ = d.Write(tmp[:1])
	case KindInt, KindInt64, KindBool:
		tmp[0] = 1
		putUint64(tmp[1:], uint64(v.n))
		_, _ = d.Write(tmp[:9])
	case KindDouble:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			tmp[0] = 1
			putUint64(tmp[1:], uint64(int64(v.f)))
		} else {
			tmp[0] = 2
			putUint64(tmp[1:], math.Float64bits(v.f))
		}
		_, _ = d.Write(tmp[:9])
	case KindString:
		tmp[0] = 3
		_, _ = d.Write(tmp[:1])
		_, _ = d.WriteString(v.s)
	}
	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (v Variant) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt, KindInt64:
		return strconv.FormatInt(v.n, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case KindString:
		return v.s
	default:
		return "<composite>"
	}
}

// Variants is a list of values, e.g. all values of an array field or the
// value set of an IN condition.
type Variants []Variant

func (vv Variants) String() string {
	parts := make([]string, len(vv))
	for i, v := range vv {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (vv Variants) Hash() uint64 {
	h := uint64(0)
	for _, v := range vv {
		h = h*31 + v.Hash()
	}
	return h
}
