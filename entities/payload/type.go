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

// Package payload holds the record layout of a namespace: the ordered field
// list (Type), the per-row value container (Value), and the JSON-path to
// tag mapping (TagsMatcher).
package payload

import (
	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

// TupleField is the reserved slot 0 holding the CJSON tuple of all
// non-indexed parts of the document.
const TupleField = 0

const TupleFieldName = "-tuple"

type Field struct {
	Name      string
	Kind      Kind
	IsArray   bool
	JSONPaths []string
	Collate   CollateOpts
}

// Type describes the slot layout of every row in a namespace. Slot 0 is
// always the tuple. AddField and DropField modify the receiver; Clone
// returns a copy that can change without affecting holders of the original.
type Type struct {
	fields []Field
	byName map[string]int
}

func NewType() *Type {
	t := &Type{
		fields: []Field{{Name: TupleFieldName, Kind: KindString, JSONPaths: []string{}}},
		byName: map[string]int{TupleFieldName: 0},
	}
	return t
}

func (t *Type) NumFields() int { return len(t.fields) }

func (t *Type) Field(idx int) Field { return t.fields[idx] }

func (t *Type) FieldByName(name string) (int, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// FieldByJSONPath resolves a top-level json path to its slot.
func (t *Type) FieldByJSONPath(path string) (int, bool) {
	for i, f := range t.fields {
		for _, p := range f.JSONPaths {
			if p == path {
				return i, true
			}
		}
	}
	return 0, false
}

// Clone returns a copy that can take new fields without affecting readers
// of the original.
func (t *Type) Clone() *Type {
	nt := &Type{
		fields: make([]Field, len(t.fields)),
		byName: make(map[string]int, len(t.byName)),
	}
	copy(nt.fields, t.fields)
	for k, v := range t.byName {
		nt.byName[k] = v
	}
	return nt
}

func (t *Type) AddField(f Field) (int, error) {
	if _, ok := t.byName[f.Name]; ok {
		return 0, dberrors.Conflict("field %q already exists in payload type", f.Name)
	}
	if len(f.JSONPaths) == 0 {
		f.JSONPaths = []string{f.Name}
	}
	t.fields = append(t.fields, f)
	idx := len(t.fields) - 1
	t.byName[f.Name] = idx
	return idx, nil
}

func (t *Type) DropField(name string) error {
	idx, ok := t.byName[name]
	if !ok {
		return dberrors.NotFound("field %q not found in payload type", name)
	}
	t.fields = append(t.fields[:idx], t.fields[idx+1:]...)
	delete(t.byName, name)
	for i := idx; i < len(t.fields); i++ {
		t.byName[t.fields[i].Name] = i
	}
	return nil
}

func (t *Type) Serialize(w *binser.Writer) {
	w.PutVarUInt(uint64(len(t.fields)))
	for _, f := range t.fields {
		w.PutVString(f.Name)
		w.PutUInt8(uint8(f.Kind))
		w.PutBool(f.IsArray)
		w.PutVarUInt(uint64(len(f.JSONPaths)))
		for _, p := range f.JSONPaths {
			w.PutVString(p)
		}
		w.PutUInt8(uint8(f.Collate.Mode))
		w.PutVString(f.Collate.SortOrderTable)
	}
}

func TypeFromBytes(r *binser.Reader) (*Type, error) {
	n := r.VarUInt()
	t := &Type{byName: make(map[string]int, n)}
	for i := uint64(0); i < n; i++ {
		f := Field{
			Name:    r.VString(),
			Kind:    Kind(r.UInt8()),
			IsArray: r.Bool(),
		}
		np := r.VarUInt()
		for j := uint64(0); j < np; j++ {
			f.JSONPaths = append(f.JSONPaths, r.VString())
		}
		f.Collate.Mode = CollateMode(r.UInt8())
		f.Collate.SortOrderTable = r.VString()
		t.fields = append(t.fields, f)
		t.byName[f.Name] = len(t.fields) - 1
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(t.fields) == 0 || t.fields[0].Name != TupleFieldName {
		return nil, dberrors.New(dberrors.KindParseBin, "payload type misses tuple field")
	}
	return t, nil
}
