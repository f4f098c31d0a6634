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

package db

import (
	"github.com/buger/jsonparser"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
)

// ItemMode selects the mutation semantics of a modify call.
type ItemMode int

const (
	ModeInsert ItemMode = iota
	ModeUpdate
	ModeUpsert
	ModeDelete
)

func (m ItemMode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	case ModeUpsert:
		return "upsert"
	case ModeDelete:
		return "delete"
	default:
		return "?"
	}
}

// Item is one document on its way into or out of a namespace.
type Item struct {
	json     []byte
	cjson    []byte
	precepts []string
	id       int
}

// NewItem wraps a JSON document.
func NewItem(doc []byte) *Item {
	return &Item{json: append([]byte(nil), doc...), id: -1}
}

// NewItemMsgPack wraps a MsgPack document.
func NewItemMsgPack(doc []byte) (*Item, error) {
	j, err := payload.MsgPackToJSON(doc)
	if err != nil {
		return nil, err
	}
	return NewItem(j), nil
}

// SetPrecepts attaches server-side field expressions such as
// "id=serial()" or "updated_at=now()"; they run before indexing.
func (i *Item) SetPrecepts(precepts ...string) { i.precepts = precepts }

// JSON returns the document as stored.
func (i *Item) JSON() []byte { return i.json }

// CJSON returns the document's compact form; valid after the item passed
// through a namespace.
func (i *Item) CJSON() []byte { return i.cjson }

// RowID reports the row the item landed in, -1 before a modify.
func (i *Item) RowID() int { return i.id }

// MsgPack renders the document as MsgPack.
func (i *Item) MsgPack() ([]byte, error) {
	return payload.JSONToMsgPack(i.json)
}

// fieldValues extracts the values of one indexed field from the document.
func (i *Item) fieldValues(f payload.Field) (payload.Variants, error) {
	for _, path := range f.JSONPaths {
		keys := splitJSONPath(path)
		raw, vt, _, err := jsonparser.Get(i.json, keys...)
		if err == jsonparser.KeyPathNotFoundError {
			continue
		}
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindParse, err, "extract field "+f.Name)
		}
		return valuesFromRaw(raw, vt, f)
	}
	return nil, nil
}

func valuesFromRaw(raw []byte, vt jsonparser.ValueType, f payload.Field) (payload.Variants, error) {
	switch vt {
	case jsonparser.Null:
		return payload.Variants{payload.Null()}, nil
	case jsonparser.Array:
		var out payload.Variants
		var innerErr error
		_, err := jsonparser.ArrayEach(raw, func(v []byte, ivt jsonparser.ValueType, _ int, _ error) {
			if innerErr != nil {
				return
			}
			vals, err := valuesFromRaw(v, ivt, f)
			if err != nil {
				innerErr = err
				return
			}
			out = append(out, vals...)
		})
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindParse, err, "extract array field "+f.Name)
		}
		if innerErr != nil {
			return nil, innerErr
		}
		return out, nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindParse, err, "parse string field "+f.Name)
		}
		v, err := payload.FromInterface(s, f.Kind)
		if err != nil {
			return nil, err
		}
		return payload.Variants{v}, nil
	case jsonparser.Number:
		n, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindParse, err, "parse number field "+f.Name)
		}
		v, err := payload.FromInterface(n, f.Kind)
		if err != nil {
			return nil, err
		}
		return payload.Variants{v}, nil
	case jsonparser.Boolean:
		v, err := payload.FromInterface(string(raw) == "true", f.Kind)
		if err != nil {
			return nil, err
		}
		return payload.Variants{v}, nil
	default:
		return nil, dberrors.Params("field %q has unsupported json type", f.Name)
	}
}

func splitJSONPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}
