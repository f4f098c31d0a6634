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
	"encoding/json"
	"math"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

// CJSON is the compact tagged form of a document. Every node starts with a
// varint ctag = nameTag<<3 | typeBits; array and object nodes carry an
// element count. Documents round-trip through CJSON losslessly up to JSON
// number formatting.
const (
	ctagNull   = 0
	ctagVarint = 1
	ctagDouble = 2
	ctagString = 3
	ctagBool   = 4
	ctagArray  = 5
	ctagObject = 6
)

func packCTag(name Tag, typ uint64) uint64 { return uint64(name)<<3 | typ }

func unpackCTag(v uint64) (Tag, uint64) { return Tag(v >> 3), v & 7 }

// JSONToCJSON converts a JSON document into CJSON, creating tags for every
// encountered name.
func JSONToCJSON(doc []byte, tm *TagsMatcher) ([]byte, error) {
	w := binser.NewWriter()
	if err := encodeJSONValue(w, 0, doc, jsonparser.Object, tm); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeJSONValue(w *binser.Writer, name Tag, data []byte, vt jsonparser.ValueType, tm *TagsMatcher) error {
	switch vt {
	case jsonparser.Null:
		w.PutVarUInt(packCTag(name, ctagNull))
	case jsonparser.Boolean:
		w.PutVarUInt(packCTag(name, ctagBool))
		w.PutBool(string(data) == "true")
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(data)
		if err != nil {
			return dberrors.Wrap(dberrors.KindParse, err, "parse number")
		}
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e18 {
			w.PutVarUInt(packCTag(name, ctagVarint))
			w.PutVarInt(int64(f))
		} else {
			w.PutVarUInt(packCTag(name, ctagDouble))
			w.PutDouble(f)
		}
	case jsonparser.String:
		s, err := jsonparser.ParseString(data)
		if err != nil {
			return dberrors.Wrap(dberrors.KindParse, err, "parse string")
		}
		w.PutVarUInt(packCTag(name, ctagString))
		w.PutVString(s)
	case jsonparser.Array:
		var elems [][]byte
		var types []jsonparser.ValueType
		if _, err := jsonparser.ArrayEach(data, func(v []byte, t jsonparser.ValueType, _ int, _ error) {
			elems = append(elems, v)
			types = append(types, t)
		}); err != nil {
			return dberrors.Wrap(dberrors.KindParse, err, "parse array")
		}
		w.PutVarUInt(packCTag(name, ctagArray))
		w.PutVarUInt(uint64(len(elems)))
		for i, e := range elems {
			if err := encodeJSONValue(w, 0, e, types[i], tm); err != nil {
				return err
			}
		}
	case jsonparser.Object:
		type kv struct {
			tag Tag
			val []byte
			vt  jsonparser.ValueType
		}
		var fields []kv
		err := jsonparser.ObjectEach(data, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
			fields = append(fields, kv{tag: tm.Name2Tag(string(key), true), val: value, vt: vt})
			return nil
		})
		if err != nil {
			return dberrors.Wrap(dberrors.KindParse, err, "parse object")
		}
		w.PutVarUInt(packCTag(name, ctagObject))
		w.PutVarUInt(uint64(len(fields)))
		for _, f := range fields {
			if err := encodeJSONValue(w, f.tag, f.val, f.vt, tm); err != nil {
				return err
			}
		}
	default:
		return dberrors.Parse("unexpected json value type %v", vt)
	}
	return nil
}

// CJSONToJSON renders a CJSON document back to JSON.
func CJSONToJSON(cj []byte, tm *TagsMatcher) ([]byte, error) {
	v, err := decodeCJSONValue(binser.NewReader(cj), tm)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(v.val)
	if err != nil {
		return nil, errors.Wrap(err, "render cjson to json")
	}
	return out, nil
}

type decoded struct {
	name Tag
	val  interface{}
}

func decodeCJSONValue(r *binser.Reader, tm *TagsMatcher) (decoded, error) {
	name, typ := unpackCTag(r.VarUInt())
	d := decoded{name: name}
	switch typ {
	case ctagNull:
		d.val = nil
	case ctagVarint:
		d.val = r.VarInt()
	case ctagDouble:
		d.val = r.Double()
	case ctagString:
		d.val = r.VString()
	case ctagBool:
		d.val = r.Bool()
	case ctagArray:
		n := r.VarUInt()
		arr := make([]interface{}, 0, n)
		for i := uint64(0); i < n; i++ {
			e, err := decodeCJSONValue(r, tm)
			if err != nil {
				return d, err
			}
			arr = append(arr, e.val)
		}
		d.val = arr
	case ctagObject:
		n := r.VarUInt()
		obj := make(map[string]interface{}, n)
		for i := uint64(0); i < n; i++ {
			e, err := decodeCJSONValue(r, tm)
			if err != nil {
				return d, err
			}
			obj[tm.Tag2Name(e.name)] = e.val
		}
		d.val = obj
	default:
		return d, dberrors.New(dberrors.KindParseBin, "bad ctag type %d", typ)
	}
	if err := r.Err(); err != nil {
		return d, err
	}
	return d, nil
}

// ValuesByTagsPath extracts the values found at tp inside a CJSON document;
// used by sparse indexes and update expressions. Arrays along the path fan
// out.
func ValuesByTagsPath(cj []byte, tp TagsPath, tm *TagsMatcher) (Variants, error) {
	d, err := decodeCJSONValue(binser.NewReader(cj), tm)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tp))
	for i, tag := range tp {
		names[i] = tm.Tag2Name(tag)
	}
	var out Variants
	collectByPath(d.val, names, &out)
	return out, nil
}

func collectByPath(val interface{}, path []string, out *Variants) {
	if len(path) == 0 {
		switch t := val.(type) {
		case []interface{}:
			for _, e := range t {
				collectByPath(e, nil, out)
			}
		case nil:
			*out = append(*out, Null())
		case bool:
			*out = append(*out, Bool(t))
		case int64:
			*out = append(*out, Int64Value(t))
		case float64:
			*out = append(*out, Double(t))
		case string:
			*out = append(*out, String(t))
		}
		return
	}
	switch t := val.(type) {
	case map[string]interface{}:
		if sub, ok := t[path[0]]; ok {
			collectByPath(sub, path[1:], out)
		}
	case []interface{}:
		for _, e := range t {
			collectByPath(e, path, out)
		}
	}
}

// MsgPackToJSON converts a MsgPack-encoded document into JSON so it can
// flow through the same item path.
func MsgPackToJSON(data []byte) ([]byte, error) {
	var v map[string]interface{}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, dberrors.Wrap(dberrors.KindParse, err, "decode msgpack item")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "render msgpack item as json")
	}
	return out, nil
}

// JSONToMsgPack converts a JSON document into MsgPack.
func JSONToMsgPack(doc []byte) ([]byte, error) {
	var v map[string]interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, dberrors.Wrap(dberrors.KindParse, err, "decode json item")
	}
	out, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode msgpack item")
	}
	return out, nil
}
