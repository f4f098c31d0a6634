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

package query

import (
	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
)

// Binary query layout for the RPC surface: every tree entry is prefixed
// with a type byte, values with a kind byte. The codec is
// self-describing, so decoders can skip unknown trailing sections added
// by newer writers.
const (
	binEntryCond byte = iota + 1
	binEntryBracketOpen
	binEntryBracketClose
	binEntryJoinRef
	binEntryBetweenFields
	binEntryAlwaysFalse
	binEntryEnd
)

// Serialize writes the query in its tagged binary form.
func (q *Query) Serialize(w *binser.Writer) {
	w.PutVString(q.Namespace)
	w.PutVarInt(int64(q.Limit))
	w.PutVarInt(int64(q.Offset))
	w.PutUInt8(uint8(q.CalcTotal))
	w.PutBool(q.Explain)
	w.PutBool(q.StrictMode)

	serializeNodes(w, q.Entries)
	w.PutUInt8(binEntryEnd)

	w.PutVarUInt(uint64(len(q.Sort)))
	for _, s := range q.Sort {
		w.PutVString(s.Field)
		w.PutBool(s.Desc)
		serializeVariants(w, s.ForcedValues)
	}
	w.PutVarUInt(uint64(len(q.Aggregations)))
	for _, a := range q.Aggregations {
		w.PutUInt8(uint8(a.Type))
		serializeStrings(w, a.Fields)
		w.PutVarUInt(uint64(len(a.Sort)))
		for _, s := range a.Sort {
			w.PutVString(s.Field)
			w.PutBool(s.Desc)
		}
		w.PutVarInt(int64(a.Limit))
		w.PutVarInt(int64(a.Offset))
	}
	w.PutVarUInt(uint64(len(q.UpdateFields)))
	for _, u := range q.UpdateFields {
		w.PutVString(u.Column)
		w.PutUInt8(uint8(u.Mode))
		w.PutBool(u.IsExpression)
		serializeVariants(w, u.Values)
	}
	serializeStrings(w, q.SelectFilter)
	serializeStrings(w, q.SelectFuncs)
	w.PutVarUInt(uint64(len(q.EqualPositions)))
	for _, ep := range q.EqualPositions {
		serializeStrings(w, ep)
	}
	w.PutVarUInt(uint64(len(q.Joins)))
	for i := range q.Joins {
		serializeJoin(w, &q.Joins[i])
	}
	w.PutVarUInt(uint64(len(q.MergeQueries)))
	for i := range q.MergeQueries {
		serializeJoin(w, &q.MergeQueries[i])
	}
}

func serializeJoin(w *binser.Writer, j *JoinQuery) {
	w.PutUInt8(uint8(j.Type))
	w.PutVarUInt(uint64(len(j.On)))
	for _, on := range j.On {
		w.PutUInt8(uint8(on.Op))
		w.PutVString(on.LeftField)
		w.PutUInt8(uint8(on.Cond))
		w.PutVString(on.RightField)
	}
	j.Query.Serialize(w)
}

func serializeNodes(w *binser.Writer, nodes []Node) {
	for _, n := range nodes {
		switch {
		case n.AlwaysFalse:
			w.PutUInt8(binEntryAlwaysFalse)
			w.PutUInt8(uint8(n.Op))
		case n.Bracket != nil:
			w.PutUInt8(binEntryBracketOpen)
			w.PutUInt8(uint8(n.Op))
			w.PutVarUInt(uint64(len(n.Bracket.EqualPositions)))
			for _, ep := range n.Bracket.EqualPositions {
				serializeStrings(w, ep)
			}
			serializeNodes(w, n.Bracket.Nodes)
			w.PutUInt8(binEntryBracketClose)
		case n.JoinRef != nil:
			w.PutUInt8(binEntryJoinRef)
			w.PutUInt8(uint8(n.Op))
			w.PutVarInt(int64(n.JoinRef.JoinIdx))
		case n.BetweenFields != nil:
			w.PutUInt8(binEntryBetweenFields)
			w.PutUInt8(uint8(n.Op))
			w.PutVString(n.BetweenFields.FirstField)
			w.PutUInt8(uint8(n.BetweenFields.Cond))
			w.PutVString(n.BetweenFields.SecondField)
		case n.Cond != nil:
			w.PutUInt8(binEntryCond)
			w.PutUInt8(uint8(n.Op))
			w.PutVString(n.Cond.Field)
			w.PutUInt8(uint8(n.Cond.Cond))
			serializeVariants(w, n.Cond.Values)
		}
	}
}

func serializeStrings(w *binser.Writer, ss []string) {
	w.PutVarUInt(uint64(len(ss)))
	for _, s := range ss {
		w.PutVString(s)
	}
}

func serializeVariants(w *binser.Writer, vv payload.Variants) {
	w.PutVarUInt(uint64(len(vv)))
	for _, v := range vv {
		w.PutUInt8(uint8(v.Kind()))
		switch v.Kind() {
		case payload.KindInt, payload.KindInt64:
			w.PutVarInt(v.Int64())
		case payload.KindDouble:
			w.PutDouble(v.Float())
		case payload.KindBool:
			w.PutBool(v.Bool())
		case payload.KindString:
			w.PutVString(v.Str())
		}
	}
}

// Deserialize reads a query back from its tagged binary form.
func Deserialize(r *binser.Reader) (*Query, error) {
	q := &Query{}
	q.Namespace = r.VString()
	q.Limit = int(r.VarInt())
	q.Offset = int(r.VarInt())
	q.CalcTotal = CalcTotalMode(r.UInt8())
	q.Explain = r.Bool()
	q.StrictMode = r.Bool()

	nodes, err := deserializeNodes(r)
	if err != nil {
		return nil, err
	}
	q.Entries = nodes

	ns := r.VarUInt()
	for i := uint64(0); i < ns; i++ {
		s := SortEntry{Field: r.VString(), Desc: r.Bool()}
		if s.ForcedValues, err = deserializeVariants(r); err != nil {
			return nil, err
		}
		q.Sort = append(q.Sort, s)
	}
	na := r.VarUInt()
	for i := uint64(0); i < na; i++ {
		a := AggregateEntry{Type: AggType(r.UInt8())}
		a.Fields = deserializeStrings(r)
		nsrt := r.VarUInt()
		for j := uint64(0); j < nsrt; j++ {
			a.Sort = append(a.Sort, SortEntry{Field: r.VString(), Desc: r.Bool()})
		}
		a.Limit = int(r.VarInt())
		a.Offset = int(r.VarInt())
		q.Aggregations = append(q.Aggregations, a)
	}
	nu := r.VarUInt()
	for i := uint64(0); i < nu; i++ {
		u := UpdateEntry{Column: r.VString(), Mode: UpdateMode(r.UInt8()), IsExpression: r.Bool()}
		if u.Values, err = deserializeVariants(r); err != nil {
			return nil, err
		}
		q.UpdateFields = append(q.UpdateFields, u)
	}
	q.SelectFilter = deserializeStrings(r)
	q.SelectFuncs = deserializeStrings(r)
	nep := r.VarUInt()
	for i := uint64(0); i < nep; i++ {
		q.EqualPositions = append(q.EqualPositions, deserializeStrings(r))
	}
	nj := r.VarUInt()
	for i := uint64(0); i < nj; i++ {
		j, err := deserializeJoin(r)
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, *j)
	}
	nm := r.VarUInt()
	for i := uint64(0); i < nm; i++ {
		j, err := deserializeJoin(r)
		if err != nil {
			return nil, err
		}
		q.MergeQueries = append(q.MergeQueries, *j)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

func deserializeJoin(r *binser.Reader) (*JoinQuery, error) {
	j := &JoinQuery{Type: JoinType(r.UInt8())}
	non := r.VarUInt()
	for i := uint64(0); i < non; i++ {
		j.On = append(j.On, JoinCondition{
			Op:         OpType(r.UInt8()),
			LeftField:  r.VString(),
			Cond:       CondType(r.UInt8()),
			RightField: r.VString(),
		})
	}
	inner, err := Deserialize(r)
	if err != nil {
		return nil, err
	}
	j.Query = *inner
	return j, nil
}

func deserializeNodes(r *binser.Reader) ([]Node, error) {
	var nodes []Node
	for {
		typ := r.UInt8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		switch typ {
		case binEntryEnd, binEntryBracketClose:
			return nodes, nil
		case binEntryAlwaysFalse:
			nodes = append(nodes, Node{Op: OpType(r.UInt8()), AlwaysFalse: true})
		case binEntryBracketOpen:
			op := OpType(r.UInt8())
			br := &Bracket{}
			nep := r.VarUInt()
			for i := uint64(0); i < nep; i++ {
				br.EqualPositions = append(br.EqualPositions, deserializeStrings(r))
			}
			sub, err := deserializeNodes(r)
			if err != nil {
				return nil, err
			}
			br.Nodes = sub
			nodes = append(nodes, Node{Op: op, Bracket: br})
		case binEntryJoinRef:
			op := OpType(r.UInt8())
			nodes = append(nodes, Node{Op: op, JoinRef: &JoinRef{JoinIdx: int(r.VarInt())}})
		case binEntryBetweenFields:
			op := OpType(r.UInt8())
			bf := &BetweenFieldsEntry{FirstField: r.VString()}
			bf.Cond = CondType(r.UInt8())
			bf.SecondField = r.VString()
			nodes = append(nodes, Node{Op: op, BetweenFields: bf})
		case binEntryCond:
			op := OpType(r.UInt8())
			c := &CondEntry{Field: r.VString()}
			c.Cond = CondType(r.UInt8())
			vals, err := deserializeVariants(r)
			if err != nil {
				return nil, err
			}
			c.Values = vals
			nodes = append(nodes, Node{Op: op, Cond: c})
		default:
			return nil, dberrors.New(dberrors.KindParseBin, "unknown query entry type %d", typ)
		}
	}
}

func deserializeStrings(r *binser.Reader) []string {
	n := r.VarUInt()
	var out []string
	for i := uint64(0); i < n; i++ {
		out = append(out, r.VString())
	}
	return out
}

func deserializeVariants(r *binser.Reader) (payload.Variants, error) {
	n := r.VarUInt()
	var out payload.Variants
	for i := uint64(0); i < n; i++ {
		kind := payload.Kind(r.UInt8())
		switch kind {
		case payload.KindNull:
			out = append(out, payload.Null())
		case payload.KindInt:
			out = append(out, payload.Int(int(r.VarInt())))
		case payload.KindInt64:
			out = append(out, payload.Int64Value(r.VarInt()))
		case payload.KindDouble:
			out = append(out, payload.Double(r.Double()))
		case payload.KindBool:
			out = append(out, payload.Bool(r.Bool()))
		case payload.KindString:
			out = append(out, payload.String(r.VString()))
		default:
			return nil, dberrors.New(dberrors.KindParseBin, "unknown value kind %d", kind)
		}
	}
	return out, nil
}
