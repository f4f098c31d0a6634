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
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/weaviate/kestrel/adapters/repos/db/wal"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// UpdateQuery applies the query's update entries to every matching row.
// The WAL carries one statement record for the whole batch.
func (ns *Namespace) UpdateQuery(ctx context.Context, q *query.Query, resolve NamespaceResolver) (*QueryResults, error) {
	start := time.Now()
	if len(q.UpdateFields) == 0 {
		return nil, dberrors.Params("update query has no update entries")
	}
	sel := *q
	sel.UpdateFields = nil
	sel.Limit = -1
	sel.Offset = 0
	res, err := ns.Select(ctx, &sel, resolve)
	if err != nil {
		return nil, err
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.walSuppressed = true
	defer func() { ns.walSuppressed = false }()

	for _, row := range res.Rows {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		doc, err := ns.rowJSONLocked(row.RowID)
		if err != nil {
			return nil, err
		}
		updated, err := ns.applyUpdateEntries(doc, row.RowID, q.UpdateFields)
		if err != nil {
			return nil, err
		}
		item := NewItem(updated)
		if err := ns.modifyItemLocked(item, ModeUpsert); err != nil {
			return nil, err
		}
	}
	ns.wal.Add(wal.Record{Type: wal.RecUpdateQuery, Value: []byte(q.ToSQL())})
	ns.metrics.ObserveQuery(ns.name, "update", time.Since(start))
	return res, nil
}

// DeleteQuery removes every matching row, emitting one statement WAL
// record.
func (ns *Namespace) DeleteQuery(ctx context.Context, q *query.Query, resolve NamespaceResolver) (*QueryResults, error) {
	start := time.Now()
	sel := *q
	sel.UpdateFields = nil
	sel.Limit = -1
	sel.Offset = 0
	res, err := ns.Select(ctx, &sel, resolve)
	if err != nil {
		return nil, err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.walSuppressed = true
	defer func() { ns.walSuppressed = false }()
	for _, row := range res.Rows {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		if row.RowID >= len(ns.items) || ns.items[row.RowID].IsFree() {
			continue
		}
		if err := ns.deleteRowLocked(row.RowID); err != nil {
			return nil, err
		}
	}
	ns.wal.Add(wal.Record{Type: wal.RecUpdateQuery, Value: []byte(q.ToDeleteSQL())})
	ns.metrics.ObserveQuery(ns.name, "delete", time.Since(start))
	return res, nil
}

// rowJSONLocked is rowJSON for callers already holding the lock.
func (ns *Namespace) rowJSONLocked(rowID int) ([]byte, error) {
	if rowID < 0 || rowID >= len(ns.items) || ns.items[rowID].IsFree() {
		return nil, dberrors.NotFound("row %d not found", rowID)
	}
	tuple := ns.items[rowID].Get(payload.TupleField)
	if len(tuple) == 0 {
		return []byte("{}"), nil
	}
	return payload.CJSONToJSON([]byte(tuple[0].Str()), ns.tagsMatcher)
}

// applyUpdateEntries rewrites one document per the update list.
func (ns *Namespace) applyUpdateEntries(doc []byte, rowID int, entries []query.UpdateEntry) ([]byte, error) {
	var err error
	for _, ue := range entries {
		keys := splitJSONPath(ue.Column)
		switch ue.Mode {
		case query.UpdateDrop:
			doc = jsonparser.Delete(doc, keys...)
		case query.UpdateSetJSON:
			if len(ue.Values) != 1 {
				return nil, dberrors.Params("SET JSON on %q needs one value", ue.Column)
			}
			doc, err = jsonparser.Set(doc, []byte(ue.Values[0].Str()), keys...)
			if err != nil {
				return nil, dberrors.Wrap(dberrors.KindParams, err, "set json field "+ue.Column)
			}
		default:
			var rendered []byte
			if ue.IsExpression {
				v, err := ns.evalExpression(ue.Values[0].Str(), rowID)
				if err != nil {
					return nil, err
				}
				rendered = renderValue(v)
			} else if len(ue.Values) == 1 {
				rendered = renderValue(ue.Values[0])
			} else {
				parts := make([]string, len(ue.Values))
				for i, v := range ue.Values {
					parts[i] = string(renderValue(v))
				}
				rendered = []byte("[" + strings.Join(parts, ",") + "]")
			}
			doc, err = jsonparser.Set(doc, rendered, keys...)
			if err != nil {
				return nil, dberrors.Wrap(dberrors.KindParams, err, "set field "+ue.Column)
			}
		}
	}
	return doc, nil
}

func renderValue(v payload.Variant) []byte {
	switch v.Kind() {
	case payload.KindString:
		quoted, _ := jsonMarshalString(v.Str())
		return quoted
	case payload.KindNull:
		return []byte("null")
	default:
		return []byte(v.String())
	}
}

func jsonMarshalString(s string) ([]byte, error) {
	b := make([]byte, 0, len(s)+2)
	b = strconv.AppendQuote(b, s)
	return b, nil
}

// evalExpression computes a per-row arithmetic expression of field
// references, numbers, serial() and now().
func (ns *Namespace) evalExpression(expr string, rowID int) (payload.Variant, error) {
	toks := strings.Fields(expr)
	if len(toks) == 0 {
		return payload.Variant{}, dberrors.Params("empty update expression")
	}
	acc, err := ns.exprOperand(toks[0], rowID)
	if err != nil {
		return payload.Variant{}, err
	}
	i := 1
	for i+1 < len(toks) {
		op := toks[i]
		rhs, err := ns.exprOperand(toks[i+1], rowID)
		if err != nil {
			return payload.Variant{}, err
		}
		a, okA := acc.AsFloat()
		b, okB := rhs.AsFloat()
		if !okA || !okB {
			return payload.Variant{}, dberrors.Params("non-numeric operand in expression %q", expr)
		}
		switch op {
		case "+":
			acc = payload.Double(a + b)
		case "-":
			acc = payload.Double(a - b)
		case "*":
			acc = payload.Double(a * b)
		case "/":
			if b == 0 {
				return payload.Variant{}, dberrors.Params("division by zero in expression %q", expr)
			}
			acc = payload.Double(a / b)
		default:
			return payload.Variant{}, dberrors.Params("unknown operator %q in expression", op)
		}
		i += 2
	}
	// keep integral results integral so int fields stay ints
	if f, ok := acc.AsFloat(); ok && f == float64(int64(f)) {
		return payload.Int64Value(int64(f)), nil
	}
	return acc, nil
}

func (ns *Namespace) exprOperand(tok string, rowID int) (payload.Variant, error) {
	switch {
	case strings.EqualFold(tok, "now()"):
		return payload.Int64Value(time.Now().Unix()), nil
	case strings.EqualFold(tok, "serial()"):
		cnt, ok := ns.serialCounters["_serial"]
		if !ok {
			var v int64
			cnt = &v
			ns.serialCounters["_serial"] = cnt
		}
		*cnt++
		return payload.Int64Value(*cnt), nil
	}
	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		return payload.Double(n), nil
	}
	vals := ns.fieldValuesByName(rowID, tok)
	if len(vals) == 0 {
		return payload.Null(), nil
	}
	return vals[0], nil
}
