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

// Package aggregator folds matching rows into sums, extrema, facets and
// distinct sets while the selector streams them.
package aggregator

import (
	"sort"

	"github.com/weaviate/kestrel/entities/aggregation"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// FieldResolver yields the values of one field of a row.
type FieldResolver func(rowID int, field string) payload.Variants

// Aggregator consumes matched rows for one aggregation entry.
type Aggregator struct {
	entry    query.AggregateEntry
	resolver FieldResolver

	sum     float64
	count   int
	min     float64
	max     float64
	started bool

	facets   map[uint64]*facetGroup
	distinct map[uint64]payload.Variants
	order    []uint64
}

type facetGroup struct {
	values payload.Variants
	count  int
}

func New(entry query.AggregateEntry, resolver FieldResolver) (*Aggregator, error) {
	if len(entry.Fields) == 0 && entry.Type != query.AggCount && entry.Type != query.AggCountCached {
		return nil, dberrors.Params("aggregation %s needs at least one field", entry.Type)
	}
	a := &Aggregator{entry: entry, resolver: resolver}
	switch entry.Type {
	case query.AggFacet:
		a.facets = map[uint64]*facetGroup{}
	case query.AggDistinct:
		a.distinct = map[uint64]payload.Variants{}
	}
	return a, nil
}

// Consume folds one matching row.
func (a *Aggregator) Consume(rowID int) {
	switch a.entry.Type {
	case query.AggCount, query.AggCountCached:
		a.count++
	case query.AggSum, query.AggAvg, query.AggMin, query.AggMax:
		for _, v := range a.resolver(rowID, a.entry.Fields[0]) {
			f, ok := v.AsFloat()
			if !ok {
				continue
			}
			a.count++
			a.sum += f
			if !a.started || f < a.min {
				a.min = f
			}
			if !a.started || f > a.max {
				a.max = f
			}
			a.started = true
		}
	case query.AggFacet:
		key := a.rowKey(rowID)
		h := key.Hash()
		g, ok := a.facets[h]
		if !ok {
			g = &facetGroup{values: key}
			a.facets[h] = g
			a.order = append(a.order, h)
		}
		g.count++
	case query.AggDistinct:
		// distinct fans out over array values, one key per element
		for _, v := range a.resolver(rowID, a.entry.Fields[0]) {
			h := v.Hash()
			if _, ok := a.distinct[h]; !ok {
				a.distinct[h] = payload.Variants{v}
				a.order = append(a.order, h)
			}
		}
	}
}

// rowKey builds the multi-field facet key of a row (first value of each
// field).
func (a *Aggregator) rowKey(rowID int) payload.Variants {
	key := make(payload.Variants, len(a.entry.Fields))
	for i, f := range a.entry.Fields {
		vals := a.resolver(rowID, f)
		if len(vals) == 0 {
			key[i] = payload.Null()
			continue
		}
		key[i] = vals[0]
	}
	return key
}

// Result finalizes the fold.
func (a *Aggregator) Result() aggregation.Result {
	typ := a.entry.Type.String()
	switch a.entry.Type {
	case query.AggCount, query.AggCountCached:
		return aggregation.ValueResult(typ, nil, float64(a.count))
	case query.AggSum:
		return aggregation.ValueResult(typ, a.entry.Fields, a.sum)
	case query.AggAvg:
		if a.count == 0 {
			return aggregation.ValueResult(typ, a.entry.Fields, 0)
		}
		return aggregation.ValueResult(typ, a.entry.Fields, a.sum/float64(a.count))
	case query.AggMin:
		return aggregation.ValueResult(typ, a.entry.Fields, a.min)
	case query.AggMax:
		return aggregation.ValueResult(typ, a.entry.Fields, a.max)
	case query.AggFacet:
		return a.facetResult()
	case query.AggDistinct:
		res := aggregation.Result{Type: typ, Fields: a.entry.Fields}
		for _, h := range a.order {
			res.Distinct = append(res.Distinct, a.distinct[h])
		}
		return res
	default:
		return aggregation.Result{Type: typ, Fields: a.entry.Fields}
	}
}

func (a *Aggregator) facetResult() aggregation.Result {
	res := aggregation.Result{Type: a.entry.Type.String(), Fields: a.entry.Fields}
	rows := make([]aggregation.FacetRow, 0, len(a.order))
	for _, h := range a.order {
		g := a.facets[h]
		rows = append(rows, aggregation.FacetRow{Values: g.values, Count: g.count})
	}
	a.sortFacets(rows)
	offset, limit := a.entry.Offset, a.entry.Limit
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	res.Facets = rows
	return res
}

// sortFacets honors the aggregation's ORDER BY: by a keyed field or by
// "count", ascending or descending.
func (a *Aggregator) sortFacets(rows []aggregation.FacetRow) {
	if len(a.entry.Sort) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range a.entry.Sort {
			if s.Field == "count" {
				if rows[i].Count != rows[j].Count {
					if s.Desc {
						return rows[i].Count > rows[j].Count
					}
					return rows[i].Count < rows[j].Count
				}
				continue
			}
			fi := a.fieldPos(s.Field)
			if fi < 0 {
				continue
			}
			r, err := rows[i].Values[fi].Compare(rows[j].Values[fi], nil)
			if err != nil || r == 0 {
				continue
			}
			if s.Desc {
				return r > 0
			}
			return r < 0
		}
		return false
	})
}

func (a *Aggregator) fieldPos(name string) int {
	for i, f := range a.entry.Fields {
		if f == name {
			return i
		}
	}
	return -1
}
