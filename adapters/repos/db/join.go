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

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// NamespaceResolver locates namespaces for joins and merges.
type NamespaceResolver func(name string) (*Namespace, error)

// joinEval holds one join's pre-selected right side. Inner joins run the
// right query once and act as an IN-set over the left scan; left joins
// stay lazy and only materialize per result row.
type joinEval struct {
	jq      *query.JoinQuery
	joinIdx int
	rightNS *Namespace

	lazy      bool
	rightRows []int
	// keyIndex maps the first ON condition's right-field value hash to
	// the right rows carrying it; valid for Eq/Set conditions.
	keyIndex map[uint64][]int
}

// prepareJoins pre-selects the right side of every inner join. The left
// namespace lock is not yet held here.
func (ns *Namespace) prepareJoins(ctx context.Context, q *query.Query, resolve NamespaceResolver) ([]*joinEval, error) {
	if len(q.Joins) == 0 {
		return nil, nil
	}
	out := make([]*joinEval, len(q.Joins))
	for i := range q.Joins {
		jq := &q.Joins[i]
		if len(jq.On) == 0 {
			return nil, dberrors.Params("join with %q misses ON conditions", jq.Namespace)
		}
		rightNS, err := resolve(jq.Namespace)
		if err != nil {
			return nil, err
		}
		je := &joinEval{jq: jq, joinIdx: i, rightNS: rightNS}
		if jq.Type == query.LeftJoin {
			je.lazy = true
			out[i] = je
			continue
		}
		sub, err := rightNS.Select(ctx, &jq.Query, resolve)
		if err != nil {
			return nil, err
		}
		if len(sub.Rows) > ns.cfg.MaxIterationsIdSetPreResult && ns.cfg.MaxIterationsIdSetPreResult > 0 {
			ns.logger.WithField("join", jq.Namespace).
				WithField("rows", len(sub.Rows)).
				Debug("join pre-result exceeds idset bound, keeping it anyway")
		}
		je.rightRows = make([]int, 0, len(sub.Rows))
		je.keyIndex = make(map[uint64][]int, len(sub.Rows))
		onField := jq.On[0].RightField
		for _, r := range sub.Rows {
			je.rightRows = append(je.rightRows, r.RowID)
			for _, v := range rightNS.fieldValuesSafe(r.RowID, onField) {
				h := v.Hash()
				je.keyIndex[h] = append(je.keyIndex[h], r.RowID)
			}
		}
		out[i] = je
	}
	return out, nil
}

// fieldGetter resolves left-row field values; the scan phase passes the
// lock-free variant, the attach phase the locking one.
type fieldGetter func(rowID int, field string) payload.Variants

// matches reports whether a left row joins at least one pre-selected
// right row.
func (je *joinEval) matches(get fieldGetter, rowID int) bool {
	return len(je.matchingRows(get, rowID, 1)) > 0
}

// matchingRows returns up to limit right rows joining the left row
// (limit <= 0 means all).
func (je *joinEval) matchingRows(get fieldGetter, rowID int, limit int) []int {
	first := je.jq.On[0]
	leftVals := get(rowID, first.LeftField)
	if len(leftVals) == 0 {
		return nil
	}
	var candidates []int
	if first.Cond == query.CondEq || first.Cond == query.CondSet {
		seen := map[int]struct{}{}
		for _, lv := range leftVals {
			for _, rid := range je.keyIndex[lv.Hash()] {
				if _, dup := seen[rid]; !dup {
					seen[rid] = struct{}{}
					candidates = append(candidates, rid)
				}
			}
		}
	} else {
		candidates = je.rightRows
	}
	var out []int
	for _, rid := range candidates {
		if je.rowJoins(get, rowID, rid) {
			out = append(out, rid)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// rowJoins checks every ON condition between one left and one right row.
func (je *joinEval) rowJoins(get fieldGetter, leftRow, rightRow int) bool {
	acc := true
	for i, on := range je.jq.On {
		m := je.condHolds(get, leftRow, rightRow, on)
		if i == 0 {
			acc = m
			continue
		}
		switch on.Op {
		case query.OpOr:
			acc = acc || m
		case query.OpNot:
			acc = acc && !m
		default:
			acc = acc && m
		}
	}
	return acc
}

func (je *joinEval) condHolds(get fieldGetter, leftRow, rightRow int, on query.JoinCondition) bool {
	leftVals := get(leftRow, on.LeftField)
	rightVals := je.rightNS.fieldValuesSafe(rightRow, on.RightField)
	for _, lv := range leftVals {
		for _, rv := range rightVals {
			if variantCondHolds(lv, on.Cond, rv) {
				return true
			}
		}
	}
	return false
}

func variantCondHolds(a payload.Variant, cond query.CondType, b payload.Variant) bool {
	if cond == query.CondEq || cond == query.CondSet {
		return a.RelaxedEqual(b)
	}
	r, err := a.Compare(b, nil)
	if err != nil {
		return false
	}
	switch cond {
	case query.CondLt:
		return r < 0
	case query.CondLe:
		return r <= 0
	case query.CondGt:
		return r > 0
	case query.CondGe:
		return r >= 0
	default:
		return false
	}
}

// attachJoins fills each result row's nested join results: inner joins
// from the pre-selected rows, left joins via a per-row right query.
func (ns *Namespace) attachJoins(ctx context.Context, q *query.Query, qr *QueryResults,
	sc *selectCtx, resolve NamespaceResolver,
) error {
	if len(sc.joins) == 0 {
		return nil
	}
	for ri := range qr.Rows {
		row := &qr.Rows[ri]
		for _, je := range sc.joins {
			if je == nil {
				continue
			}
			var rightIDs []int
			if je.lazy {
				ids, err := je.lazyRightRows(ctx, ns.fieldValuesSafe, row.RowID, resolve)
				if err != nil {
					return err
				}
				rightIDs = ids
			} else {
				rightIDs = je.matchingRows(ns.fieldValuesSafe, row.RowID, 0)
			}
			if len(rightIDs) == 0 {
				continue
			}
			sub := &QueryResults{ns: je.rightNS, selectFilter: je.jq.SelectFilter}
			sub.Rows = make([]ResultRow, len(rightIDs))
			for i, rid := range rightIDs {
				sub.Rows[i] = ResultRow{RowID: rid}
			}
			if row.Joined == nil {
				row.Joined = map[int]*QueryResults{}
			}
			row.Joined[je.joinIdx] = sub
		}
	}
	return nil
}

// lazyRightRows runs the right query for one left row, substituting the
// join key.
func (je *joinEval) lazyRightRows(ctx context.Context, get fieldGetter, rowID int,
	resolve NamespaceResolver,
) ([]int, error) {
	first := je.jq.On[0]
	leftVals := get(rowID, first.LeftField)
	if len(leftVals) == 0 {
		return nil, nil
	}
	rq := je.jq.Query
	rq.Entries = append(append([]query.Node(nil), rq.Entries...), query.Node{
		Op:   query.OpAnd,
		Cond: &query.CondEntry{Field: first.RightField, Cond: query.CondSet, Values: leftVals},
	})
	sub, err := je.rightNS.Select(ctx, &rq, resolve)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(sub.Rows))
	for _, r := range sub.Rows {
		if je.rowJoins(get, rowID, r.RowID) {
			out = append(out, r.RowID)
		}
	}
	return out, nil
}
