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
	"sort"
	"time"

	"github.com/weaviate/kestrel/adapters/repos/db/aggregator"
	"github.com/weaviate/kestrel/adapters/repos/db/fulltext"
	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/adapters/repos/db/sorter"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

const cancelCheckInterval = 1024

// evalKind tags the plan node variants: materialized id sets, row-by-row
// comparators, brackets, join references and the always-false marker.
type evalKind int

const (
	evalSet evalKind = iota
	evalCmp
	evalBracket
	evalJoin
	evalFalse
)

type evalNode struct {
	op       query.OpType
	kind     evalKind
	ids      []int // sorted, evalSet only
	contains map[int]struct{}
	cmp      *indexes.Comparator
	children []evalNode
	eqPos    [][]string
	bf       *query.BetweenFieldsEntry
	join     *joinEval
	explain  ExplainEntry
}

func (n *evalNode) containsID(id int) bool {
	_, ok := n.contains[id]
	return ok
}

// selectCtx carries one select's state through planning and execution.
type selectCtx struct {
	q       *query.Query
	plan    []evalNode
	ftRanks map[int]int
	ftUsed  bool
	joins   []*joinEval
	explain []ExplainEntry
}

// Select plans and executes a query against this namespace. The resolver
// locates other namespaces for joins and merges.
func (ns *Namespace) Select(ctx context.Context, q *query.Query, resolve NamespaceResolver) (*QueryResults, error) {
	start := time.Now()
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	// pending full-text work commits under the write lock before the
	// shared scan starts
	if err := ns.commitFulltext(ctx); err != nil {
		return nil, err
	}

	// inner-join pre-selects run against the right namespaces before the
	// left lock is taken, avoiding lock-order inversions
	joins, err := ns.prepareJoins(ctx, q, resolve)
	if err != nil {
		return nil, err
	}

	// the scan phase runs under the shared lock; joins and merges attach
	// afterwards so a self-join never re-enters the lock
	epoch := ns.stringsHolder.Enter()
	defer ns.stringsHolder.Leave(epoch)

	sc := &selectCtx{q: q, joins: joins, ftRanks: map[int]int{}}
	qr := &QueryResults{ns: ns, selectFilter: q.SelectFilter}
	err = func() error {
		ns.mu.RLock()
		defer ns.mu.RUnlock()

		sc.plan, err = ns.planNodes(ctx, q.Entries, sc)
		if err != nil {
			return err
		}
		matched, err := ns.execPlan(ctx, sc)
		if err != nil {
			return err
		}

		// aggregation consumes every match, before limit/offset
		aggs := make([]*aggregator.Aggregator, 0, len(q.Aggregations))
		for _, ae := range q.Aggregations {
			agg, err := aggregator.New(ae, ns.fieldValuesByName)
			if err != nil {
				return err
			}
			aggs = append(aggs, agg)
		}
		for _, rowID := range matched {
			for _, agg := range aggs {
				agg.Consume(rowID)
			}
		}
		for _, agg := range aggs {
			qr.Aggregations = append(qr.Aggregations, agg.Result())
		}

		if q.CalcTotal != query.ModeNoTotal {
			qr.TotalCount = len(matched)
		}

		matched = ns.sortMatches(matched, sc)

		// offset and limit
		if q.Offset > 0 {
			if q.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[q.Offset:]
			}
		}
		if q.Limit >= 0 && q.Limit < len(matched) {
			matched = matched[:q.Limit]
		}

		qr.Rows = make([]ResultRow, len(matched))
		for i, rowID := range matched {
			qr.Rows[i] = ResultRow{RowID: rowID, Rank: sc.ftRanks[rowID]}
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	if err := ns.attachJoins(ctx, q, qr, sc, resolve); err != nil {
		return nil, err
	}

	// merge queries append their own results
	for mi := range q.MergeQueries {
		mq := &q.MergeQueries[mi]
		mns, err := resolve(mq.Namespace)
		if err != nil {
			return nil, err
		}
		sub, err := mns.Select(ctx, &mq.Query, resolve)
		if err != nil {
			return nil, err
		}
		qr.Rows = append(qr.Rows, sub.Rows...)
	}

	if q.Explain {
		qr.Explain = sc.explain
	}
	ns.metrics.ObserveQuery(ns.name, "select", time.Since(start))
	return qr, nil
}

// commitFulltext publishes staged full-text documents; a cheap shared
// check keeps the write lock off the hot path.
func (ns *Namespace) commitFulltext(ctx context.Context) error {
	ns.mu.RLock()
	pending := false
	for _, idx := range ns.indexes {
		if ft, ok := idx.(*fulltext.FastIndex); ok && ft.HasPending() {
			pending = true
			break
		}
	}
	ns.mu.RUnlock()
	if !pending {
		return nil
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	for _, idx := range ns.indexes {
		if ft, ok := idx.(*fulltext.FastIndex); ok && ft.HasPending() {
			if err := ft.CommitCtx(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// planNodes turns filter nodes into evaluation nodes, pushing each
// predicate through its index.
func (ns *Namespace) planNodes(ctx context.Context, nodes []query.Node, sc *selectCtx) ([]evalNode, error) {
	out := make([]evalNode, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		en := evalNode{op: n.Op}
		switch {
		case n.AlwaysFalse:
			en.kind = evalFalse
		case n.Bracket != nil:
			en.kind = evalBracket
			children, err := ns.planNodes(ctx, n.Bracket.Nodes, sc)
			if err != nil {
				return nil, err
			}
			en.children = children
			en.eqPos = n.Bracket.EqualPositions
		case n.JoinRef != nil:
			en.kind = evalJoin
			if n.JoinRef.JoinIdx >= len(sc.joins) || sc.joins[n.JoinRef.JoinIdx] == nil {
				return nil, dberrors.QueryExec("join reference %d out of range", n.JoinRef.JoinIdx)
			}
			en.join = sc.joins[n.JoinRef.JoinIdx]
		case n.BetweenFields != nil:
			en.kind = evalCmp
			en.bf = n.BetweenFields
		case n.Cond != nil:
			if err := ns.planCond(ctx, n.Cond, &en, sc); err != nil {
				return nil, err
			}
		default:
			return nil, dberrors.QueryExec("empty query node")
		}
		out = append(out, en)
	}
	return out, nil
}

func (ns *Namespace) planCond(ctx context.Context, c *query.CondEntry, en *evalNode, sc *selectCtx) error {
	en.explain = ExplainEntry{Field: c.Field, Cond: c.Cond.String(), Keys: len(c.Values)}
	pos, ok := ns.indexByName[c.Field]
	if !ok {
		if sc.q.StrictMode {
			return dberrors.QueryExec("no index for field %q in strict mode", c.Field)
		}
		field := c.Field
		cmp, err := indexes.NewComparator(c.Field, c.Cond, c.Values, nil, func(rowID int) payload.Variants {
			return ns.fieldValuesByName(rowID, field)
		})
		if err != nil {
			return err
		}
		en.kind = evalCmp
		en.cmp = cmp
		en.explain.Method = "scan"
		ns.metrics.CountIndexSelect(c.Field, "scan")
		return nil
	}
	idx := ns.indexes[pos]

	// the fast fulltext path keeps rank order
	if ft, isFT := idx.(*fulltext.FastIndex); isFT {
		if c.Cond != query.CondEq || len(c.Values) != 1 {
			return dberrors.Params("fulltext field %q needs a single match string", c.Field)
		}
		md, err := ft.Select(ctx, c.Values[0].Str())
		if err != nil {
			return err
		}
		en.kind = evalSet
		en.ids = make([]int, 0, len(md.Items))
		en.contains = make(map[int]struct{}, len(md.Items))
		for _, m := range md.Items {
			en.ids = append(en.ids, m.RowID)
			en.contains[m.RowID] = struct{}{}
			if cur, ok := sc.ftRanks[m.RowID]; !ok || m.Proc > cur {
				sc.ftRanks[m.RowID] = m.Proc
			}
		}
		sc.ftUsed = true
		en.explain.Method = "fulltext"
		en.explain.Matched = len(en.ids)
		sc.explain = append(sc.explain, en.explain)
		ns.metrics.CountIndexSelect(c.Field, "fulltext")
		return nil
	}

	res, err := idx.SelectKey(ctx, c.Values, c.Cond, ns.currentSortID(sc.q), indexes.SelectOpts{
		ItemsCount: ns.itemsCount,
	})
	if err != nil {
		return err
	}
	if cmps := res.Comparators(); len(cmps) > 0 {
		en.kind = evalCmp
		en.cmp = cmps[0]
		en.explain.Method = "comparator"
		ns.metrics.CountIndexSelect(c.Field, "comparator")
	} else {
		en.kind = evalSet
		en.ids = res.MergeIDs()
		en.contains = make(map[int]struct{}, len(en.ids))
		for _, id := range en.ids {
			en.contains[id] = struct{}{}
		}
		en.explain.Method = "index"
		en.explain.Matched = len(en.ids)
		ns.metrics.CountIndexSelect(c.Field, "idset")
	}
	sc.explain = append(sc.explain, en.explain)
	return nil
}

// currentSortID reports the sort id that could serve the query's first
// order-by, letting SelectKey return pre-sorted sets.
func (ns *Namespace) currentSortID(q *query.Query) int {
	if len(q.Sort) != 1 || q.Sort[0].Desc || len(q.Sort[0].ForcedValues) > 0 {
		return -1
	}
	if pos, ok := ns.indexByName[q.Sort[0].Field]; ok {
		return ns.indexes[pos].SortID()
	}
	return -1
}

// execPlan picks the cheapest driving set and scans it, evaluating the
// full predicate tree per candidate.
func (ns *Namespace) execPlan(ctx context.Context, sc *selectCtx) ([]int, error) {
	driving := ns.pickDriving(sc)
	var matched []int
	step := 0
	consider := func(rowID int) (bool, error) {
		step++
		if step%cancelCheckInterval == 0 {
			if err := checkCancel(ctx); err != nil {
				return false, err
			}
		}
		if rowID < 0 || rowID >= len(ns.items) || ns.items[rowID].IsFree() {
			return false, nil
		}
		ok, err := ns.matchNodes(sc.plan, rowID)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
	if driving != nil {
		for _, rowID := range driving {
			ok, err := consider(rowID)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, rowID)
			}
		}
		return matched, nil
	}
	for rowID := range ns.items {
		ok, err := consider(rowID)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rowID)
		}
	}
	return matched, nil
}

// pickDriving selects the smallest materialized top-level AND set; a
// full-text set wins outright because it carries rank order. A top-level
// OR widens the result beyond any single conjunct's set, so its presence
// forces the full-namespace scan.
func (ns *Namespace) pickDriving(sc *selectCtx) []int {
	for i := range sc.plan {
		if sc.plan[i].op == query.OpOr {
			return nil
		}
	}
	var best []int
	found := false
	for i := range sc.plan {
		n := &sc.plan[i]
		if n.op != query.OpAnd || n.kind != evalSet {
			continue
		}
		if n.explain.Method == "fulltext" {
			return n.ids
		}
		if !found || len(n.ids) < len(best) {
			best = n.ids
			found = true
		}
	}
	if !found {
		return nil
	}
	return best
}

// matchNodes folds the node list left to right: AND narrows, OR widens,
// NOT excludes.
func (ns *Namespace) matchNodes(nodes []evalNode, rowID int) (bool, error) {
	acc := true
	for i := range nodes {
		n := &nodes[i]
		m, err := ns.matchNode(n, rowID)
		if err != nil {
			return false, err
		}
		switch n.op {
		case query.OpOr:
			acc = acc || m
		case query.OpNot:
			acc = acc && !m
		default:
			acc = acc && m
		}
	}
	return acc, nil
}

func (ns *Namespace) matchNode(n *evalNode, rowID int) (bool, error) {
	switch n.kind {
	case evalFalse:
		return false, nil
	case evalSet:
		return n.containsID(rowID), nil
	case evalCmp:
		if n.bf != nil {
			return ns.matchBetweenFields(n.bf, rowID)
		}
		return n.cmp.Match(rowID), nil
	case evalBracket:
		ok, err := ns.matchNodes(n.children, rowID)
		if err != nil || !ok {
			return ok, err
		}
		for _, fields := range n.eqPos {
			if !ns.matchEqualPositions(n.children, fields, rowID) {
				return false, nil
			}
		}
		return true, nil
	case evalJoin:
		return n.join.matches(ns.fieldValuesByName, rowID), nil
	default:
		return false, nil
	}
}

func (ns *Namespace) matchBetweenFields(bf *query.BetweenFieldsEntry, rowID int) (bool, error) {
	a := ns.fieldValuesByName(rowID, bf.FirstField)
	b := ns.fieldValuesByName(rowID, bf.SecondField)
	if len(a) == 0 || len(b) == 0 {
		return false, nil
	}
	r, err := a[0].Compare(b[0], nil)
	if err != nil {
		return false, nil
	}
	switch bf.Cond {
	case query.CondEq:
		return r == 0, nil
	case query.CondLt:
		return r < 0, nil
	case query.CondLe:
		return r <= 0, nil
	case query.CondGt:
		return r > 0, nil
	case query.CondGe:
		return r >= 0, nil
	default:
		return false, dberrors.Params("condition %s not supported between fields", bf.Cond)
	}
}

// matchEqualPositions requires one shared array position satisfying all
// conditions of the bracket on the listed fields.
func (ns *Namespace) matchEqualPositions(children []evalNode, fields []string, rowID int) bool {
	type fieldCond struct {
		vals payload.Variants
		cmp  *indexes.Comparator
	}
	var conds []fieldCond
	for i := range children {
		c := &children[i]
		if c.explain.Field == "" {
			continue
		}
		for _, f := range fields {
			if c.explain.Field != f {
				continue
			}
			fc := fieldCond{vals: ns.fieldValuesByName(rowID, f)}
			if c.kind == evalCmp && c.cmp != nil {
				fc.cmp = c.cmp
			}
			conds = append(conds, fc)
		}
	}
	if len(conds) < 2 {
		return true
	}
	minLen := -1
	for _, c := range conds {
		if minLen < 0 || len(c.vals) < minLen {
			minLen = len(c.vals)
		}
	}
	// a shared position must satisfy every condition at once; set-based
	// nodes re-check via the comparator-free membership of the value
	for pos := 0; pos < minLen; pos++ {
		all := true
		for ci := range conds {
			c := &conds[ci]
			if c.cmp != nil {
				if !matchSingleValue(c.cmp, c.vals[pos]) {
					all = false
					break
				}
			}
		}
		if all {
			return true
		}
	}
	return false
}

func matchSingleValue(cmp *indexes.Comparator, v payload.Variant) bool {
	for _, want := range cmp.Values {
		if v.RelaxedEqual(want) {
			return true
		}
	}
	return false
}

// sortMatches applies the query order: an explicit ORDER BY wins, a
// full-text query defaults to rank order, everything else stays in row
// order.
func (ns *Namespace) sortMatches(matched []int, sc *selectCtx) []int {
	q := sc.q
	if len(q.Sort) > 0 {
		s := sorter.New(q.Sort, ns.fieldValuesByName, ns.sortCollate(q.Sort[0].Field))
		s.Sort(matched)
		return matched
	}
	if sc.ftUsed {
		sort.SliceStable(matched, func(i, j int) bool {
			return sc.ftRanks[matched[i]] > sc.ftRanks[matched[j]]
		})
	}
	return matched
}

func (ns *Namespace) sortCollate(field string) *payload.CollateOpts {
	if fi, ok := ns.payloadType.FieldByName(field); ok {
		f := ns.payloadType.Field(fi)
		return &f.Collate
	}
	return nil
}
