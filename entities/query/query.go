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
	"github.com/weaviate/kestrel/entities/payload"
)

// CalcTotalMode mirrors the DSL req_total values.
type CalcTotalMode int

const (
	ModeNoTotal CalcTotalMode = iota
	ModeAccurateTotal
	ModeCachedTotal
)

// AggType enumerates the aggregation facilities of the selector.
type AggType int

const (
	AggSum AggType = iota
	AggAvg
	AggMin
	AggMax
	AggFacet
	AggDistinct
	AggCount
	AggCountCached
)

func (a AggType) String() string {
	switch a {
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggFacet:
		return "FACET"
	case AggDistinct:
		return "DISTINCT"
	case AggCount:
		return "COUNT"
	case AggCountCached:
		return "COUNT_CACHED"
	default:
		return "?"
	}
}

// Node is one element of the canonical filter tree. Exactly one of the
// pointer members is set.
type Node struct {
	Op            OpType
	Cond          *CondEntry
	Bracket       *Bracket
	JoinRef       *JoinRef
	BetweenFields *BetweenFieldsEntry
	AlwaysFalse   bool
}

// CondEntry is a single field predicate.
type CondEntry struct {
	Field  string
	Cond   CondType
	Values payload.Variants
}

// Bracket groups sub-nodes; equal-position lists attach here.
type Bracket struct {
	Nodes          []Node
	EqualPositions [][]string
}

// JoinRef points at the query's Joins list; only inner joins participate
// in filter trees.
type JoinRef struct {
	JoinIdx int
}

// BetweenFieldsEntry compares two fields of the same row.
type BetweenFieldsEntry struct {
	FirstField  string
	Cond        CondType
	SecondField string
}

// SortEntry is one ORDER BY key; ForcedValues implements the
// `ORDER BY field(v1,v2,...)` forced-sort prefix.
type SortEntry struct {
	Field        string
	Desc         bool
	ForcedValues payload.Variants
}

type AggregateEntry struct {
	Type   AggType
	Fields []string
	Sort   []SortEntry
	Limit  int
	Offset int
}

type UpdateMode int

const (
	UpdateSet UpdateMode = iota
	UpdateSetJSON
	UpdateDrop
)

type UpdateEntry struct {
	Column       string
	Values       payload.Variants
	Mode         UpdateMode
	IsExpression bool
}

type JoinType int

const (
	LeftJoin JoinType = iota
	InnerJoin
	OrInnerJoin
	Merge
)

func (jt JoinType) String() string {
	switch jt {
	case LeftJoin:
		return "LEFT JOIN"
	case InnerJoin:
		return "INNER JOIN"
	case OrInnerJoin:
		return "OR INNER JOIN"
	case Merge:
		return "MERGE"
	default:
		return "?"
	}
}

// JoinCondition is one ON clause: leftNs.LeftField <cond> rightNs.RightField.
type JoinCondition struct {
	Op         OpType
	LeftField  string
	Cond       CondType
	RightField string
}

type JoinQuery struct {
	Type JoinType
	On   []JoinCondition
	Query
}

// Query is the canonical parsed query. Both parsers produce it, the DSL
// encoder renders it back, and the selector executes it.
type Query struct {
	Namespace    string
	Entries      []Node
	Sort         []SortEntry
	Limit        int
	Offset       int
	CalcTotal    CalcTotalMode
	Explain      bool
	StrictMode   bool
	Aggregations []AggregateEntry
	Joins        []JoinQuery
	MergeQueries []JoinQuery
	SelectFilter []string
	SelectFuncs  []string
	UpdateFields []UpdateEntry

	// root-level equal-position lists (outside any bracket)
	EqualPositions [][]string
}

func New(namespace string) *Query {
	return &Query{Namespace: namespace, Limit: -1}
}

// Where appends a predicate with AND.
func (q *Query) Where(field string, cond CondType, values ...payload.Variant) *Query {
	q.Entries = append(q.Entries, Node{Op: OpAnd, Cond: &CondEntry{Field: field, Cond: cond, Values: values}})
	return q
}

func (q *Query) WhereOp(op OpType, field string, cond CondType, values ...payload.Variant) *Query {
	q.Entries = append(q.Entries, Node{Op: op, Cond: &CondEntry{Field: field, Cond: cond, Values: values}})
	return q
}

func (q *Query) OpenBracket(op OpType, nodes ...Node) *Query {
	q.Entries = append(q.Entries, Node{Op: op, Bracket: &Bracket{Nodes: nodes}})
	return q
}

func (q *Query) SortBy(field string, desc bool, forced ...payload.Variant) *Query {
	q.Sort = append(q.Sort, SortEntry{Field: field, Desc: desc, ForcedValues: forced})
	return q
}

func (q *Query) WithLimit(limit, offset int) *Query {
	q.Limit, q.Offset = limit, offset
	return q
}

func (q *Query) Aggregate(t AggType, fields ...string) *Query {
	q.Aggregations = append(q.Aggregations, AggregateEntry{Type: t, Fields: fields})
	return q
}

func (q *Query) InnerJoinOn(right *Query, jt JoinType, leftField string, cond CondType, rightField string) *Query {
	jq := JoinQuery{Type: jt, Query: *right, On: []JoinCondition{{
		Op: OpAnd, LeftField: leftField, Cond: cond, RightField: rightField,
	}}}
	q.Joins = append(q.Joins, jq)
	if jt == InnerJoin || jt == OrInnerJoin {
		op := OpAnd
		if jt == OrInnerJoin {
			op = OpOr
		}
		q.Entries = append(q.Entries, Node{Op: op, JoinRef: &JoinRef{JoinIdx: len(q.Joins) - 1}})
	}
	return q
}

// WalkConds visits every CondEntry in tree order.
func (q *Query) WalkConds(fn func(op OpType, c *CondEntry)) {
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for i := range nodes {
			n := &nodes[i]
			switch {
			case n.Cond != nil:
				fn(n.Op, n.Cond)
			case n.Bracket != nil:
				walk(n.Bracket.Nodes)
			}
		}
	}
	walk(q.Entries)
}
