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
	"encoding/json"
	"strings"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
)

// The JSON DSL mirrors the canonical tree. Filters nest via "filters",
// joins appear both in "join_queries" and as "join_query" filter nodes for
// inner joins.

type dslQuery struct {
	Namespace      string         `json:"namespace"`
	Type           string         `json:"type,omitempty"`
	Limit          *int           `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
	ReqTotal       string         `json:"req_total,omitempty"`
	Explain        bool           `json:"explain,omitempty"`
	StrictMode     bool           `json:"strict_mode,omitempty"`
	Filters        []dslFilter    `json:"filters,omitempty"`
	Sort           []dslSort      `json:"sort,omitempty"`
	MergeQueries   []dslJoin      `json:"merge_queries,omitempty"`
	Aggregations   []dslAgg       `json:"aggregations,omitempty"`
	SelectFilter   []string       `json:"select_filter,omitempty"`
	SelectFuncs    []string       `json:"select_functions,omitempty"`
	UpdateFields   []dslUpdate    `json:"update_fields,omitempty"`
	DropFields     []string       `json:"drop_fields,omitempty"`
	JoinQueries    []dslJoin      `json:"join_queries,omitempty"`
	EqualPositions [][]string     `json:"equal_positions,omitempty"`
}

type dslFilter struct {
	Op             string        `json:"op,omitempty"`
	Field          string        `json:"field,omitempty"`
	Cond           string        `json:"cond,omitempty"`
	Value          interface{}   `json:"value,omitempty"`
	Filters        []dslFilter   `json:"filters,omitempty"`
	JoinQuery      *int          `json:"join_query,omitempty"`
	FirstField     string        `json:"first_field,omitempty"`
	SecondField    string        `json:"second_field,omitempty"`
	AlwaysFalse    bool          `json:"always_false,omitempty"`
	EqualPositions [][]string    `json:"equal_positions,omitempty"`
}

type dslSort struct {
	Field  string        `json:"field"`
	Desc   bool          `json:"desc,omitempty"`
	Values []interface{} `json:"values,omitempty"`
}

type dslAgg struct {
	Type   string    `json:"type"`
	Fields []string  `json:"fields"`
	Sort   []dslSort `json:"sort,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

type dslUpdate struct {
	Name         string        `json:"name"`
	Type         string        `json:"type,omitempty"`
	IsExpression bool          `json:"is_expression,omitempty"`
	Values       []interface{} `json:"values,omitempty"`
}

type dslJoin struct {
	Type string        `json:"type,omitempty"`
	On   []dslJoinCond `json:"on,omitempty"`
	dslQuery
}

type dslJoinCond struct {
	Op         string `json:"op,omitempty"`
	LeftField  string `json:"left_field"`
	Cond       string `json:"cond"`
	RightField string `json:"right_field"`
}

// FromDSL parses a JSON DSL document into a Query.
func FromDSL(data []byte) (*Query, error) {
	var dq dslQuery
	if err := json.Unmarshal(data, &dq); err != nil {
		return nil, dberrors.Wrap(dberrors.KindParse, err, "parse query dsl")
	}
	return dq.toQuery()
}

func (dq *dslQuery) toQuery() (*Query, error) {
	q := New(dq.Namespace)
	if q.Namespace == "" {
		return nil, dberrors.Parse("query dsl misses namespace")
	}
	if dq.Limit != nil {
		q.Limit = *dq.Limit
	}
	q.Offset = dq.Offset
	switch dq.ReqTotal {
	case "", "disabled":
		q.CalcTotal = ModeNoTotal
	case "enabled":
		q.CalcTotal = ModeAccurateTotal
	case "cached":
		q.CalcTotal = ModeCachedTotal
	default:
		return nil, dberrors.Parse("unknown req_total mode %q", dq.ReqTotal)
	}
	q.Explain = dq.Explain
	q.StrictMode = dq.StrictMode
	q.SelectFilter = dq.SelectFilter
	q.SelectFuncs = dq.SelectFuncs
	q.EqualPositions = dq.EqualPositions

	for _, j := range dq.JoinQueries {
		jq, err := j.toJoinQuery()
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, *jq)
	}
	for _, j := range dq.MergeQueries {
		jq, err := j.toJoinQuery()
		if err != nil {
			return nil, err
		}
		jq.Type = Merge
		q.MergeQueries = append(q.MergeQueries, *jq)
	}
	var err error
	if q.Entries, err = filtersToNodes(dq.Filters); err != nil {
		return nil, err
	}
	for _, s := range dq.Sort {
		se := SortEntry{Field: s.Field, Desc: s.Desc}
		for _, v := range s.Values {
			fv, err := payload.FromInterface(v, payload.KindNull)
			if err != nil {
				return nil, err
			}
			se.ForcedValues = append(se.ForcedValues, fv)
		}
		q.Sort = append(q.Sort, se)
	}
	for _, a := range dq.Aggregations {
		ae := AggregateEntry{Fields: a.Fields, Limit: a.Limit, Offset: a.Offset}
		var err error
		if ae.Type, err = aggTypeFromString(a.Type); err != nil {
			return nil, err
		}
		for _, s := range a.Sort {
			ae.Sort = append(ae.Sort, SortEntry{Field: s.Field, Desc: s.Desc})
		}
		q.Aggregations = append(q.Aggregations, ae)
	}
	for _, u := range dq.UpdateFields {
		ue := UpdateEntry{Column: u.Name, IsExpression: u.IsExpression}
		if u.Type == "json" {
			ue.Mode = UpdateSetJSON
		}
		for _, v := range u.Values {
			fv, err := payload.FromInterface(v, payload.KindNull)
			if err != nil {
				return nil, err
			}
			ue.Values = append(ue.Values, fv)
		}
		q.UpdateFields = append(q.UpdateFields, ue)
	}
	for _, d := range dq.DropFields {
		q.UpdateFields = append(q.UpdateFields, UpdateEntry{Column: d, Mode: UpdateDrop})
	}
	return q, nil
}

func (dj *dslJoin) toJoinQuery() (*JoinQuery, error) {
	inner, err := dj.dslQuery.toQuery()
	if err != nil {
		return nil, err
	}
	jq := &JoinQuery{Query: *inner}
	switch strings.ToLower(dj.Type) {
	case "", "left":
		jq.Type = LeftJoin
	case "inner":
		jq.Type = InnerJoin
	case "orinner":
		jq.Type = OrInnerJoin
	case "merge":
		jq.Type = Merge
	default:
		return nil, dberrors.Parse("unknown join type %q", dj.Type)
	}
	for _, on := range dj.On {
		op, err := OpFromString(on.Op)
		if err != nil {
			return nil, err
		}
		cond, err := CondFromString(on.Cond)
		if err != nil {
			return nil, err
		}
		jq.On = append(jq.On, JoinCondition{Op: op, LeftField: on.LeftField, Cond: cond, RightField: on.RightField})
	}
	return jq, nil
}

func filtersToNodes(filters []dslFilter) ([]Node, error) {
	var nodes []Node
	for _, f := range filters {
		op, err := OpFromString(f.Op)
		if err != nil {
			return nil, err
		}
		n := Node{Op: op}
		switch {
		case f.AlwaysFalse:
			n.AlwaysFalse = true
		case f.JoinQuery != nil:
			n.JoinRef = &JoinRef{JoinIdx: *f.JoinQuery}
		case len(f.Filters) > 0:
			sub, err := filtersToNodes(f.Filters)
			if err != nil {
				return nil, err
			}
			n.Bracket = &Bracket{Nodes: sub, EqualPositions: f.EqualPositions}
		case f.FirstField != "":
			cond, err := CondFromString(f.Cond)
			if err != nil {
				return nil, err
			}
			n.BetweenFields = &BetweenFieldsEntry{FirstField: f.FirstField, Cond: cond, SecondField: f.SecondField}
		default:
			cond, err := CondFromString(f.Cond)
			if err != nil {
				return nil, err
			}
			ce := &CondEntry{Field: f.Field, Cond: cond}
			if ce.Values, err = dslValues(f.Value); err != nil {
				return nil, err
			}
			n.Cond = ce
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func dslValues(v interface{}) (payload.Variants, error) {
	if v == nil {
		return nil, nil
	}
	if arr, ok := v.([]interface{}); ok {
		out := make(payload.Variants, 0, len(arr))
		for _, e := range arr {
			fv, err := payload.FromInterface(e, payload.KindNull)
			if err != nil {
				return nil, err
			}
			out = append(out, fv)
		}
		return out, nil
	}
	fv, err := payload.FromInterface(v, payload.KindNull)
	if err != nil {
		return nil, err
	}
	return payload.Variants{fv}, nil
}

// ToDSL encodes the query back into its JSON DSL form.
func (q *Query) ToDSL() ([]byte, error) {
	dq := q.toDSL("select")
	return json.Marshal(dq)
}

func (q *Query) toDSL(typ string) dslQuery {
	dq := dslQuery{
		Namespace:      q.Namespace,
		Type:           typ,
		Offset:         q.Offset,
		Explain:        q.Explain,
		StrictMode:     q.StrictMode,
		SelectFilter:   q.SelectFilter,
		SelectFuncs:    q.SelectFuncs,
		EqualPositions: q.EqualPositions,
	}
	if q.Limit >= 0 {
		limit := q.Limit
		dq.Limit = &limit
	}
	switch q.CalcTotal {
	case ModeAccurateTotal:
		dq.ReqTotal = "enabled"
	case ModeCachedTotal:
		dq.ReqTotal = "cached"
	}
	dq.Filters = nodesToFilters(q.Entries)
	for _, s := range q.Sort {
		ds := dslSort{Field: s.Field, Desc: s.Desc}
		for _, v := range s.ForcedValues {
			ds.Values = append(ds.Values, v.Interface())
		}
		dq.Sort = append(dq.Sort, ds)
	}
	for _, a := range q.Aggregations {
		da := dslAgg{Type: strings.ToLower(a.Type.String()), Fields: a.Fields, Limit: a.Limit, Offset: a.Offset}
		for _, s := range a.Sort {
			da.Sort = append(da.Sort, dslSort{Field: s.Field, Desc: s.Desc})
		}
		dq.Aggregations = append(dq.Aggregations, da)
	}
	for _, u := range q.UpdateFields {
		if u.Mode == UpdateDrop {
			dq.DropFields = append(dq.DropFields, u.Column)
			continue
		}
		du := dslUpdate{Name: u.Column, IsExpression: u.IsExpression}
		if u.Mode == UpdateSetJSON {
			du.Type = "json"
		}
		for _, v := range u.Values {
			du.Values = append(du.Values, v.Interface())
		}
		dq.UpdateFields = append(dq.UpdateFields, du)
	}
	for _, j := range q.Joins {
		dq.JoinQueries = append(dq.JoinQueries, joinToDSL(j))
	}
	for _, m := range q.MergeQueries {
		dq.MergeQueries = append(dq.MergeQueries, joinToDSL(m))
	}
	return dq
}

func joinToDSL(j JoinQuery) dslJoin {
	dj := dslJoin{dslQuery: j.Query.toDSL("")}
	switch j.Type {
	case LeftJoin:
		dj.Type = "left"
	case InnerJoin:
		dj.Type = "inner"
	case OrInnerJoin:
		dj.Type = "orinner"
	case Merge:
		dj.Type = "merge"
	}
	for _, on := range j.On {
		dj.On = append(dj.On, dslJoinCond{
			Op:         strings.ToLower(on.Op.String()),
			LeftField:  on.LeftField,
			Cond:       strings.ToLower(on.Cond.String()),
			RightField: on.RightField,
		})
	}
	return dj
}

func nodesToFilters(nodes []Node) []dslFilter {
	var out []dslFilter
	for _, n := range nodes {
		f := dslFilter{Op: strings.ToLower(n.Op.String())}
		switch {
		case n.AlwaysFalse:
			f.AlwaysFalse = true
		case n.JoinRef != nil:
			idx := n.JoinRef.JoinIdx
			f.JoinQuery = &idx
		case n.Bracket != nil:
			f.Filters = nodesToFilters(n.Bracket.Nodes)
			f.EqualPositions = n.Bracket.EqualPositions
		case n.BetweenFields != nil:
			f.FirstField = n.BetweenFields.FirstField
			f.Cond = strings.ToLower(n.BetweenFields.Cond.String())
			f.SecondField = n.BetweenFields.SecondField
		case n.Cond != nil:
			f.Field = n.Cond.Field
			f.Cond = strings.ToLower(n.Cond.Cond.String())
			switch len(n.Cond.Values) {
			case 0:
			case 1:
				if n.Cond.Cond == CondSet || n.Cond.Cond == CondAllSet {
					f.Value = []interface{}{n.Cond.Values[0].Interface()}
				} else {
					f.Value = n.Cond.Values[0].Interface()
				}
			default:
				vals := make([]interface{}, len(n.Cond.Values))
				for i, v := range n.Cond.Values {
					vals[i] = v.Interface()
				}
				f.Value = vals
			}
		}
		out = append(out, f)
	}
	return out
}

func aggTypeFromString(s string) (AggType, error) {
	switch strings.ToLower(s) {
	case "sum":
		return AggSum, nil
	case "avg":
		return AggAvg, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "facet":
		return AggFacet, nil
	case "distinct":
		return AggDistinct, nil
	case "count":
		return AggCount, nil
	case "count_cached":
		return AggCountCached, nil
	default:
		return AggSum, dberrors.Parse("unknown aggregation type %q", s)
	}
}
