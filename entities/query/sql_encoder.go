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
	"fmt"
	"strings"

	"github.com/weaviate/kestrel/entities/payload"
)

// ToSQL renders the query as SQL that the parser accepts back into an
// equal query (up to literal formatting).
func (q *Query) ToSQL() string {
	var b strings.Builder
	if len(q.UpdateFields) > 0 {
		q.updateToSQL(&b)
		return b.String()
	}
	b.WriteString("SELECT ")
	q.selectClauseToSQL(&b)
	b.WriteString(" FROM ")
	b.WriteString(q.Namespace)
	q.tailToSQL(&b)
	return b.String()
}

// ToDeleteSQL renders the filter part as a DELETE statement.
func (q *Query) ToDeleteSQL() string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(q.Namespace)
	q.tailToSQL(&b)
	return b.String()
}

func (q *Query) selectClauseToSQL(b *strings.Builder) {
	var parts []string
	for _, a := range q.Aggregations {
		var inner strings.Builder
		inner.WriteString(strings.Join(a.Fields, ","))
		for _, s := range a.Sort {
			inner.WriteString(" ORDER BY ")
			inner.WriteString(s.Field)
			if s.Desc {
				inner.WriteString(" DESC")
			}
		}
		if a.Limit > 0 {
			fmt.Fprintf(&inner, " LIMIT %d", a.Limit)
		}
		if a.Offset > 0 {
			fmt.Fprintf(&inner, " OFFSET %d", a.Offset)
		}
		switch a.Type {
		case AggCount:
			parts = append(parts, "COUNT(*)")
		case AggCountCached:
			parts = append(parts, "COUNT_CACHED(*)")
		default:
			parts = append(parts, fmt.Sprintf("%s(%s)", a.Type, inner.String()))
		}
	}
	if len(q.SelectFilter) > 0 {
		parts = append(parts, q.SelectFilter...)
	}
	if len(parts) == 0 {
		parts = append(parts, "*")
	}
	b.WriteString(strings.Join(parts, ", "))
}

func (q *Query) updateToSQL(b *strings.Builder) {
	b.WriteString("UPDATE ")
	b.WriteString(q.Namespace)
	var sets, drops []string
	for _, u := range q.UpdateFields {
		if u.Mode == UpdateDrop {
			drops = append(drops, u.Column)
			continue
		}
		val := ""
		switch {
		case u.IsExpression && len(u.Values) == 1:
			val = u.Values[0].Str()
		case len(u.Values) == 1:
			val = sqlLiteral(u.Values[0])
		default:
			parts := make([]string, len(u.Values))
			for i, v := range u.Values {
				parts[i] = sqlLiteral(v)
			}
			val = "[" + strings.Join(parts, ",") + "]"
		}
		sets = append(sets, fmt.Sprintf("%s = %s", u.Column, val))
	}
	if len(sets) > 0 {
		b.WriteString(" SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	if len(drops) > 0 {
		b.WriteString(" DROP ")
		b.WriteString(strings.Join(drops, ", "))
	}
	q.tailToSQL(b)
}

func (q *Query) tailToSQL(b *strings.Builder) {
	// join references are rendered by their JOIN clause below
	var where []Node
	for _, n := range q.Entries {
		if n.JoinRef == nil {
			where = append(where, n)
		}
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		nodesToSQL(b, where)
	}
	for _, j := range q.Joins {
		if j.Type == LeftJoin {
			joinToSQL(b, &j)
		}
	}
	for i := range q.Joins {
		j := &q.Joins[i]
		if j.Type == InnerJoin || j.Type == OrInnerJoin {
			joinToSQL(b, j)
		}
	}
	for i := range q.MergeQueries {
		b.WriteString(" MERGE (")
		b.WriteString(q.MergeQueries[i].Query.ToSQL())
		b.WriteString(")")
	}
	for _, ep := range q.EqualPositions {
		fmt.Fprintf(b, " EQUAL_POSITION(%s)", strings.Join(ep, ","))
	}
	for _, s := range q.Sort {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.Field)
		if len(s.ForcedValues) > 0 {
			b.WriteString("(")
			parts := make([]string, len(s.ForcedValues))
			for i, v := range s.ForcedValues {
				parts[i] = sqlLiteral(v)
			}
			b.WriteString(strings.Join(parts, ","))
			b.WriteString(")")
		}
		if s.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if q.Limit >= 0 {
		fmt.Fprintf(b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(b, " OFFSET %d", q.Offset)
	}
}

func joinToSQL(b *strings.Builder, j *JoinQuery) {
	switch j.Type {
	case LeftJoin:
		b.WriteString(" LEFT JOIN ")
	case OrInnerJoin:
		b.WriteString(" OR INNER JOIN ")
	default:
		b.WriteString(" INNER JOIN ")
	}
	b.WriteString(j.Namespace)
	b.WriteString(" ON ")
	for i, on := range j.On {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(on.Op.String())
			b.WriteString(" ")
		}
		fmt.Fprintf(b, "%s %s %s.%s", on.LeftField, condSQL(on.Cond), j.Namespace, on.RightField)
	}
}

func nodesToSQL(b *strings.Builder, nodes []Node) {
	for i, n := range nodes {
		if i > 0 {
			switch n.Op {
			case OpOr:
				b.WriteString(" OR ")
			case OpNot:
				b.WriteString(" AND NOT ")
			default:
				b.WriteString(" AND ")
			}
		} else if n.Op == OpNot {
			b.WriteString("NOT ")
		}
		switch {
		case n.AlwaysFalse:
			b.WriteString("FALSE")
		case n.Bracket != nil:
			b.WriteString("(")
			nodesToSQL(b, n.Bracket.Nodes)
			b.WriteString(")")
		case n.BetweenFields != nil:
			fmt.Fprintf(b, "%s %s %s", n.BetweenFields.FirstField, condSQL(n.BetweenFields.Cond), n.BetweenFields.SecondField)
		case n.Cond != nil:
			condToSQL(b, n.Cond)
		}
	}
}

func condToSQL(b *strings.Builder, c *CondEntry) {
	field := c.Field
	if strings.Contains(field, "+") {
		field = fmt.Sprintf("%q", field)
	}
	switch c.Cond {
	case CondAny:
		fmt.Fprintf(b, "%s IS NOT NULL", field)
	case CondEmpty:
		fmt.Fprintf(b, "%s IS NULL", field)
	case CondRange:
		fmt.Fprintf(b, "%s RANGE(%s,%s)", field, sqlLiteral(c.Values[0]), sqlLiteral(c.Values[1]))
	case CondSet, CondAllSet:
		verb := "IN"
		if c.Cond == CondAllSet {
			verb = "ALLSET"
		}
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = sqlLiteral(v)
		}
		fmt.Fprintf(b, "%s %s (%s)", field, verb, strings.Join(parts, ","))
	case CondDWithin:
		fmt.Fprintf(b, "ST_DWithin(%s, ST_GeomFromText('point (%s %s)'), %s)",
			field, c.Values[0], c.Values[1], c.Values[2])
	case CondEq:
		if len(c.Values) > 1 {
			parts := make([]string, len(c.Values))
			for i, v := range c.Values {
				parts[i] = sqlLiteral(v)
			}
			fmt.Fprintf(b, "%s = (%s)", field, strings.Join(parts, ","))
			return
		}
		fmt.Fprintf(b, "%s = %s", field, sqlLiteral(c.Values[0]))
	default:
		fmt.Fprintf(b, "%s %s %s", field, condSQL(c.Cond), sqlLiteral(c.Values[0]))
	}
}

func condSQL(c CondType) string {
	switch c {
	case CondEq:
		return "="
	case CondLt:
		return "<"
	case CondLe:
		return "<="
	case CondGt:
		return ">"
	case CondGe:
		return ">="
	case CondSet:
		return "IN"
	case CondAllSet:
		return "ALLSET"
	case CondLike:
		return "LIKE"
	default:
		return c.String()
	}
}

func sqlLiteral(v payload.Variant) string {
	if v.Kind() == payload.KindString {
		return "'" + strings.ReplaceAll(v.Str(), "'", "\\'") + "'"
	}
	return v.String()
}
