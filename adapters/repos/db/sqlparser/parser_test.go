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

package sqlparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

func TestParseSelectBasic(t *testing.T) {
	q, verb, err := Parse("SELECT * FROM items WHERE price >= 10 AND price <= 100 ORDER BY price DESC LIMIT 5 OFFSET 2")
	require.NoError(t, err)
	assert.Equal(t, VerbSelect, verb)
	assert.Equal(t, "items", q.Namespace)
	require.Len(t, q.Entries, 2)
	assert.Equal(t, query.CondGe, q.Entries[0].Cond.Cond)
	assert.Equal(t, query.CondLe, q.Entries[1].Cond.Cond)
	require.Len(t, q.Sort, 1)
	assert.True(t, q.Sort[0].Desc)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 2, q.Offset)
}

func TestParseSelectConditions(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		cond query.CondType
	}{
		{"in", "SELECT * FROM ns WHERE id IN (1,2,3)", query.CondSet},
		{"allset", "SELECT * FROM ns WHERE tags ALLSET (1,2)", query.CondAllSet},
		{"range", "SELECT * FROM ns WHERE x RANGE(1,5)", query.CondRange},
		{"like", "SELECT * FROM ns WHERE name LIKE 'a%'", query.CondLike},
		{"null", "SELECT * FROM ns WHERE x IS NULL", query.CondEmpty},
		{"notnull", "SELECT * FROM ns WHERE x IS NOT NULL", query.CondAny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, err := Parse(tt.sql)
			require.NoError(t, err)
			require.Len(t, q.Entries, 1)
			assert.Equal(t, tt.cond, q.Entries[0].Cond.Cond)
		})
	}
}

func TestParseNotEqual(t *testing.T) {
	q, _, err := Parse("SELECT * FROM ns WHERE status != 'open'")
	require.NoError(t, err)
	require.Len(t, q.Entries, 1)
	assert.Equal(t, query.OpNot, q.Entries[0].Op)
	assert.Equal(t, query.CondEq, q.Entries[0].Cond.Cond)
}

func TestParseCompositeEquality(t *testing.T) {
	q, _, err := Parse(`SELECT * FROM ns WHERE "a+b" = (1,2)`)
	require.NoError(t, err)
	require.Len(t, q.Entries, 1)
	assert.Equal(t, "a+b", q.Entries[0].Cond.Field)
	require.Len(t, q.Entries[0].Cond.Values, 2)
}

func TestParseBrackets(t *testing.T) {
	q, _, err := Parse("SELECT * FROM ns WHERE a = 1 AND (b = 2 OR c = 3)")
	require.NoError(t, err)
	require.Len(t, q.Entries, 2)
	require.NotNil(t, q.Entries[1].Bracket)
	assert.Len(t, q.Entries[1].Bracket.Nodes, 2)
	assert.Equal(t, query.OpOr, q.Entries[1].Bracket.Nodes[1].Op)
}

func TestParseAggregations(t *testing.T) {
	q, _, err := Parse("SELECT COUNT(*), SUM(price), FACET(brand ORDER BY count DESC LIMIT 10) FROM ns")
	require.NoError(t, err)
	require.Len(t, q.Aggregations, 3)
	assert.Equal(t, query.AggCount, q.Aggregations[0].Type)
	assert.Equal(t, query.AggSum, q.Aggregations[1].Type)
	assert.Equal(t, []string{"price"}, q.Aggregations[1].Fields)
	assert.Equal(t, query.AggFacet, q.Aggregations[2].Type)
	assert.Equal(t, 10, q.Aggregations[2].Limit)
	require.Len(t, q.Aggregations[2].Sort, 1)
	assert.Equal(t, "count", q.Aggregations[2].Sort[0].Field)
}

func TestParseJoin(t *testing.T) {
	q, _, err := Parse("SELECT * FROM books INNER JOIN authors ON books.author_id = authors.id WHERE rating > 3")
	require.NoError(t, err)
	require.Len(t, q.Joins, 1)
	assert.Equal(t, query.InnerJoin, q.Joins[0].Type)
	assert.Equal(t, "authors", q.Joins[0].Namespace)
	require.Len(t, q.Joins[0].On, 1)
	assert.Equal(t, "author_id", q.Joins[0].On[0].LeftField)
	assert.Equal(t, "id", q.Joins[0].On[0].RightField)
	// the join is referenced from the filter tree
	var joinRefs int
	for _, n := range q.Entries {
		if n.JoinRef != nil {
			joinRefs++
		}
	}
	assert.Equal(t, 1, joinRefs)
}

func TestParseForcedSort(t *testing.T) {
	q, _, err := Parse("SELECT * FROM ns WHERE score >= 20 ORDER BY score(30,10,20) DESC")
	require.NoError(t, err)
	require.Len(t, q.Sort, 1)
	assert.True(t, q.Sort[0].Desc)
	assert.Equal(t, payload.Variants{
		payload.Int64Value(30), payload.Int64Value(10), payload.Int64Value(20),
	}, q.Sort[0].ForcedValues)
}

func TestParseDWithin(t *testing.T) {
	q, _, err := Parse("SELECT * FROM ns WHERE ST_DWithin(location, ST_GeomFromText('point (12.5 -42)'), 3.5)")
	require.NoError(t, err)
	require.Len(t, q.Entries, 1)
	c := q.Entries[0].Cond
	require.NotNil(t, c)
	assert.Equal(t, query.CondDWithin, c.Cond)
	require.Len(t, c.Values, 3)
	assert.Equal(t, 12.5, c.Values[0].Float())
	assert.Equal(t, -42.0, c.Values[1].Float())
	assert.Equal(t, 3.5, c.Values[2].Float())
}

func TestParseUpdate(t *testing.T) {
	q, verb, err := Parse("UPDATE ns SET title = 'new', price = price + 5 DROP legacy WHERE id = 7")
	require.NoError(t, err)
	assert.Equal(t, VerbUpdate, verb)
	require.Len(t, q.UpdateFields, 3)
	assert.Equal(t, "title", q.UpdateFields[0].Column)
	assert.True(t, q.UpdateFields[1].IsExpression)
	assert.Equal(t, query.UpdateDrop, q.UpdateFields[2].Mode)
}

func TestParseDeleteAndTruncate(t *testing.T) {
	q, verb, err := Parse("DELETE FROM ns WHERE id = 1")
	require.NoError(t, err)
	assert.Equal(t, VerbDelete, verb)
	assert.Equal(t, "ns", q.Namespace)

	q, verb, err = Parse("TRUNCATE ns")
	require.NoError(t, err)
	assert.Equal(t, VerbTruncate, verb)
	assert.Equal(t, "ns", q.Namespace)
}

func TestParseErrorsAreParseSQL(t *testing.T) {
	_, _, err := Parse("SELEC * FROM ns")
	require.Error(t, err)
	assert.Equal(t, dberrors.KindParseSQL, dberrors.KindOf(err))

	_, _, err = Parse("SELECT * FROM")
	assert.Error(t, err)
}

func TestSQLRoundTrip(t *testing.T) {
	stmts := []string{
		"SELECT * FROM ns WHERE a = 1 AND b IN (1,2) ORDER BY a ASC LIMIT 3",
		"SELECT * FROM books INNER JOIN authors ON author_id = authors.id",
		"DELETE FROM ns WHERE x >= 5",
	}
	for _, sql := range stmts {
		q, verb, err := Parse(sql)
		require.NoError(t, err, sql)
		var rendered string
		if verb == VerbDelete {
			rendered = q.ToDeleteSQL()
		} else {
			rendered = q.ToSQL()
		}
		q2, _, err := Parse(rendered)
		require.NoError(t, err, rendered)
		assert.Equal(t, q.Namespace, q2.Namespace)
		assert.Len(t, q2.Entries, len(q.Entries))
		assert.Len(t, q2.Joins, len(q.Joins))
	}
}
