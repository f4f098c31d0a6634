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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/entities/payload"
)

func TestDSLRoundTrip(t *testing.T) {
	q := New("items").
		Where("price", CondRange, payload.Int64Value(10), payload.Int64Value(100)).
		WhereOp(OpNot, "archived", CondEq, payload.Bool(true)).
		SortBy("price", true).
		WithLimit(10, 5).
		Aggregate(AggFacet, "brand")
	q.CalcTotal = ModeCachedTotal
	q.OpenBracket(OpOr,
		Node{Op: OpAnd, Cond: &CondEntry{Field: "color", Cond: CondSet,
			Values: payload.Variants{payload.String("red"), payload.String("blue")}}},
	)
	q.EqualPositions = [][]string{{"sizes", "prices"}}

	data, err := q.ToDSL()
	require.NoError(t, err)
	back, err := FromDSL(data)
	require.NoError(t, err)

	data2, err := back.ToDSL()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(data2))
	assert.Equal(t, q.Namespace, back.Namespace)
	assert.Equal(t, q.Limit, back.Limit)
	assert.Equal(t, q.Offset, back.Offset)
	assert.Equal(t, q.CalcTotal, back.CalcTotal)
	assert.Len(t, back.Entries, len(q.Entries))
	assert.Equal(t, q.EqualPositions, back.EqualPositions)
}

func TestDSLJoinRoundTrip(t *testing.T) {
	right := New("authors").Where("name", CondLike, payload.String("A%"))
	q := New("books")
	q.InnerJoinOn(right, InnerJoin, "author_id", CondEq, "id")

	data, err := q.ToDSL()
	require.NoError(t, err)
	back, err := FromDSL(data)
	require.NoError(t, err)

	require.Len(t, back.Joins, 1)
	assert.Equal(t, InnerJoin, back.Joins[0].Type)
	assert.Equal(t, "authors", back.Joins[0].Namespace)
	require.Len(t, back.Joins[0].On, 1)
	assert.Equal(t, "author_id", back.Joins[0].On[0].LeftField)
	assert.Equal(t, "id", back.Joins[0].On[0].RightField)
	require.Len(t, back.Entries, 1)
	require.NotNil(t, back.Entries[0].JoinRef)
}

func TestDSLMissingNamespace(t *testing.T) {
	_, err := FromDSL([]byte(`{"filters":[]}`))
	assert.Error(t, err)
}

func TestToSQLBasics(t *testing.T) {
	q := New("ns").
		Where("score", CondGe, payload.Int64Value(20)).
		Where("score", CondLe, payload.Int64Value(40)).
		SortBy("score", true, payload.Int64Value(30), payload.Int64Value(10)).
		WithLimit(7, 2)
	sql := q.ToSQL()
	assert.Contains(t, sql, "SELECT * FROM ns")
	assert.Contains(t, sql, "score >= 20 AND score <= 40")
	assert.Contains(t, sql, "ORDER BY score(30,10) DESC")
	assert.Contains(t, sql, "LIMIT 7")
	assert.Contains(t, sql, "OFFSET 2")
}

func TestToSQLUpdate(t *testing.T) {
	q := New("ns")
	q.UpdateFields = []UpdateEntry{
		{Column: "title", Values: payload.Variants{payload.String("x")}},
		{Column: "old", Mode: UpdateDrop},
	}
	q.Where("id", CondEq, payload.Int64Value(1))
	sql := q.ToSQL()
	assert.Contains(t, sql, "UPDATE ns SET title = 'x' DROP old WHERE id = 1")
}
