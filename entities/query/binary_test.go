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

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/payload"
)

func TestBinaryRoundTrip(t *testing.T) {
	right := New("authors").Where("name", CondLike, payload.String("A%"))
	q := New("books").
		Where("price", CondRange, payload.Int64Value(1), payload.Int64Value(9)).
		SortBy("price", true, payload.Int64Value(5)).
		WithLimit(10, 2).
		Aggregate(AggFacet, "brand")
	q.CalcTotal = ModeAccurateTotal
	q.OpenBracket(OpOr,
		Node{Op: OpAnd, Cond: &CondEntry{Field: "x", Cond: CondEq, Values: payload.Variants{payload.Bool(true)}}},
		Node{Op: OpNot, AlwaysFalse: true},
	)
	q.Entries = append(q.Entries, Node{Op: OpAnd, BetweenFields: &BetweenFieldsEntry{
		FirstField: "a", Cond: CondLt, SecondField: "b",
	}})
	q.InnerJoinOn(right, InnerJoin, "author_id", CondEq, "id")
	q.UpdateFields = []UpdateEntry{{Column: "c", Values: payload.Variants{payload.String("v")}}}
	q.EqualPositions = [][]string{{"f1", "f2"}}

	w := binser.NewWriter()
	q.Serialize(w)
	back, err := Deserialize(binser.NewReader(w.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, q.Namespace, back.Namespace)
	assert.Equal(t, q.Limit, back.Limit)
	assert.Equal(t, q.Offset, back.Offset)
	assert.Equal(t, q.CalcTotal, back.CalcTotal)
	assert.Equal(t, q.Entries, back.Entries)
	assert.Equal(t, q.Sort, back.Sort)
	assert.Equal(t, q.Aggregations, back.Aggregations)
	assert.Equal(t, q.UpdateFields, back.UpdateFields)
	assert.Equal(t, q.EqualPositions, back.EqualPositions)
	require.Len(t, back.Joins, 1)
	assert.Equal(t, q.Joins[0].Type, back.Joins[0].Type)
	assert.Equal(t, q.Joins[0].On, back.Joins[0].On)
	assert.Equal(t, q.Joins[0].Namespace, back.Joins[0].Namespace)
	assert.Equal(t, q.Joins[0].Entries, back.Joins[0].Entries)
}

func TestBinaryTruncatedFails(t *testing.T) {
	q := New("ns").Where("a", CondEq, payload.Int(1))
	w := binser.NewWriter()
	q.Serialize(w)
	_, err := Deserialize(binser.NewReader(w.Bytes()[:4]))
	assert.Error(t, err)
}
