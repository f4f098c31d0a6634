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

package indexes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// rowStore is the test double for the namespace's row access.
type rowStore struct {
	rows map[int]payload.Variants
}

func (r *rowStore) get(rowID int) payload.Variants {
	return r.rows[rowID]
}

func newHashIndex(t *testing.T, name string) (Index, *rowStore) {
	t.Helper()
	rs := &rowStore{rows: map[int]payload.Variants{}}
	idx := NewFieldIndex(Def{Name: name, Type: TypeHash, KeyKind: payload.KindInt}, rs.get)
	return idx, rs
}

func newTreeIndex(t *testing.T, name string) (Index, *rowStore) {
	t.Helper()
	rs := &rowStore{rows: map[int]payload.Variants{}}
	idx := NewFieldIndex(Def{Name: name, Type: TypeTree, KeyKind: payload.KindInt}, rs.get)
	return idx, rs
}

func upsertRow(t *testing.T, idx Index, rs *rowStore, rowID int, vals ...payload.Variant) {
	t.Helper()
	rs.rows[rowID] = vals
	require.NoError(t, idx.Upsert(vals, payload.Value{}, rowID))
}

func selectIDs(t *testing.T, idx Index, cond query.CondType, keys ...payload.Variant) []int {
	t.Helper()
	res, err := idx.SelectKey(context.Background(), keys, cond, -1, SelectOpts{ItemsCount: 100})
	require.NoError(t, err)
	require.Empty(t, res.Comparators())
	return res.MergeIDs()
}

func TestHashIndexEqAndSet(t *testing.T) {
	idx, rs := newHashIndex(t, "id")
	upsertRow(t, idx, rs, 0, payload.Int(10))
	upsertRow(t, idx, rs, 1, payload.Int(20))
	upsertRow(t, idx, rs, 2, payload.Int(10))
	idx.Commit()

	assert.Equal(t, []int{0, 2}, selectIDs(t, idx, query.CondEq, payload.Int(10)))
	assert.Equal(t, []int{0, 1, 2}, selectIDs(t, idx, query.CondSet, payload.Int(10), payload.Int(20)))
	assert.Empty(t, selectIDs(t, idx, query.CondSet))
}

func TestHashIndexDelete(t *testing.T) {
	idx, rs := newHashIndex(t, "id")
	upsertRow(t, idx, rs, 0, payload.Int(10))
	upsertRow(t, idx, rs, 1, payload.Int(10))
	require.NoError(t, idx.Delete(payload.Variants{payload.Int(10)}, payload.Value{}, 0))
	assert.Equal(t, []int{1}, selectIDs(t, idx, query.CondEq, payload.Int(10)))
}

func TestHashIndexRangeFallsBackToComparator(t *testing.T) {
	idx, rs := newHashIndex(t, "id")
	upsertRow(t, idx, rs, 0, payload.Int(10))
	res, err := idx.SelectKey(context.Background(),
		payload.Variants{payload.Int(5)}, query.CondGt, -1, SelectOpts{ItemsCount: 1})
	require.NoError(t, err)
	require.Len(t, res.Comparators(), 1)
	assert.True(t, res.Comparators()[0].Match(0))
}

func TestTreeIndexRange(t *testing.T) {
	idx, rs := newTreeIndex(t, "score")
	for i, v := range []int{10, 20, 30, 40, 50} {
		upsertRow(t, idx, rs, i, payload.Int(v))
	}
	idx.Commit()

	assert.Equal(t, []int{1, 2, 3},
		selectIDs(t, idx, query.CondRange, payload.Int(20), payload.Int(40)))
	assert.Equal(t, []int{0, 1}, selectIDs(t, idx, query.CondLt, payload.Int(30)))
	assert.Equal(t, []int{3, 4}, selectIDs(t, idx, query.CondGt, payload.Int(30)))
	// reversed bounds are empty, equal bounds behave as Eq
	assert.Empty(t, selectIDs(t, idx, query.CondRange, payload.Int(40), payload.Int(20)))
	assert.Equal(t, []int{2},
		selectIDs(t, idx, query.CondRange, payload.Int(30), payload.Int(30)))
}

func TestTreeIndexSortOrders(t *testing.T) {
	idx, rs := newTreeIndex(t, "score")
	upsertRow(t, idx, rs, 0, payload.Int(30))
	upsertRow(t, idx, rs, 1, payload.Int(10))
	upsertRow(t, idx, rs, 2, payload.Int(20))
	idx.Commit()
	idx.SetSortID(0)

	orders := idx.MakeSortOrders(context.Background())
	assert.Equal(t, []int{1, 2, 0}, orders)
	idx.UpdateSortedIDs(context.Background())
	assert.Equal(t, 0, idx.SortID())
}

func TestSparseEmptyCond(t *testing.T) {
	rs := &rowStore{rows: map[int]payload.Variants{}}
	idx := NewFieldIndex(Def{
		Name: "opt", Type: TypeHash, KeyKind: payload.KindString,
		Opts: Opts{Sparse: true},
	}, rs.get)
	upsertRow(t, idx, rs, 0, payload.String("x"))
	rs.rows[1] = nil
	require.NoError(t, idx.Upsert(nil, payload.Value{}, 1))

	assert.Equal(t, []int{1}, selectIDs(t, idx, query.CondEmpty))
	assert.Equal(t, []int{0}, selectIDs(t, idx, query.CondEq, payload.String("x")))
}

func TestIdsetCacheInvalidation(t *testing.T) {
	idx, rs := newHashIndex(t, "id")
	upsertRow(t, idx, rs, 0, payload.Int(1))
	assert.Equal(t, []int{0}, selectIDs(t, idx, query.CondEq, payload.Int(1)))
	// second select hits the cache
	assert.Equal(t, []int{0}, selectIDs(t, idx, query.CondEq, payload.Int(1)))
	st := idx.MemStat()
	assert.GreaterOrEqual(t, st.CacheHits, uint64(1))

	// any mutation clears the cache
	upsertRow(t, idx, rs, 1, payload.Int(1))
	assert.Equal(t, []int{0, 1}, selectIDs(t, idx, query.CondEq, payload.Int(1)))
}

func TestForceComparator(t *testing.T) {
	idx, rs := newHashIndex(t, "id")
	upsertRow(t, idx, rs, 0, payload.Int(1))
	res, err := idx.SelectKey(context.Background(), payload.Variants{payload.Int(1)},
		query.CondEq, -1, SelectOpts{ItemsCount: 100, ForceComparator: true})
	require.NoError(t, err)
	require.Len(t, res.Comparators(), 1)
}

func makeCompositePayload(t *testing.T, typ *payload.Type, a, b int) payload.Value {
	t.Helper()
	v := payload.NewValue(typ)
	require.NoError(t, v.Set(1, payload.Variants{payload.Int(a)}))
	require.NoError(t, v.Set(2, payload.Variants{payload.Int(b)}))
	return v
}

func TestCompositeIndexLookup(t *testing.T) {
	typ := payload.NewType()
	_, err := typ.AddField(payload.Field{Name: "a", Kind: payload.KindInt})
	require.NoError(t, err)
	_, err = typ.AddField(payload.Field{Name: "b", Kind: payload.KindInt})
	require.NoError(t, err)

	rows := map[int]payload.Value{}
	idx := NewCompositeIndex(Def{
		Name: "a+b", Type: TypeCompositeHash, Fields: []string{"a", "b"},
	}, []int{1, 2}, nil, func(rowID int) payload.Value { return rows[rowID] })

	pairs := [][2]int{{1, 2}, {1, 3}, {2, 2}}
	for i, p := range pairs {
		rows[i] = makeCompositePayload(t, typ, p[0], p[1])
		require.NoError(t, idx.Upsert(nil, rows[i], i))
	}
	idx.Commit()

	// every row is found under its own composite key
	for i, p := range pairs {
		res, err := idx.SelectKey(context.Background(),
			payload.Variants{payload.Int(p[0]), payload.Int(p[1])},
			query.CondEq, -1, SelectOpts{})
		require.NoError(t, err)
		assert.Contains(t, res.MergeIDs(), i)
	}

	res, err := idx.SelectKey(context.Background(),
		payload.Variants{payload.Int(1), payload.Int(2)}, query.CondEq, -1, SelectOpts{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.MergeIDs())

	// arity mismatch is a params error
	_, err = idx.SelectKey(context.Background(),
		payload.Variants{payload.Int(1)}, query.CondEq, -1, SelectOpts{})
	assert.Error(t, err)
}

func TestLikeComparator(t *testing.T) {
	rs := &rowStore{rows: map[int]payload.Variants{
		0: {payload.String("apple")},
		1: {payload.String("banana")},
	}}
	cmp, err := NewComparator("name", query.CondLike,
		payload.Variants{payload.String("a%")}, nil, rs.get)
	require.NoError(t, err)
	assert.True(t, cmp.Match(0))
	assert.False(t, cmp.Match(1))

	cmp, err = NewComparator("name", query.CondLike,
		payload.Variants{payload.String("_anana")}, nil, rs.get)
	require.NoError(t, err)
	assert.True(t, cmp.Match(1))
}

func TestDWithinComparator(t *testing.T) {
	rs := &rowStore{rows: map[int]payload.Variants{
		0: {payload.Double(1), payload.Double(1)},
		1: {payload.Double(10), payload.Double(10)},
	}}
	cmp, err := NewComparator("loc", query.CondDWithin,
		payload.Variants{payload.Double(0), payload.Double(0), payload.Double(2)}, nil, rs.get)
	require.NoError(t, err)
	assert.True(t, cmp.Match(0))
	assert.False(t, cmp.Match(1))
}
