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

package idset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUnorderedAddCommit(t *testing.T) {
	s := New()
	for _, id := range []int{5, 3, 9, 3, 1} {
		s.Add(id, AddUnordered)
	}
	s.Commit()
	assert.Equal(t, []int{1, 3, 5, 9}, s.Slice())
}

func TestSetOrderedAdd(t *testing.T) {
	s := New()
	for _, id := range []int{5, 3, 9, 3, 1} {
		s.Add(id, AddOrdered)
	}
	assert.Equal(t, []int{1, 3, 5, 9}, s.Slice())
	assert.True(t, s.Contains(5))
	assert.False(t, s.Contains(4))
}

func TestSetErase(t *testing.T) {
	s := NewFrom(1, 2, 3)
	require.True(t, s.Erase(2))
	require.False(t, s.Erase(2))
	assert.Equal(t, []int{1, 3}, s.Slice())
}

func TestSetSortedPermutation(t *testing.T) {
	s := NewFrom(1, 2, 3)
	s.SetSorted(0, []int{3, 1, 2})
	assert.Equal(t, []int{3, 1, 2}, s.Sorted(0))
	// unknown sort id falls back to ascending
	assert.Equal(t, []int{1, 2, 3}, s.Sorted(7))
}

func TestSetBitmapPromotion(t *testing.T) {
	s := New()
	for i := 0; i < bitmapThreshold+10; i++ {
		s.Add(i, AddUnordered)
	}
	assert.Equal(t, bitmapThreshold+10, s.Size())
	assert.True(t, s.Contains(bitmapThreshold+5))
	require.True(t, s.Erase(0))
	assert.False(t, s.Contains(0))
}

func TestIntersect(t *testing.T) {
	a := NewFrom(1, 3, 5, 7)
	b := NewFrom(3, 4, 5, 9)
	assert.Equal(t, []int{3, 5}, Intersect(a, b))
}

func TestRelSetPostings(t *testing.T) {
	rs := NewRelSet()
	rs.Add(1, 0, 0)
	rs.Add(1, 4, 1)
	rs.Add(2, 2, 0)

	rel := rs.Find(1)
	require.NotNil(t, rel)
	assert.EqualValues(t, 0b11, rel.UsedFieldsMask())
	assert.Equal(t, 1, rel.WordsInField(0))
	assert.Equal(t, 0, rel.MinPositionInField(0))
	assert.Equal(t, 4, rel.MinPositionInField(1))
	assert.Equal(t, -1, rel.MinPositionInField(2))

	rs.Erase(1)
	assert.Nil(t, rs.Find(1))
	assert.Equal(t, 1, rs.Len())
}

func TestRelSetDistance(t *testing.T) {
	a := &IdRel{}
	b := &IdRel{}
	a.FieldsMask = 1
	a.Positions = []PackedPos{PackPos(2, 0)}
	b.FieldsMask = 1
	b.Positions = []PackedPos{PackPos(5, 0)}
	assert.Equal(t, 3, a.Distance(b, 100))

	// no shared field: capped at max
	c := &IdRel{Positions: []PackedPos{PackPos(1, 1)}, FieldsMask: 2}
	assert.Equal(t, 100, a.Distance(c, 100))
}

func TestRelSetOutOfOrderCommit(t *testing.T) {
	rs := NewRelSet()
	rs.Add(5, 0, 0)
	rs.Add(2, 1, 0)
	rs.Add(5, 2, 0)
	rs.Commit()
	require.Equal(t, 2, rs.Len())
	rel := rs.Find(5)
	require.NotNil(t, rel)
	assert.Equal(t, 2, rel.WordsInField(0))
}
