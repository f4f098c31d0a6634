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

package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantCompare(t *testing.T) {
	type tc struct {
		name    string
		a, b    Variant
		expect  int
	}
	tests := []tc{
		{"int_lt", Int(1), Int(2), -1},
		{"int_eq_int64", Int(5), Int64Value(5), 0},
		{"double_vs_int", Double(2.5), Int(2), 1},
		{"string_eq", String("abc"), String("abc"), 0},
		{"null_first", Null(), Int(0), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.a.Compare(tt.b, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, r)
		})
	}

	_, err := String("a").Compare(Int(1), nil)
	assert.Error(t, err)
}

func TestVariantRelaxedEqualAndHash(t *testing.T) {
	assert.True(t, Int(42).RelaxedEqual(Int64Value(42)))
	assert.True(t, Int(42).RelaxedEqual(Double(42)))
	assert.False(t, Int(42).RelaxedEqual(String("42")))
	assert.True(t, Null().RelaxedEqual(Null()))
	assert.False(t, Null().RelaxedEqual(Int(0)))

	// relaxed-equal values must hash equally
	assert.Equal(t, Int(7).Hash(), Int64Value(7).Hash())
	assert.Equal(t, Int(7).Hash(), Double(7).Hash())
	assert.NotEqual(t, Int(7).Hash(), Int(8).Hash())
}

func TestCollateCompare(t *testing.T) {
	ci := &CollateOpts{Mode: CollateASCII}
	r, err := String("HELLO").Compare(String("hello"), ci)
	require.NoError(t, err)
	assert.Equal(t, 0, r)

	num := &CollateOpts{Mode: CollateNumeric}
	r, err = String("9").Compare(String("10"), num)
	require.NoError(t, err)
	assert.Equal(t, -1, r)
}

func TestTagsMatcherStableTags(t *testing.T) {
	tm := NewTagsMatcher()
	tag1 := tm.Name2Tag("id", true)
	tag2 := tm.Name2Tag("title", true)
	require.NotEqual(t, tag1, tag2)
	// a tagged name keeps its tag
	assert.Equal(t, tag1, tm.Name2Tag("id", true))
	assert.Equal(t, "id", tm.Tag2Name(tag1))
	assert.True(t, tm.IsUpdated())
}

func TestTagsMatcherTryMerge(t *testing.T) {
	a := NewTagsMatcher()
	a.Name2Tag("id", true)
	a.Name2Tag("title", true)

	b := a.Clone()
	b.Name2Tag("extra", true)
	require.True(t, a.TryMerge(b))
	assert.Equal(t, b.Tag2Name(3), a.Tag2Name(3))

	// conflicting layout fails the merge
	c := NewTagsMatcher()
	c.Name2Tag("title", true) // gets tag 1, conflicting with a's "id"
	assert.False(t, a.TryMerge(c))
}

func TestCJSONRoundTrip(t *testing.T) {
	tm := NewTagsMatcher()
	doc := []byte(`{"id":1,"title":"hello","nested":{"deep":[1,2,3]},"ok":true,"pi":3.5,"none":null}`)
	cj, err := JSONToCJSON(doc, tm)
	require.NoError(t, err)
	back, err := CJSONToJSON(cj, tm)
	require.NoError(t, err)

	var want, got map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &want))
	require.NoError(t, json.Unmarshal(back, &got))
	assert.Equal(t, want, got)
}

func TestCJSONValuesByTagsPath(t *testing.T) {
	tm := NewTagsMatcher()
	doc := []byte(`{"a":{"b":[{"c":1},{"c":2}]}}`)
	cj, err := JSONToCJSON(doc, tm)
	require.NoError(t, err)
	tp, err := tm.Path2Tags("a.b.c", false)
	require.NoError(t, err)
	vals, err := ValuesByTagsPath(cj, tp, tm)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.EqualValues(t, 1, vals[0].Int64())
	assert.EqualValues(t, 2, vals[1].Int64())
}

func TestMsgPackRoundTrip(t *testing.T) {
	doc := []byte(`{"id":7,"tags":["a","b"]}`)
	mp, err := JSONToMsgPack(doc)
	require.NoError(t, err)
	back, err := MsgPackToJSON(mp)
	require.NoError(t, err)

	var want, got map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &want))
	require.NoError(t, json.Unmarshal(back, &got))
	assert.Equal(t, want, got)
}

func TestValueHashChangesWithContent(t *testing.T) {
	typ := NewType()
	_, err := typ.AddField(Field{Name: "id", Kind: KindInt})
	require.NoError(t, err)

	v1 := NewValue(typ)
	require.NoError(t, v1.Set(1, Variants{Int(1)}))
	v2 := NewValue(typ)
	require.NoError(t, v2.Set(1, Variants{Int(2)}))
	assert.NotEqual(t, v1.Hash(), v2.Hash())
}

func TestStringsHolderDrain(t *testing.T) {
	h := NewStringsHolder()
	e := h.Enter()
	h.Hold([]string{"retired"})
	// the active reader pins the epoch
	h.Drain()
	assert.Greater(t, h.MemSize(), int64(0))
	h.Leave(e)
	h.Drain()
	assert.Equal(t, int64(0), h.MemSize())
}
