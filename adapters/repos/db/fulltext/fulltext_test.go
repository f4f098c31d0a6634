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

package fulltext

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/payload"
)

func newTestIndex(t *testing.T, cfg Config, fields ...string) *FastIndex {
	t.Helper()
	if len(fields) == 0 {
		fields = []string{"text"}
	}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewFastIndex(indexes.Def{Name: "search", Type: indexes.TypeFullText},
		cfg, fields, logger)
}

func addDoc(t *testing.T, ft *FastIndex, rowID int, texts ...string) {
	t.Helper()
	vals := make(payload.Variants, len(texts))
	for i, s := range texts {
		vals[i] = payload.String(s)
	}
	require.NoError(t, ft.Upsert(vals, payload.Value{}, rowID))
}

func rowIDs(md MergeData) []int {
	out := make([]int, len(md.Items))
	for i, m := range md.Items {
		out[i] = m.RowID
	}
	return out
}

func TestTokenizer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopWords = []string{"the"}
	tok := newTokenizer(&cfg)
	toks := tok.tokenize("The quick-brown Fox! jumps")
	words := make([]string, len(toks))
	for i, tk := range toks {
		words[i] = tk.text
	}
	// '-' is an extra word symbol and keeps quick-brown together; "the"
	// is filtered but still counts a position
	assert.Equal(t, []string{"quick-brown", "fox", "jumps"}, words)
	assert.Equal(t, 1, toks[0].pos)
}

func TestSuffixArrayLookup(t *testing.T) {
	words := []string{"hello", "help", "yellow"}
	sa := newSuffixArray(func(id int) string { return words[id] })
	for id := range words {
		sa.addWord(id)
	}
	sa.build()

	found := map[int]bool{}
	sa.lookup("ell", func(m suffixMatch) bool {
		found[m.wordID] = true
		return true
	})
	// substring "ell" occurs in hello and yellow only
	assert.True(t, found[0])
	assert.False(t, found[1])
	assert.True(t, found[2])
}

func TestExactVsPrefixMatch(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "hello world")
	addDoc(t, ft, 1, "help me")
	addDoc(t, ft, 2, "yellow")

	// exact: only the full word
	md, err := ft.Select(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))

	// prefix: hello and help
	md, err = ft.Select(context.Background(), "hel*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, rowIDs(md))

	// substring: hello and yellow
	md, err = ft.Select(context.Background(), "*ell*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 2}, rowIDs(md))
}

func TestPositionBoostOrdersResults(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "hello world")
	addDoc(t, ft, 1, "one two three four five six seven eight nine ten eleven twelve hello")

	md, err := ft.Select(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, md.Items, 2)
	// the doc with "hello" at position 0 ranks first
	assert.Equal(t, 0, md.Items[0].RowID)
	assert.Greater(t, md.Items[0].Proc, md.Items[1].Proc)
}

func TestAndOrNotMerge(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "red apple")
	addDoc(t, ft, 1, "green apple")
	addDoc(t, ft, 2, "red banana")

	md, err := ft.Select(context.Background(), "+apple +red")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))

	md, err = ft.Select(context.Background(), "apple banana")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2}, rowIDs(md))

	md, err = ft.Select(context.Background(), "+apple -green")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))
}

func TestTypoMatch(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "balance")

	// one dropped letter still finds the word
	md, err := ft.Select(context.Background(), "balnce")
	require.NoError(t, err)
	require.Len(t, md.Items, 1)
	assert.Equal(t, 0, md.Items[0].RowID)
	// typo matches rank below an exact match
	exact, err := ft.Select(context.Background(), "balance")
	require.NoError(t, err)
	assert.Greater(t, exact.Items[0].Proc, md.Items[0].Proc)
}

func TestDeleteRetiresDoc(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "hello")
	addDoc(t, ft, 1, "hello again")
	require.NoError(t, ft.Delete(nil, payload.Value{}, 0))

	md, err := ft.Select(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rowIDs(md))
}

func TestUpdateReplacesDoc(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "first version")
	md, err := ft.Select(context.Background(), "first")
	require.NoError(t, err)
	require.Len(t, md.Items, 1)

	addDoc(t, ft, 0, "second version")
	md, err = ft.Select(context.Background(), "first")
	require.NoError(t, err)
	assert.Empty(t, md.Items)
	md, err = ft.Select(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))
}

func TestFieldRestriction(t *testing.T) {
	ft := newTestIndex(t, Config{}, "title", "body")
	addDoc(t, ft, 0, "apple pie", "how to bake")
	addDoc(t, ft, 1, "baking basics", "apple filling tips")

	md, err := ft.Select(context.Background(), "@title apple")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))

	md, err = ft.Select(context.Background(), "@body apple")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rowIDs(md))
}

func TestSynonyms(t *testing.T) {
	cfg := Config{Synonyms: []Synonym{{
		Tokens: []string{"car"}, Alternatives: []string{"automobile"},
	}}}
	ft := newTestIndex(t, cfg)
	addDoc(t, ft, 0, "automobile repair")
	addDoc(t, ft, 1, "bicycle repair")

	md, err := ft.Select(context.Background(), "car")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))
}

func TestNumbersSearch(t *testing.T) {
	cfg := Config{EnableNumbersSearch: true}
	ft := newTestIndex(t, cfg)
	addDoc(t, ft, 0, "chapter 42")

	md, err := ft.Select(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, md.Items, 1)

	// the spoken form matches via the virtual words
	md, err = ft.Select(context.Background(), "=two")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rowIDs(md))
}

func TestMergeLimit(t *testing.T) {
	cfg := Config{MergeLimit: 3}
	ft := newTestIndex(t, cfg)
	for i := 0; i < 10; i++ {
		addDoc(t, ft, i, "common term")
	}
	md, err := ft.Select(context.Background(), "common")
	require.NoError(t, err)
	assert.Len(t, md.Items, 3)
}

func TestRanksScaledTo255(t *testing.T) {
	ft := newTestIndex(t, Config{})
	addDoc(t, ft, 0, "alpha beta")
	md, err := ft.Select(context.Background(), "+alpha +beta")
	require.NoError(t, err)
	require.NotEmpty(t, md.Items)
	assert.LessOrEqual(t, md.MaxRank, 255)
	for _, m := range md.Items {
		assert.LessOrEqual(t, m.Proc, 255)
	}
}
