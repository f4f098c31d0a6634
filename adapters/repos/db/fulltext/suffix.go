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
	"sort"
	"strings"
)

// suffixArray stores every suffix of every indexed word sorted
// lexicographically, supporting lower-bound lookups that walk matches
// while the common prefix still covers the pattern.
type suffixArray struct {
	entries []suffixEntry
	words   func(id int) string
}

type suffixEntry struct {
	wordID int32
	offset int32
}

func newSuffixArray(words func(id int) string) *suffixArray {
	return &suffixArray{words: words}
}

func (sa *suffixArray) suffix(e suffixEntry) string {
	return sa.words(int(e.wordID))[e.offset:]
}

// addWord registers every suffix of the word; build() must run before the
// next lookup.
func (sa *suffixArray) addWord(wordID int) {
	text := sa.words(wordID)
	for off := 0; off < len(text); off++ {
		// suffixes start at rune boundaries only
		if off > 0 && text[off]&0xc0 == 0x80 {
			continue
		}
		sa.entries = append(sa.entries, suffixEntry{wordID: int32(wordID), offset: int32(off)})
	}
}

func (sa *suffixArray) build() {
	sort.Slice(sa.entries, func(i, j int) bool {
		return sa.suffix(sa.entries[i]) < sa.suffix(sa.entries[j])
	})
}

// match is one word found for a pattern: leadingLen counts the characters
// before the matched region, trailingLen after it.
type suffixMatch struct {
	wordID      int
	leadingLen  int
	trailingLen int
}

// lookup walks all suffixes starting with pattern.
func (sa *suffixArray) lookup(pattern string, fn func(m suffixMatch) bool) {
	lo := sort.Search(len(sa.entries), func(i int) bool {
		return sa.suffix(sa.entries[i]) >= pattern
	})
	for i := lo; i < len(sa.entries); i++ {
		suf := sa.suffix(sa.entries[i])
		if !strings.HasPrefix(suf, pattern) {
			return
		}
		e := sa.entries[i]
		if !fn(suffixMatch{
			wordID:      int(e.wordID),
			leadingLen:  int(e.offset),
			trailingLen: len(suf) - len(pattern),
		}) {
			return
		}
	}
}
