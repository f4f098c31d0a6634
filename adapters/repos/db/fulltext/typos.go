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

// mktypos generates the deletion-form typos of a word: every string
// obtainable by removing up to maxTypos runes, bounded by maxTypoLen.
// level reports how many removals are left at emission time, so
// maxTypos-level is the number applied.
func mktypos(word string, maxTypos, maxTypoLen int, emit func(typo string, level int)) {
	runes := []rune(word)
	if len(runes) > maxTypoLen || maxTypos <= 0 {
		return
	}
	seen := map[string]struct{}{}
	var gen func(cur []rune, level int)
	gen = func(cur []rune, level int) {
		if level == 0 || len(cur) <= 2 {
			return
		}
		for i := 0; i < len(cur); i++ {
			next := make([]rune, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			s := string(next)
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			emit(s, level-1)
			gen(next, level-1)
		}
	}
	emit(word, maxTypos)
	gen(runes, maxTypos)
}

// typoEntry links a generated misspelling back to its word: level is the
// remaining budget at generation time, i.e. maxTyposInWord-level removals
// were applied.
type typoEntry struct {
	wordID int32
	level  int8
}

// typosMap is the multimap from typo string to candidate words. Entries
// split between the half and max maps per the configured typo budget;
// lookups consult both.
type typosMap struct {
	half map[string][]typoEntry
	max  map[string][]typoEntry
}

func newTyposMap() *typosMap {
	return &typosMap{half: map[string][]typoEntry{}, max: map[string][]typoEntry{}}
}

// addWord generates and registers the typos of one word.
func (t *typosMap) addWord(wordID int, word string, cfg *Config) {
	maxTyposInWord := cfg.MaxTyposInWord()
	if maxTyposInWord == 0 {
		return
	}
	halfBudget := cfg.MaxTypos / 2
	mktypos(word, maxTyposInWord, cfg.MaxTypoLen, func(typo string, level int) {
		e := typoEntry{wordID: int32(wordID), level: int8(level)}
		if maxTyposInWord != halfBudget && level == 0 {
			// the deepest level only matches when the query spends no
			// budget of its own
			t.max[typo] = append(t.max[typo], e)
			return
		}
		t.half[typo] = append(t.half[typo], e)
	})
}

// lookup finds candidate words for a query-side typo at the given
// remaining level.
func (t *typosMap) lookup(typo string, queryLevel int, maxTyposInWord int, fn func(e typoEntry, tcount int)) {
	for _, e := range t.half[typo] {
		tcount := (maxTyposInWord - int(e.level)) + (maxTyposInWord - queryLevel)
		fn(e, tcount)
	}
	if queryLevel == maxTyposInWord {
		// full budget left on the query side: deepest word typos allowed
		for _, e := range t.max[typo] {
			tcount := (maxTyposInWord - int(e.level)) + (maxTyposInWord - queryLevel)
			fn(e, tcount)
		}
	}
}
