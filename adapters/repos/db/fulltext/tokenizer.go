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
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var tokenFolder = cases.Fold()

// token is one word of a document field with its position.
type token struct {
	text string
	pos  int
}

// tokenizer splits field text into lowercase tokens. Letters and digits
// always belong to a word; runes from extraWordSymbols join words instead
// of splitting them.
type tokenizer struct {
	extra     map[rune]struct{}
	stopwords map[string]struct{}
	numbers   bool
}

func newTokenizer(cfg *Config) *tokenizer {
	t := &tokenizer{
		extra:     map[rune]struct{}{},
		stopwords: map[string]struct{}{},
		numbers:   cfg.EnableNumbersSearch,
	}
	for _, r := range cfg.ExtraWordSymbols {
		t.extra[r] = struct{}{}
	}
	for _, w := range cfg.StopWords {
		t.stopwords[tokenFolder.String(w)] = struct{}{}
	}
	return t
}

func (t *tokenizer) isWordRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	_, ok := t.extra[r]
	return ok
}

// tokenize yields the stopword-filtered tokens of text. Positions count
// all words including filtered ones, so phrase distance survives
// stopword removal.
func (t *tokenizer) tokenize(text string) []token {
	var out []token
	var b strings.Builder
	pos := 0
	flush := func() {
		if b.Len() == 0 {
			return
		}
		w := tokenFolder.String(b.String())
		b.Reset()
		if _, stop := t.stopwords[w]; !stop {
			out = append(out, token{text: w, pos: pos})
		}
		pos++
	}
	for _, r := range text {
		if t.isWordRune(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// expandNumber renders an integer token as its spoken-word form; the
// virtual words join the index but are excluded from prefix matching.
func expandNumber(word string) []string {
	n, err := strconv.ParseInt(word, 10, 64)
	if err != nil || n < 0 || n > 999999 {
		return nil
	}
	words := numberToWords(n)
	if len(words) == 0 {
		return nil
	}
	return words
}

var onesWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}

var tensWords = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}

func numberToWords(n int64) []string {
	switch {
	case n < 20:
		return []string{onesWords[n]}
	case n < 100:
		out := []string{tensWords[n/10]}
		if n%10 != 0 {
			out = append(out, onesWords[n%10])
		}
		return out
	case n < 1000:
		out := []string{onesWords[n/100], "hundred"}
		if n%100 != 0 {
			out = append(out, numberToWords(n%100)...)
		}
		return out
	default:
		out := append(numberToWords(n/1000), "thousand")
		if n%1000 != 0 {
			out = append(out, numberToWords(n%1000)...)
		}
		return out
	}
}
