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

import "strings"

// Relevancy percentages of the variant ladder.
const (
	fullMatchProc   = 100
	prefixMinProc   = 50
	suffixMinProc   = 10
	typoProc        = 85
	typoStepProc    = 15
	stemProcDecrease = 15
	synonymProc     = 95
)

// variant is one lookup form of a query term with its base relevancy.
type variant struct {
	pattern string
	proc    int
}

// buildVariants produces the lookup forms of a term: the raw token,
// transliteration, keyboard-layout remap and stemmed forms. Synonym
// alternatives are produced separately because they carry their own
// merge semantics.
func buildVariants(term string, opts termOpts, cfg *Config) []variant {
	out := []variant{{pattern: term, proc: fullMatchProc}}
	if !opts.exact {
		if cfg.EnableTranslit {
			if tr := translit(term); tr != term {
				out = append(out, variant{pattern: tr, proc: fullMatchProc - 1})
			}
		}
		if cfg.EnableKbLayout {
			if kb := kbLayout(term); kb != term {
				out = append(out, variant{pattern: kb, proc: fullMatchProc - 2})
			}
		}
	}
	if len([]rune(term)) >= cfg.MinTermLenForStemming {
		seen := map[string]struct{}{}
		for _, v := range out {
			seen[v.pattern] = struct{}{}
		}
		for _, v := range out {
			for _, lang := range cfg.Stemmers {
				stem := stemWord(v.pattern, lang)
				if stem == v.pattern || stem == "" {
					continue
				}
				if _, dup := seen[stem]; dup {
					continue
				}
				seen[stem] = struct{}{}
				proc := v.proc - stemProcDecrease
				if proc < suffixMinProc {
					proc = suffixMinProc
				}
				out = append(out, variant{pattern: stem, proc: proc})
			}
		}
	}
	return out
}

// synonymVariants returns the alternatives the config maps term onto.
func synonymVariants(term string, cfg *Config) []variant {
	var out []variant
	for _, syn := range cfg.Synonyms {
		for _, tok := range syn.Tokens {
			if tok == term {
				for _, alt := range syn.Alternatives {
					out = append(out, variant{pattern: alt, proc: synonymProc})
				}
				break
			}
		}
	}
	return out
}

// ru <-> en transliteration table, longest sequences first.
var translitPairs = [][2]string{
	{"щ", "shch"}, {"ё", "yo"}, {"ж", "zh"}, {"ч", "ch"}, {"ш", "sh"},
	{"ю", "yu"}, {"я", "ya"}, {"а", "a"}, {"б", "b"}, {"в", "v"},
	{"г", "g"}, {"д", "d"}, {"е", "e"}, {"з", "z"}, {"и", "i"},
	{"й", "j"}, {"к", "k"}, {"л", "l"}, {"м", "m"}, {"н", "n"},
	{"о", "o"}, {"п", "p"}, {"р", "r"}, {"с", "s"}, {"т", "t"},
	{"у", "u"}, {"ф", "f"}, {"х", "h"}, {"ц", "c"}, {"ъ", ""},
	{"ы", "y"}, {"ь", ""}, {"э", "e"},
}

// translit maps cyrillic input to its latin spelling and vice versa.
func translit(s string) string {
	hasCyr := strings.IndexFunc(s, func(r rune) bool { return r >= 'а' && r <= 'я' || r == 'ё' }) >= 0
	if hasCyr {
		var b strings.Builder
		for _, r := range s {
			mapped := string(r)
			for _, p := range translitPairs {
				if p[0] == string(r) {
					mapped = p[1]
					break
				}
			}
			b.WriteString(mapped)
		}
		return b.String()
	}
	// latin -> cyrillic, longest match first
	var b strings.Builder
	for i := 0; i < len(s); {
		matched := false
		for _, p := range translitPairs {
			if p[1] != "" && strings.HasPrefix(s[i:], p[1]) {
				b.WriteString(p[0])
				i += len(p[1])
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// qwerty <-> jcuken keyboard layout remap.
var kbEn = "qwertyuiop[]asdfghjkl;'zxcvbnm,."
var kbRu = []rune("йцукенгшщзхъфывапролджэячсмитьбю")

func kbLayout(s string) string {
	var b strings.Builder
	for _, r := range s {
		if i := strings.IndexRune(kbEn, r); i >= 0 && i < len(kbRu) {
			b.WriteRune(kbRu[i])
			continue
		}
		if i := indexRune(kbRu, r); i >= 0 {
			b.WriteByte(kbEn[i])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}

// stemWord applies a light suffix-stripping stemmer. It intentionally
// trades linguistic fidelity for zero dependencies: the variant ladder
// already discounts stemmed matches.
func stemWord(w, lang string) string {
	switch lang {
	case "en":
		return stemEn(w)
	case "ru":
		return stemRu(w)
	default:
		return w
	}
}

var enSuffixes = []string{"ational", "iveness", "fulness", "ousness", "ization",
	"ations", "ingly", "ation", "ings", "edly", "ness", "ing", "ies", "ely",
	"ed", "es", "ly", "s"}

func stemEn(w string) string {
	if len(w) < 4 {
		return w
	}
	for _, suf := range enSuffixes {
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= 3 {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

var ruSuffixes = []string{"иями", "ями", "ами", "ией", "иям", "ием", "иях",
	"ов", "ие", "ье", "еи", "ии", "и", "ей", "ой", "ий", "й", "иям", "ям",
	"ием", "ем", "ам", "ом", "о", "у", "ах", "иях", "ях", "ы", "ь", "ию",
	"ью", "ю", "ия", "ья", "я", "а", "е"}

func stemRu(w string) string {
	if len([]rune(w)) < 4 {
		return w
	}
	for _, suf := range ruSuffixes {
		if strings.HasSuffix(w, suf) && len([]rune(w))-len([]rune(suf)) >= 3 {
			return strings.TrimSuffix(w, suf)
		}
	}
	return w
}
