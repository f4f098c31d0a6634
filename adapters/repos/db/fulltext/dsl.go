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

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/query"
)

// termOpts carries the per-term modifiers of the search DSL.
type termOpts struct {
	op          query.OpType
	suff, pref  bool
	exact       bool
	number      bool
	boost       float64
	termLenBoost float64
	distance    int
	qpos        int
	// fieldBoosts is indexed by field position; 0 disables the field for
	// this term.
	fieldBoosts []float64
}

type ftTerm struct {
	pattern string
	opts    termOpts
}

// maxTermDistance is the default word-distance tolerance between AND
// terms.
const maxTermDistance = 100

// parseDSL parses the search string of one full-text condition:
//
//	@name^1.5,description  +word1 -word2 *substr* =exact term^2
//
// '+' ties the term with AND, '-' excludes it, a bare term is OR. '*' at
// either end enables suffix/prefix matching, '=' exact matching, '^'
// boosts the term.
func parseDSL(in string, fields []string, cfg *Config) ([]ftTerm, error) {
	fieldBoosts := make([]float64, len(fields))
	for i := range fieldBoosts {
		fieldBoosts[i] = 1.0
	}
	var terms []ftTerm
	qpos := 0
	for _, raw := range strings.Fields(in) {
		if strings.HasPrefix(raw, "@") {
			if err := parseFieldList(raw[1:], fields, fieldBoosts); err != nil {
				return nil, err
			}
			continue
		}
		opts := termOpts{
			op:          query.OpOr,
			boost:       1.0,
			termLenBoost: 1.0,
			distance:    maxTermDistance,
			qpos:        qpos,
		}
		tok := raw
		switch {
		case strings.HasPrefix(tok, "+"):
			opts.op = query.OpAnd
			tok = tok[1:]
		case strings.HasPrefix(tok, "-"):
			opts.op = query.OpNot
			tok = tok[1:]
		}
		if strings.HasPrefix(tok, "=") {
			opts.exact = true
			tok = tok[1:]
		}
		if i := strings.LastIndex(tok, "^"); i > 0 {
			b, err := strconv.ParseFloat(tok[i+1:], 64)
			if err != nil {
				return nil, dberrors.Parse("bad term boost %q", tok[i+1:])
			}
			opts.boost = b
			tok = tok[:i]
		}
		if strings.HasPrefix(tok, "*") {
			opts.suff = true
			tok = tok[1:]
		}
		if strings.HasSuffix(tok, "*") {
			opts.pref = true
			tok = tok[:len(tok)-1]
		}
		if tok == "" {
			continue
		}
		tok = tokenFolder.String(tok)
		opts.number = isNumeric(tok)
		opts.fieldBoosts = append([]float64(nil), fieldBoosts...)
		terms = append(terms, ftTerm{pattern: tok, opts: opts})
		qpos++
	}
	if len(terms) == 0 {
		return nil, dberrors.Parse("fulltext query has no terms")
	}
	return terms, nil
}

// parseFieldList handles "@name^boost,other" restrictions: fields not
// listed get boost 0 and stop matching.
func parseFieldList(list string, fields []string, boosts []float64) error {
	for i := range boosts {
		boosts[i] = 0
	}
	for _, part := range strings.Split(list, ",") {
		name := part
		boost := 1.0
		if i := strings.Index(part, "^"); i >= 0 {
			b, err := strconv.ParseFloat(part[i+1:], 64)
			if err != nil {
				return dberrors.Parse("bad field boost in %q", part)
			}
			boost = b
			name = part[:i]
		}
		if name == "*" {
			for i := range boosts {
				boosts[i] = boost
			}
			continue
		}
		found := false
		for i, f := range fields {
			if f == name {
				boosts[i] = boost
				found = true
				break
			}
		}
		if !found {
			return dberrors.Params("unknown fulltext field %q", name)
		}
	}
	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
