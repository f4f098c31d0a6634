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

// Package sqlparser parses the SQL surface of the engine into canonical
// queries.
package sqlparser

import (
	"strings"
	"unicode"

	"github.com/weaviate/kestrel/entities/dberrors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// upper reports the keyword form of an identifier token.
func (t token) upper() string { return strings.ToUpper(t.text) }

type lexer struct {
	in  string
	pos int
}

func newLexer(in string) *lexer { return &lexer{in: in} }

func (l *lexer) errorf(format string, args ...interface{}) error {
	return dberrors.ParseSQL("%s (at %d)", dberrors.ParseSQL(format, args...).Error(), l.pos)
}

func isIdentRune(r rune, first bool) bool {
	if unicode.IsLetter(r) || r == '_' || r == '*' && !first {
		return true
	}
	if !first && (unicode.IsDigit(r) || r == '.' || r == '+') {
		return true
	}
	return false
}

// next scans one token. Quoted identifiers ("a+b") come back as tokIdent,
// quoted strings ('...') as tokString.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.in) && unicode.IsSpace(rune(l.in[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.in) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	ch := rune(l.in[l.pos])
	switch {
	case ch == '\'':
		l.pos++
		var b strings.Builder
		for l.pos < len(l.in) && l.in[l.pos] != '\'' {
			if l.in[l.pos] == '\\' && l.pos+1 < len(l.in) {
				l.pos++
			}
			b.WriteByte(l.in[l.pos])
			l.pos++
		}
		if l.pos >= len(l.in) {
			return token{}, l.errorf("unterminated string literal")
		}
		l.pos++
		return token{kind: tokString, text: b.String(), pos: start}, nil
	case ch == '"' || ch == '`':
		quote := l.in[l.pos]
		l.pos++
		end := strings.IndexByte(l.in[l.pos:], quote)
		if end < 0 {
			return token{}, l.errorf("unterminated quoted identifier")
		}
		text := l.in[l.pos : l.pos+end]
		l.pos += end + 1
		return token{kind: tokIdent, text: text, pos: start}, nil
	case unicode.IsDigit(ch) || ch == '-' && l.pos+1 < len(l.in) && unicode.IsDigit(rune(l.in[l.pos+1])):
		l.pos++
		for l.pos < len(l.in) && (unicode.IsDigit(rune(l.in[l.pos])) || l.in[l.pos] == '.' || l.in[l.pos] == 'e' ||
			l.in[l.pos] == 'E' || l.in[l.pos] == '+' || l.in[l.pos] == '-') {
			// exponent signs only directly after e/E
			if (l.in[l.pos] == '+' || l.in[l.pos] == '-') && l.in[l.pos-1] != 'e' && l.in[l.pos-1] != 'E' {
				break
			}
			l.pos++
		}
		return token{kind: tokNumber, text: l.in[start:l.pos], pos: start}, nil
	case unicode.IsLetter(ch) || ch == '_' || ch == '*':
		l.pos++
		for l.pos < len(l.in) && isIdentRune(rune(l.in[l.pos]), false) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.in[start:l.pos], pos: start}, nil
	default:
		// multi-char operators
		for _, op := range []string{"<=", ">=", "!=", "<>", "=="} {
			if strings.HasPrefix(l.in[l.pos:], op) {
				l.pos += 2
				return token{kind: tokPunct, text: op, pos: start}, nil
			}
		}
		l.pos++
		return token{kind: tokPunct, text: string(ch), pos: start}, nil
	}
}
