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
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// CollateMode selects how string keys compare and fold. Collate mode is
// data, not a type: the same index code paths serve all modes.
type CollateMode int

const (
	CollateNone CollateMode = iota
	CollateASCII
	CollateUTF8
	CollateNumeric
	CollateCustom
)

func CollateModeFromString(s string) CollateMode {
	switch s {
	case "ascii":
		return CollateASCII
	case "utf8":
		return CollateUTF8
	case "numeric":
		return CollateNumeric
	case "custom":
		return CollateCustom
	default:
		return CollateNone
	}
}

type CollateOpts struct {
	Mode CollateMode
	// SortOrderTable holds the custom alphabet for CollateCustom; runes not
	// present order after all present ones, by code point.
	SortOrderTable string
}

var utf8Folder = cases.Fold()

// Fold normalizes s for use as a lookup key under the collate options.
func (c *CollateOpts) Fold(s string) string {
	if c == nil {
		return s
	}
	switch c.Mode {
	case CollateASCII:
		return asciiLower(s)
	case CollateUTF8:
		return utf8Folder.String(s)
	default:
		return s
	}
}

func asciiLower(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + 'a' - 'A'
		}
	}
	return string(b)
}

func collateCompare(a, b string, c *CollateOpts) int {
	if c == nil {
		return strings.Compare(a, b)
	}
	switch c.Mode {
	case CollateASCII:
		return strings.Compare(asciiLower(a), asciiLower(b))
	case CollateUTF8:
		return strings.Compare(utf8Folder.String(a), utf8Folder.String(b))
	case CollateNumeric:
		return numericCompare(a, b)
	case CollateCustom:
		return customCompare(a, b, c.SortOrderTable)
	default:
		return strings.Compare(a, b)
	}
}

// numericCompare orders by the leading numeric prefix, with a lexicographic
// tie-break on the remainder.
func numericCompare(a, b string) int {
	fa, ra := leadingNumber(a)
	fb, rb := leadingNumber(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return strings.Compare(ra, rb)
	}
}

func leadingNumber(s string) (float64, string) {
	t := strings.TrimLeft(s, " \t")
	i := 0
	for i < len(t) && (t[i] == '-' || t[i] == '+' || t[i] == '.' || (t[i] >= '0' && t[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, t
	}
	f, err := strconv.ParseFloat(t[:i], 64)
	if err != nil {
		return 0, t
	}
	return f, t[i:]
}

func customCompare(a, b, table string) int {
	rank := make(map[rune]int, len(table))
	for i, r := range table {
		rank[r] = i
	}
	ra, rb := []rune(a), []rune(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		ka, oka := rank[ra[i]]
		kb, okb := rank[rb[i]]
		switch {
		case oka && okb:
			if ka != kb {
				return sign(ka - kb)
			}
		case oka != okb:
			if oka {
				return -1
			}
			return 1
		default:
			if ra[i] != rb[i] {
				return sign(int(ra[i]) - int(rb[i]))
			}
		}
	}
	return sign(len(ra) - len(rb))
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
