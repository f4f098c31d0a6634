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

package indexes

import (
	"regexp"
	"strings"

	"github.com/weaviate/kestrel/entities/dberrors"
)

// likeMatcher compiles a SQL LIKE pattern into an anchored regexp:
// '_' matches one rune, '%' any run.
type likeMatcher struct {
	re *regexp.Regexp
}

func newLikeMatcher(pattern string) (*likeMatcher, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '_':
			b.WriteString(".")
		case '%':
			b.WriteString(".*")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindParams, err, "compile LIKE pattern")
	}
	return &likeMatcher{re: re}, nil
}

func (m *likeMatcher) match(s string) bool {
	return m.re.MatchString(s)
}
