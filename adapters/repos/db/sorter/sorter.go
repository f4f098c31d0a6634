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

// Package sorter orders row ids by payload field values, honoring
// collation, multi-key sorts and the forced-sort value prefix of the
// first key.
package sorter

import (
	"sort"

	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// FieldResolver yields the sortable values of one field of a row.
type FieldResolver func(rowID int, field string) payload.Variants

// Sorter sorts row ids by the given sort entries.
type Sorter struct {
	entries  []query.SortEntry
	resolver FieldResolver
	collate  *payload.CollateOpts
}

func New(entries []query.SortEntry, resolver FieldResolver, collate *payload.CollateOpts) *Sorter {
	return &Sorter{entries: entries, resolver: resolver, collate: collate}
}

// Sort orders ids in place. The forced prefix of the first sort entry
// pins rows with the listed values to the front, in list order; all other
// rows follow in plain field order.
func (s *Sorter) Sort(ids []int) {
	if len(s.entries) == 0 {
		return
	}
	forcedRank := s.forcedRanks()
	sort.SliceStable(ids, func(i, j int) bool {
		return s.less(ids[i], ids[j], forcedRank)
	})
}

// forcedRanks maps each forced value of the first entry to its position.
func (s *Sorter) forcedRanks() map[uint64]int {
	fv := s.entries[0].ForcedValues
	if len(fv) == 0 {
		return nil
	}
	ranks := make(map[uint64]int, len(fv))
	for i, v := range fv {
		ranks[v.Hash()] = i
	}
	return ranks
}

func (s *Sorter) less(a, b int, forcedRank map[uint64]int) bool {
	for ei, e := range s.entries {
		av := s.first(a, e.Field)
		bv := s.first(b, e.Field)
		if ei == 0 && forcedRank != nil {
			ra, aForced := forcedRank[av.Hash()]
			rb, bForced := forcedRank[bv.Hash()]
			switch {
			case aForced && bForced:
				if ra != rb {
					return ra < rb
				}
				continue
			case aForced:
				return true
			case bForced:
				return false
			}
		}
		r, err := av.Compare(bv, s.collate)
		if err != nil {
			continue
		}
		if r == 0 {
			continue
		}
		if e.Desc {
			return r > 0
		}
		return r < 0
	}
	return false
}

func (s *Sorter) first(rowID int, field string) payload.Variant {
	vals := s.resolver(rowID, field)
	if len(vals) == 0 {
		return payload.Null()
	}
	return vals[0]
}
