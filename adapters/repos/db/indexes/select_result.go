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
	"github.com/weaviate/kestrel/entities/idset"
)

// SelectKeyResult is a tagged sum of the ways an index can answer a
// predicate: a materialized id set or a row-by-row comparator. The
// selector composes these into the iteration plan.
type SelectKeyResult struct {
	IDs        *idset.Set
	Comparator *Comparator
}

func (r SelectKeyResult) IsComparator() bool { return r.Comparator != nil }

// SizeHint estimates how many rows the result yields.
func (r SelectKeyResult) SizeHint(itemsCount int) int {
	if r.Comparator != nil {
		return itemsCount
	}
	return r.IDs.Size()
}

type SelectKeyResults []SelectKeyResult

// MergeIDs unions all materialized sets of the results into one ascending
// id list. Comparator entries contribute nothing here; the caller keeps
// them for the scan phase.
func (rs SelectKeyResults) MergeIDs() []int {
	switch len(rs) {
	case 0:
		return nil
	case 1:
		if rs[0].IDs == nil {
			return nil
		}
		return rs[0].IDs.Slice()
	}
	merged := idset.New()
	for _, r := range rs {
		if r.IDs == nil {
			continue
		}
		r.IDs.ForEach(func(id int) bool {
			merged.Add(id, idset.AddUnordered)
			return true
		})
	}
	return merged.Slice()
}

// Comparators returns the comparator entries of the results.
func (rs SelectKeyResults) Comparators() []*Comparator {
	var out []*Comparator
	for _, r := range rs {
		if r.Comparator != nil {
			out = append(out, r.Comparator)
		}
	}
	return out
}
