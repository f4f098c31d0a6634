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

// Package idset provides the sorted row-id set used by every secondary
// index, and the position-carrying posting list used by the full-text
// index. Small and medium sets live in a plain sorted slice; sets past
// bitmapThreshold switch to a roaring bitmap.
package idset

import (
	"sort"

	"github.com/weaviate/sroar"
)

// AddMode controls how Add maintains ordering. Unordered appends and
// defers sorting to Commit, which is what bulk index builds want; Ordered
// keeps the set sorted on every insert.
type AddMode int

const (
	AddAuto AddMode = iota
	AddOrdered
	AddUnordered
)

const bitmapThreshold = 50000

// Set is a set of row ids. The zero value is an empty usable set.
type Set struct {
	ids      []int
	bitmap   *sroar.Bitmap
	unsorted bool
	sorted   map[int][]int // sortId -> permuted ids, filled by the owning index
}

func New() *Set { return &Set{} }

func NewFrom(ids ...int) *Set {
	s := &Set{ids: append([]int(nil), ids...)}
	sort.Ints(s.ids)
	return s
}

func (s *Set) Size() int {
	if s.bitmap != nil {
		return s.bitmap.GetCardinality()
	}
	return len(s.ids)
}

func (s *Set) Add(id int, mode AddMode) {
	if s.bitmap != nil {
		s.bitmap.Set(uint64(id))
		return
	}
	switch mode {
	case AddOrdered:
		pos := sort.SearchInts(s.ids, id)
		if pos < len(s.ids) && s.ids[pos] == id {
			return
		}
		s.ids = append(s.ids, 0)
		copy(s.ids[pos+1:], s.ids[pos:])
		s.ids[pos] = id
	default:
		s.ids = append(s.ids, id)
		s.unsorted = true
	}
	if len(s.ids) > bitmapThreshold {
		s.promote()
	}
	s.sorted = nil
}

func (s *Set) promote() {
	bm := sroar.NewBitmap()
	for _, id := range s.ids {
		bm.Set(uint64(id))
	}
	s.bitmap = bm
	s.ids = nil
	s.unsorted = false
}

// Commit sorts and dedupes after a run of unordered Adds.
func (s *Set) Commit() {
	if !s.unsorted {
		return
	}
	sort.Ints(s.ids)
	out := s.ids[:0]
	for i, id := range s.ids {
		if i == 0 || id != s.ids[i-1] {
			out = append(out, id)
		}
	}
	s.ids = out
	s.unsorted = false
}

func (s *Set) Erase(id int) bool {
	if s.bitmap != nil {
		if !s.bitmap.Contains(uint64(id)) {
			return false
		}
		s.bitmap.Remove(uint64(id))
		s.sorted = nil
		return true
	}
	s.Commit()
	pos := sort.SearchInts(s.ids, id)
	if pos >= len(s.ids) || s.ids[pos] != id {
		return false
	}
	s.ids = append(s.ids[:pos], s.ids[pos+1:]...)
	s.sorted = nil
	return true
}

func (s *Set) Contains(id int) bool {
	if s.bitmap != nil {
		return s.bitmap.Contains(uint64(id))
	}
	if s.unsorted {
		for _, v := range s.ids {
			if v == id {
				return true
			}
		}
		return false
	}
	pos := sort.SearchInts(s.ids, id)
	return pos < len(s.ids) && s.ids[pos] == id
}

// Slice returns the ids in ascending order. The returned slice must not be
// mutated when the set is in plain form.
func (s *Set) Slice() []int {
	if s.bitmap != nil {
		raw := s.bitmap.ToArray()
		out := make([]int, len(raw))
		for i, v := range raw {
			out[i] = int(v)
		}
		return out
	}
	s.Commit()
	return s.ids
}

func (s *Set) ForEach(fn func(id int) bool) {
	if s.bitmap != nil {
		for _, id := range s.bitmap.ToArray() {
			if !fn(int(id)) {
				return
			}
		}
		return
	}
	s.Commit()
	for _, id := range s.ids {
		if !fn(id) {
			return
		}
	}
}

// SetSorted stores the permutation of this set for a materialized sort
// order; Sorted returns it, falling back to ascending-id order.
func (s *Set) SetSorted(sortID int, ids []int) {
	if s.sorted == nil {
		s.sorted = map[int][]int{}
	}
	s.sorted[sortID] = ids
}

func (s *Set) Sorted(sortID int) []int {
	if s.sorted != nil {
		if ids, ok := s.sorted[sortID]; ok {
			return ids
		}
	}
	return s.Slice()
}

func (s *Set) Clone() *Set {
	ns := &Set{unsorted: s.unsorted}
	if s.bitmap != nil {
		ns.bitmap = s.bitmap.Clone()
		return ns
	}
	ns.ids = append([]int(nil), s.ids...)
	return ns
}

// Intersect returns the ids common to both sets, ascending.
func Intersect(a, b *Set) []int {
	as, bs := a.Slice(), b.Slice()
	if len(as) > len(bs) {
		as, bs = bs, as
	}
	out := make([]int, 0, len(as))
	j := 0
	for _, id := range as {
		for j < len(bs) && bs[j] < id {
			j++
		}
		if j < len(bs) && bs[j] == id {
			out = append(out, id)
		}
	}
	return out
}
