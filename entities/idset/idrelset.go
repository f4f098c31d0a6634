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

package idset

import (
	"math"
	"sort"
)

// PackedPos packs a word position with the field it occurred in:
// pos<<8 | field. Positions are per-field, starting at 0.
type PackedPos uint32

func PackPos(pos, field int) PackedPos {
	return PackedPos(uint32(pos)<<8 | uint32(field)&0xff)
}

func (p PackedPos) Pos() int   { return int(p >> 8) }
func (p PackedPos) Field() int { return int(p & 0xff) }

// IdRel is one posting: the row, a bitmask of fields the token appears in
// and the packed positions.
type IdRel struct {
	ID         int
	FieldsMask uint64
	Positions  []PackedPos
}

func (r *IdRel) add(pos, field int) {
	r.FieldsMask |= 1 << uint(field)
	r.Positions = append(r.Positions, PackPos(pos, field))
}

// UsedFieldsMask reports the fields this posting covers.
func (r *IdRel) UsedFieldsMask() uint64 { return r.FieldsMask }

// WordsInField counts occurrences of the token in one field.
func (r *IdRel) WordsInField(field int) int {
	n := 0
	for _, p := range r.Positions {
		if p.Field() == field {
			n++
		}
	}
	return n
}

// MinPositionInField returns the smallest position of the token in the
// field, or -1 when the field has none.
func (r *IdRel) MinPositionInField(field int) int {
	min := -1
	for _, p := range r.Positions {
		if p.Field() != field {
			continue
		}
		if min < 0 || p.Pos() < min {
			min = p.Pos()
		}
	}
	return min
}

// Distance returns the smallest absolute positional gap between this
// posting and other within the same field, capped at max. Returns max when
// the postings never share a field.
func (r *IdRel) Distance(other *IdRel, max int) int {
	best := max
	for _, a := range r.Positions {
		for _, b := range other.Positions {
			if a.Field() != b.Field() {
				continue
			}
			d := a.Pos() - b.Pos()
			if d < 0 {
				d = -d
			}
			if d < best {
				best = d
			}
		}
	}
	return best
}

// RelSet is the posting list of one token: IdRels ordered by row id after
// Commit.
type RelSet struct {
	rels     []IdRel
	unsorted bool
}

func NewRelSet() *RelSet { return &RelSet{} }

func (s *RelSet) Len() int { return len(s.rels) }

// Add records an occurrence and returns the number of distinct rows in the
// set afterwards.
func (s *RelSet) Add(id, pos, field int) int {
	if n := len(s.rels); n > 0 && s.rels[n-1].ID == id {
		s.rels[n-1].add(pos, field)
		return len(s.rels)
	}
	if len(s.rels) > 0 && s.rels[len(s.rels)-1].ID > id {
		s.unsorted = true
	}
	rel := IdRel{ID: id}
	rel.add(pos, field)
	s.rels = append(s.rels, rel)
	return len(s.rels)
}

// Commit merges duplicate rows and restores id order; called once per
// full-text commit after the per-worker shards were folded together.
func (s *RelSet) Commit() {
	if !s.unsorted {
		return
	}
	sort.SliceStable(s.rels, func(i, j int) bool { return s.rels[i].ID < s.rels[j].ID })
	out := s.rels[:0]
	for _, rel := range s.rels {
		if n := len(out); n > 0 && out[n-1].ID == rel.ID {
			out[n-1].FieldsMask |= rel.FieldsMask
			out[n-1].Positions = append(out[n-1].Positions, rel.Positions...)
			continue
		}
		out = append(out, rel)
	}
	s.rels = out
	s.unsorted = false
}

// Erase drops the posting of one row.
func (s *RelSet) Erase(id int) {
	s.Commit()
	pos := sort.Search(len(s.rels), func(i int) bool { return s.rels[i].ID >= id })
	if pos < len(s.rels) && s.rels[pos].ID == id {
		s.rels = append(s.rels[:pos], s.rels[pos+1:]...)
	}
}

// Find returns the posting of row id, or nil.
func (s *RelSet) Find(id int) *IdRel {
	s.Commit()
	pos := sort.Search(len(s.rels), func(i int) bool { return s.rels[i].ID >= id })
	if pos < len(s.rels) && s.rels[pos].ID == id {
		return &s.rels[pos]
	}
	return nil
}

func (s *RelSet) ForEach(fn func(rel *IdRel) bool) {
	s.Commit()
	for i := range s.rels {
		if !fn(&s.rels[i]) {
			return
		}
	}
}

// MaxID returns the largest row id in the set, or math.MinInt when empty.
func (s *RelSet) MaxID() int {
	s.Commit()
	if len(s.rels) == 0 {
		return math.MinInt
	}
	return s.rels[len(s.rels)-1].ID
}
