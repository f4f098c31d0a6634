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
	"context"
	"strings"

	"github.com/google/btree"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/idset"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// compositeIndex keys on a tuple of other fields, read from the payload
// value itself. It bypasses the idset cache: its keys embed whole rows, so
// a cache would only duplicate them.
type compositeIndex struct {
	def       Def
	fieldIdxs []int
	collates  []*payload.CollateOpts
	hash      map[string]*compositeEntry
	tree      *btree.BTreeG[*compositeEntry]
	getter    func(rowID int) payload.Value

	sortID     int
	sortOrders []int
}

type compositeEntry struct {
	key    payload.Variants
	folded string
	ids    *idset.Set
}

// NewCompositeIndex builds a composite index over the given payload field
// positions. The getter resolves rows for re-keying and comparator scans.
func NewCompositeIndex(def Def, fieldIdxs []int, collates []*payload.CollateOpts,
	getter func(rowID int) payload.Value,
) Index {
	c := &compositeIndex{
		def:       def,
		fieldIdxs: fieldIdxs,
		collates:  collates,
		hash:      map[string]*compositeEntry{},
		getter:    getter,
		sortID:    -1,
	}
	if def.Type.Ordered() {
		c.tree = btree.NewG[*compositeEntry](16, func(a, b *compositeEntry) bool {
			return c.tupleLess(a.key, b.key)
		})
	}
	return c
}

func (c *compositeIndex) tupleLess(a, b payload.Variants) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		var col *payload.CollateOpts
		if i < len(c.collates) {
			col = c.collates[i]
		}
		r, err := a[i].Compare(b[i], col)
		if err != nil {
			if a[i].String() != b[i].String() {
				return a[i].String() < b[i].String()
			}
			continue
		}
		if r != 0 {
			return r < 0
		}
	}
	return len(a) < len(b)
}

func (c *compositeIndex) Name() string { return c.def.Name }
func (c *compositeIndex) Def() Def     { return c.def }
func (c *compositeIndex) Opts() Opts   { return c.def.Opts }

// keyOf extracts the tuple key from a row: the first value of every
// constituent field.
func (c *compositeIndex) keyOf(pl payload.Value) payload.Variants {
	key := make(payload.Variants, len(c.fieldIdxs))
	for i, fi := range c.fieldIdxs {
		vals := pl.Get(fi)
		if len(vals) == 0 {
			key[i] = payload.Null()
			continue
		}
		key[i] = vals[0]
	}
	return key
}

func (c *compositeIndex) foldTuple(key payload.Variants) string {
	var b strings.Builder
	for i, v := range key {
		var col *payload.CollateOpts
		if i < len(c.collates) {
			col = c.collates[i]
		}
		b.WriteString(foldKey(v, col))
		b.WriteByte(0xfe)
	}
	return b.String()
}

func (c *compositeIndex) Upsert(_ payload.Variants, pl payload.Value, rowID int) error {
	key := c.keyOf(pl)
	fk := c.foldTuple(key)
	e, ok := c.hash[fk]
	if !ok {
		e = &compositeEntry{key: key, folded: fk, ids: idset.New()}
		c.hash[fk] = e
		if c.tree != nil {
			c.tree.ReplaceOrInsert(e)
		}
	}
	e.ids.Add(rowID, idset.AddUnordered)
	return nil
}

func (c *compositeIndex) Delete(_ payload.Variants, pl payload.Value, rowID int) error {
	fk := c.foldTuple(c.keyOf(pl))
	e, ok := c.hash[fk]
	if !ok {
		return nil
	}
	e.ids.Erase(rowID)
	if e.ids.Size() == 0 {
		delete(c.hash, fk)
		if c.tree != nil {
			c.tree.Delete(e)
		}
	}
	return nil
}

func (c *compositeIndex) SelectKey(ctx context.Context, keys payload.Variants, cond query.CondType,
	sortID int, opts SelectOpts,
) (SelectKeyResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, dberrors.FromContext(ctx)
	}
	width := len(c.fieldIdxs)
	switch cond {
	case query.CondEq:
		if len(keys) != width {
			return nil, dberrors.Params("composite index %q needs %d key values, got %d",
				c.def.Name, width, len(keys))
		}
		return c.lookupTuples([]payload.Variants{keys}), nil
	case query.CondSet:
		if len(keys)%width != 0 {
			return nil, dberrors.Params("composite index %q: SET values not a multiple of %d",
				c.def.Name, width)
		}
		var tuples []payload.Variants
		for i := 0; i < len(keys); i += width {
			tuples = append(tuples, keys[i:i+width])
		}
		return c.lookupTuples(tuples), nil
	case query.CondLt, query.CondLe, query.CondGt, query.CondGe, query.CondRange:
		if c.tree == nil {
			return nil, dberrors.Params("composite index %q is unordered, %s not supported", c.def.Name, cond)
		}
		return c.selectTupleRange(keys, cond)
	default:
		return nil, dberrors.Params("composite index %q can't serve condition %s", c.def.Name, cond)
	}
}

func (c *compositeIndex) lookupTuples(tuples []payload.Variants) SelectKeyResults {
	out := idset.New()
	for _, t := range tuples {
		if e, ok := c.hash[c.foldTuple(t)]; ok {
			e.ids.ForEach(func(id int) bool {
				out.Add(id, idset.AddUnordered)
				return true
			})
		}
	}
	out.Commit()
	return SelectKeyResults{{IDs: out}}
}

func (c *compositeIndex) selectTupleRange(keys payload.Variants, cond query.CondType) (SelectKeyResults, error) {
	width := len(c.fieldIdxs)
	var lo, hi payload.Variants
	loIncl, hiIncl := true, true
	switch cond {
	case query.CondLt:
		hi, hiIncl = keys, false
	case query.CondLe:
		hi = keys
	case query.CondGt:
		lo, loIncl = keys, false
	case query.CondGe:
		lo = keys
	case query.CondRange:
		if len(keys) != 2*width {
			return nil, dberrors.Params("composite RANGE on %q needs 2 tuples", c.def.Name)
		}
		lo, hi = keys[:width], keys[width:]
	}
	out := idset.New()
	c.tree.Ascend(func(e *compositeEntry) bool {
		if lo != nil {
			if c.tupleLess(e.key, lo) || (!loIncl && !c.tupleLess(lo, e.key) && !c.tupleLess(e.key, lo)) {
				return true
			}
		}
		if hi != nil {
			if c.tupleLess(hi, e.key) || (!hiIncl && !c.tupleLess(e.key, hi) && !c.tupleLess(hi, e.key)) {
				return false
			}
		}
		e.ids.ForEach(func(id int) bool {
			out.Add(id, idset.AddUnordered)
			return true
		})
		return true
	})
	out.Commit()
	return SelectKeyResults{{IDs: out}}, nil
}

func (c *compositeIndex) Commit() {
	for _, e := range c.hash {
		e.ids.Commit()
	}
}

func (c *compositeIndex) SortID() int      { return c.sortID }
func (c *compositeIndex) SetSortID(id int) { c.sortID = id }

func (c *compositeIndex) MakeSortOrders(ctx context.Context) []int {
	if c.tree == nil {
		return nil
	}
	orders := make([]int, 0, 1024)
	c.tree.Ascend(func(e *compositeEntry) bool {
		if ctx.Err() != nil {
			return false
		}
		e.ids.ForEach(func(id int) bool {
			orders = append(orders, id)
			return true
		})
		return true
	})
	if ctx.Err() != nil {
		return nil
	}
	c.sortOrders = orders
	return orders
}

func (c *compositeIndex) UpdateSortedIDs(ctx context.Context) {
	if c.sortID < 0 || len(c.sortOrders) == 0 {
		return
	}
	rank := make(map[int]int, len(c.sortOrders))
	for pos, id := range c.sortOrders {
		rank[id] = pos
	}
	for _, e := range c.hash {
		if ctx.Err() != nil {
			return
		}
		ids := append([]int(nil), e.ids.Slice()...)
		sortByRank(ids, rank)
		e.ids.SetSorted(c.sortID, ids)
	}
}

func (c *compositeIndex) MemStat() MemStat {
	return MemStat{Name: c.def.Name, UniqKeysCount: len(c.hash), SortOrderSize: len(c.sortOrders)}
}
