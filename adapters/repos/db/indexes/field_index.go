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
	"sort"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/idset"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// fieldIndex serves the plain hash/tree/ttl variants, dense and sparse.
// Sparse rows with no value land in emptyIDs, queryable with CondEmpty.
type fieldIndex struct {
	def      Def
	store    *keyedStore
	emptyIDs *idset.Set
	cache    *idsetCache
	getter   ValuesGetter

	sortID     int
	sortOrders []int
}

// NewFieldIndex builds a hash, tree or ttl index. The getter feeds the
// comparator fallback.
func NewFieldIndex(def Def, getter ValuesGetter) Index {
	return &fieldIndex{
		def:      def,
		store:    newKeyedStore(def.Type.Ordered(), &def.Opts.Collate),
		emptyIDs: idset.New(),
		cache:    newIdsetCache(0),
		getter:   getter,
		sortID:   -1,
	}
}

func (f *fieldIndex) Name() string { return f.def.Name }
func (f *fieldIndex) Def() Def     { return f.def }
func (f *fieldIndex) Opts() Opts   { return f.def.Opts }

func (f *fieldIndex) Upsert(vals payload.Variants, _ payload.Value, rowID int) error {
	f.cache.clear()
	if len(vals) == 0 || (len(vals) == 1 && vals[0].IsNull()) {
		if f.def.Opts.PK {
			return dberrors.Params("PK index %q got no value for row %d", f.def.Name, rowID)
		}
		f.emptyIDs.Add(rowID, idset.AddOrdered)
		return nil
	}
	if !f.def.Opts.Array && len(vals) > 1 {
		return dberrors.Params("non-array index %q got %d values", f.def.Name, len(vals))
	}
	for _, v := range vals {
		f.store.upsert(v, rowID, idset.AddUnordered)
	}
	return nil
}

func (f *fieldIndex) Delete(vals payload.Variants, _ payload.Value, rowID int) error {
	f.cache.clear()
	if len(vals) == 0 || (len(vals) == 1 && vals[0].IsNull()) {
		f.emptyIDs.Erase(rowID)
		return nil
	}
	for _, v := range vals {
		f.store.delete(v, rowID)
	}
	return nil
}

func (f *fieldIndex) SelectKey(ctx context.Context, keys payload.Variants, cond query.CondType,
	sortID int, opts SelectOpts,
) (SelectKeyResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, dberrors.FromContext(ctx)
	}
	if opts.ForceComparator {
		return f.comparatorResult(cond, keys)
	}
	switch cond {
	case query.CondEmpty:
		return SelectKeyResults{{IDs: f.emptyIDs.Clone()}}, nil
	case query.CondAny:
		return f.comparatorResult(cond, keys)
	case query.CondEq, query.CondSet:
		return f.selectEq(keys, cond, sortID, opts)
	case query.CondAllSet:
		if len(keys) == 1 {
			return f.selectEq(keys, query.CondEq, sortID, opts)
		}
		return f.comparatorResult(cond, keys)
	case query.CondLt, query.CondLe, query.CondGt, query.CondGe, query.CondRange:
		if !f.def.Type.Ordered() {
			return f.comparatorResult(cond, keys)
		}
		return f.selectRange(keys, cond, sortID, opts)
	case query.CondLike, query.CondDWithin:
		return f.comparatorResult(cond, keys)
	default:
		return nil, dberrors.Params("index %q can't serve condition %s", f.def.Name, cond)
	}
}

func (f *fieldIndex) comparatorResult(cond query.CondType, keys payload.Variants) (SelectKeyResults, error) {
	cmp, err := NewComparator(f.def.Name, cond, keys, &f.def.Opts.Collate, f.getter)
	if err != nil {
		return nil, err
	}
	return SelectKeyResults{{Comparator: cmp}}, nil
}

func (f *fieldIndex) selectEq(keys payload.Variants, cond query.CondType, sortID int, opts SelectOpts) (SelectKeyResults, error) {
	if len(keys) == 0 {
		// empty IN () matches nothing
		return SelectKeyResults{{IDs: idset.New()}}, nil
	}
	ck := cacheKey(keys, cond, sortID)
	if !opts.DisableCache {
		if ids, ok := f.cache.get(ck); ok {
			return SelectKeyResults{{IDs: idset.NewFrom(ids...)}}, nil
		}
	}
	total := 0
	entries := make([]*keyEntry, 0, len(keys))
	for _, k := range keys {
		if e := f.store.get(k); e != nil {
			entries = append(entries, e)
			total += e.ids.Size()
		}
	}
	if f.tooBig(total, opts) {
		return f.comparatorResult(cond, keys)
	}
	out := idset.New()
	for _, e := range entries {
		e.ids.ForEach(func(id int) bool {
			out.Add(id, idset.AddUnordered)
			return true
		})
	}
	out.Commit()
	if !opts.DisableCache {
		f.cache.put(ck, append([]int(nil), out.Slice()...))
	}
	res := SelectKeyResult{IDs: out}
	if sortID >= 0 && len(entries) == 1 && f.sortID == sortID {
		res.IDs.SetSorted(sortID, entries[0].ids.Sorted(sortID))
	}
	return SelectKeyResults{res}, nil
}

func (f *fieldIndex) selectRange(keys payload.Variants, cond query.CondType, sortID int, opts SelectOpts) (SelectKeyResults, error) {
	var lo, hi *payload.Variant
	loIncl, hiIncl := true, true
	switch cond {
	case query.CondLt:
		hi, hiIncl = &keys[0], false
	case query.CondLe:
		hi = &keys[0]
	case query.CondGt:
		lo, loIncl = &keys[0], false
	case query.CondGe:
		lo = &keys[0]
	case query.CondRange:
		if len(keys) != 2 {
			return nil, dberrors.Params("RANGE on %q needs exactly 2 values", f.def.Name)
		}
		lo, hi = &keys[0], &keys[1]
		if r, err := lo.Compare(*hi, &f.def.Opts.Collate); err == nil && r > 0 {
			// reversed bounds match nothing
			return SelectKeyResults{{IDs: idset.New()}}, nil
		}
	}
	out := idset.New()
	total := 0
	aborted := false
	f.store.ascendRange(lo, hi, loIncl, hiIncl, func(e *keyEntry) bool {
		total += e.ids.Size()
		if f.tooBig(total, opts) {
			aborted = true
			return false
		}
		e.ids.ForEach(func(id int) bool {
			out.Add(id, idset.AddUnordered)
			return true
		})
		return true
	})
	if aborted {
		return f.comparatorResult(cond, keys)
	}
	out.Commit()
	return SelectKeyResults{{IDs: out}}, nil
}

// tooBig applies the comparator fallback policy.
func (f *fieldIndex) tooBig(candidates int, opts SelectOpts) bool {
	if opts.MaxIterations > 0 && candidates > opts.MaxIterations {
		return true
	}
	return opts.ItemsCount > 0 && candidates > opts.ItemsCount/comparatorFallbackFraction && candidates > 1000
}

func (f *fieldIndex) Commit() {
	f.store.commit()
	f.emptyIDs.Commit()
}

func (f *fieldIndex) SortID() int      { return f.sortID }
func (f *fieldIndex) SetSortID(id int) { f.sortID = id }

// MakeSortOrders walks keys in order and lays every row out once; rows
// without a key (sparse empties) go last. Array indexes have no total
// order and return nil.
func (f *fieldIndex) MakeSortOrders(ctx context.Context) []int {
	if !f.def.Type.Ordered() || f.def.Opts.Array {
		return nil
	}
	orders := make([]int, 0, 1024)
	seen := map[int]struct{}{}
	f.store.forEach(func(e *keyEntry) bool {
		if ctx.Err() != nil {
			return false
		}
		e.ids.ForEach(func(id int) bool {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				orders = append(orders, id)
			}
			return true
		})
		return true
	})
	f.emptyIDs.ForEach(func(id int) bool {
		if _, dup := seen[id]; !dup {
			orders = append(orders, id)
		}
		return true
	})
	if ctx.Err() != nil {
		return nil
	}
	f.sortOrders = orders
	return orders
}

// UpdateSortedIDs ranks every key's id set by the materialized order so
// Sorted(sortID) needs no sort at select time.
func (f *fieldIndex) UpdateSortedIDs(ctx context.Context) {
	if f.sortID < 0 || len(f.sortOrders) == 0 {
		return
	}
	rank := make(map[int]int, len(f.sortOrders))
	for pos, id := range f.sortOrders {
		rank[id] = pos
	}
	f.store.forEach(func(e *keyEntry) bool {
		if ctx.Err() != nil {
			return false
		}
		ids := append([]int(nil), e.ids.Slice()...)
		sortByRank(ids, rank)
		e.ids.SetSorted(f.sortID, ids)
		return true
	})
}

func sortByRank(ids []int, rank map[int]int) {
	sort.Slice(ids, func(i, j int) bool { return rank[ids[i]] < rank[ids[j]] })
}

func (f *fieldIndex) MemStat() MemStat {
	hits, misses := f.cache.stats()
	return MemStat{
		Name:          f.def.Name,
		UniqKeysCount: f.store.len(),
		SortOrderSize: len(f.sortOrders),
		CacheHits:     hits,
		CacheMisses:   misses,
	}
}
