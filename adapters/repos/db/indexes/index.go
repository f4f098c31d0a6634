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

// Package indexes implements the secondary-index layer: hash and tree
// stores, sparse and composite variants, the idset cache and the
// comparator fallback used when materializing an id set would cost more
// than a scan.
package indexes

import (
	"context"

	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// Type enumerates the index flavors a namespace can carry.
type Type int

const (
	TypeHash Type = iota
	TypeTree
	TypeTTL
	TypeFullText
	TypeCompositeHash
	TypeCompositeTree
)

func (t Type) String() string {
	switch t {
	case TypeHash:
		return "hash"
	case TypeTree:
		return "tree"
	case TypeTTL:
		return "ttl"
	case TypeFullText:
		return "text"
	case TypeCompositeHash:
		return "composite_hash"
	case TypeCompositeTree:
		return "composite_tree"
	default:
		return "?"
	}
}

func (t Type) Ordered() bool {
	return t == TypeTree || t == TypeTTL || t == TypeCompositeTree
}

func (t Type) Composite() bool {
	return t == TypeCompositeHash || t == TypeCompositeTree
}

// Opts carries the per-index options from the namespace definition.
type Opts struct {
	PK       bool
	Array    bool
	Dense    bool
	Sparse   bool
	Collate  payload.CollateOpts
	// ExpireAfter applies to TTL indexes, in seconds.
	ExpireAfter int64
}

// Def is the persisted definition of one index.
type Def struct {
	Name      string
	JSONPaths []string
	Type      Type
	KeyKind   payload.Kind
	Opts      Opts
	// Fields lists the constituent field names of a composite index.
	Fields []string
}

// SelectOpts tunes SelectKey.
type SelectOpts struct {
	// ItemsCount is the current namespace size, used by the comparator
	// fallback heuristic.
	ItemsCount int
	// MaxIterations bounds the candidate ids a materialized result may
	// carry before SelectKey degrades to a comparator.
	MaxIterations   int
	ForceComparator bool
	// DisableCache skips the idset cache for this select.
	DisableCache bool
	Unsorted     bool
}

// comparatorFallbackFraction: an Eq/Set result larger than this share of
// the namespace is cheaper to re-check row-by-row than to merge.
const comparatorFallbackFraction = 4

// MemStat is the memory/shape report of one index.
type MemStat struct {
	Name          string
	UniqKeysCount int
	SortOrderSize int
	CacheHits     uint64
	CacheMisses   uint64
}

// Index is the capability every index variant implements. Composite
// variants read their key from the payload value, all others from the
// extracted field values.
type Index interface {
	Name() string
	Def() Def
	Opts() Opts

	// Upsert inserts one row under the given key values; Delete removes
	// it. Both receive the full payload for composite variants.
	Upsert(vals payload.Variants, pl payload.Value, rowID int) error
	Delete(vals payload.Variants, pl payload.Value, rowID int) error

	SelectKey(ctx context.Context, keys payload.Variants, cond query.CondType,
		sortID int, opts SelectOpts) (SelectKeyResults, error)

	// Commit finalizes deferred work after bulk updates.
	Commit()

	// MakeSortOrders materializes the row order of an ordered index and
	// returns it; non-ordered variants return nil.
	MakeSortOrders(ctx context.Context) []int
	SortID() int
	SetSortID(id int)
	// UpdateSortedIDs pushes the current sort order into the per-key id
	// sets so Sorted(sortID) is O(1) at select time.
	UpdateSortedIDs(ctx context.Context)

	MemStat() MemStat
}
