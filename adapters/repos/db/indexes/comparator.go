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
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// ValuesGetter resolves the current values of a field for one row; the
// namespace provides it so comparators can address both dense fields and
// sparse tag paths.
type ValuesGetter func(rowID int) payload.Variants

// Comparator is the row-by-row predicate an index falls back to when a
// materialized id set would be larger than a scan is worth.
type Comparator struct {
	Field   string
	Cond    query.CondType
	Values  payload.Variants
	Collate *payload.CollateOpts
	Getter  ValuesGetter

	like    *likeMatcher
	dwithin *dwithinArgs
}

type dwithinArgs struct {
	x, y, dist float64
}

// NewComparator validates the condition arity up front so a malformed
// query fails before the scan starts.
func NewComparator(field string, cond query.CondType, values payload.Variants,
	collate *payload.CollateOpts, getter ValuesGetter,
) (*Comparator, error) {
	c := &Comparator{Field: field, Cond: cond, Values: values, Collate: collate, Getter: getter}
	switch cond {
	case query.CondEq, query.CondLt, query.CondLe, query.CondGt, query.CondGe:
		if len(values) < 1 {
			return nil, dberrors.Params("condition %s on %q needs a value", cond, field)
		}
	case query.CondRange:
		if len(values) != 2 {
			return nil, dberrors.Params("RANGE on %q needs exactly 2 values", field)
		}
	case query.CondLike:
		if len(values) != 1 || values[0].Kind() != payload.KindString {
			return nil, dberrors.Params("LIKE on %q needs a string pattern", field)
		}
		var err error
		if c.like, err = newLikeMatcher(values[0].Str()); err != nil {
			return nil, err
		}
	case query.CondDWithin:
		if len(values) != 3 {
			return nil, dberrors.Params("DWITHIN on %q needs point and distance", field)
		}
		x, _ := values[0].AsFloat()
		y, _ := values[1].AsFloat()
		d, _ := values[2].AsFloat()
		c.dwithin = &dwithinArgs{x: x, y: y, dist: d}
	}
	return c, nil
}

// Match evaluates the predicate against one row.
func (c *Comparator) Match(rowID int) bool {
	vals := c.Getter(rowID)
	switch c.Cond {
	case query.CondAny:
		return len(vals) > 0 && !(len(vals) == 1 && vals[0].IsNull())
	case query.CondEmpty:
		return len(vals) == 0 || (len(vals) == 1 && vals[0].IsNull())
	case query.CondAllSet:
		for _, want := range c.Values {
			found := false
			for _, v := range vals {
				if v.RelaxedEqual(want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case query.CondDWithin:
		return c.matchDWithin(vals)
	}
	for _, v := range vals {
		if c.matchOne(v) {
			return true
		}
	}
	return false
}

func (c *Comparator) matchOne(v payload.Variant) bool {
	switch c.Cond {
	case query.CondEq, query.CondSet:
		for _, want := range c.Values {
			if v.RelaxedEqual(want) {
				return true
			}
		}
		return false
	case query.CondLt:
		r, err := v.Compare(c.Values[0], c.Collate)
		return err == nil && r < 0
	case query.CondLe:
		r, err := v.Compare(c.Values[0], c.Collate)
		return err == nil && r <= 0
	case query.CondGt:
		r, err := v.Compare(c.Values[0], c.Collate)
		return err == nil && r > 0
	case query.CondGe:
		r, err := v.Compare(c.Values[0], c.Collate)
		return err == nil && r >= 0
	case query.CondRange:
		lo, err1 := v.Compare(c.Values[0], c.Collate)
		hi, err2 := v.Compare(c.Values[1], c.Collate)
		return err1 == nil && err2 == nil && lo >= 0 && hi <= 0
	case query.CondLike:
		return v.Kind() == payload.KindString && c.like.match(v.Str())
	default:
		return false
	}
}

// matchDWithin treats the field as a 2-element point array.
func (c *Comparator) matchDWithin(vals payload.Variants) bool {
	if len(vals) < 2 {
		return false
	}
	x, okx := vals[0].AsFloat()
	y, oky := vals[1].AsFloat()
	if !okx || !oky {
		return false
	}
	dx, dy := x-c.dwithin.x, y-c.dwithin.y
	return dx*dx+dy*dy <= c.dwithin.dist*c.dwithin.dist
}
