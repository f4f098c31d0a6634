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
	"github.com/google/btree"

	"github.com/weaviate/kestrel/entities/idset"
	"github.com/weaviate/kestrel/entities/payload"
)

// keyEntry is one key of an index with the rows carrying it.
type keyEntry struct {
	key    payload.Variant
	folded string
	ids    *idset.Set
}

// keyedStore maps keys to id sets. Unordered mode keeps only the hash
// map; ordered mode additionally keeps a btree over the entries so range
// conditions and sort-order builds can walk keys in order. The hash map
// serves Eq in both modes.
type keyedStore struct {
	ordered bool
	collate *payload.CollateOpts
	hash    map[string]*keyEntry
	tree    *btree.BTreeG[*keyEntry]
}

func newKeyedStore(ordered bool, collate *payload.CollateOpts) *keyedStore {
	s := &keyedStore{ordered: ordered, collate: collate, hash: map[string]*keyEntry{}}
	if ordered {
		s.tree = btree.NewG[*keyEntry](16, func(a, b *keyEntry) bool {
			if r, err := a.key.Compare(b.key, collate); err == nil {
				return r < 0
			}
			return a.folded < b.folded
		})
	}
	return s
}

// foldKey normalizes a key value into its map form: numerically equal
// numbers collide, strings fold per collate.
func foldKey(v payload.Variant, collate *payload.CollateOpts) string {
	if v.Kind() == payload.KindString {
		if collate != nil {
			return "s\x00" + collate.Fold(v.Str())
		}
		return "s\x00" + v.Str()
	}
	var b [9]byte
	b[0] = 'n'
	h := v.Hash()
	for i := 0; i < 8; i++ {
		b[1+i] = byte(h >> (8 * i))
	}
	return string(b[:])
}

func (s *keyedStore) upsert(key payload.Variant, rowID int, mode idset.AddMode) *keyEntry {
	fk := foldKey(key, s.collate)
	e, ok := s.hash[fk]
	if !ok {
		e = &keyEntry{key: key, folded: fk, ids: idset.New()}
		s.hash[fk] = e
		if s.tree != nil {
			s.tree.ReplaceOrInsert(e)
		}
	}
	e.ids.Add(rowID, mode)
	return e
}

func (s *keyedStore) delete(key payload.Variant, rowID int) {
	fk := foldKey(key, s.collate)
	e, ok := s.hash[fk]
	if !ok {
		return
	}
	e.ids.Erase(rowID)
	if e.ids.Size() == 0 {
		delete(s.hash, fk)
		if s.tree != nil {
			s.tree.Delete(e)
		}
	}
}

func (s *keyedStore) get(key payload.Variant) *keyEntry {
	return s.hash[foldKey(key, s.collate)]
}

func (s *keyedStore) len() int { return len(s.hash) }

func (s *keyedStore) forEach(fn func(e *keyEntry) bool) {
	if s.tree != nil {
		s.tree.Ascend(func(e *keyEntry) bool { return fn(e) })
		return
	}
	for _, e := range s.hash {
		if !fn(e) {
			return
		}
	}
}

// ascendRange walks entries with lo <= key <= hi in key order; nil bounds
// are open.
func (s *keyedStore) ascendRange(lo, hi *payload.Variant, loIncl, hiIncl bool, fn func(e *keyEntry) bool) {
	if s.tree == nil {
		return
	}
	s.tree.Ascend(func(e *keyEntry) bool {
		if lo != nil {
			r, err := e.key.Compare(*lo, s.collate)
			if err != nil || r < 0 || (r == 0 && !loIncl) {
				return true
			}
		}
		if hi != nil {
			r, err := e.key.Compare(*hi, s.collate)
			if err != nil || r > 0 || (r == 0 && !hiIncl) {
				return false
			}
		}
		return fn(e)
	})
}

func (s *keyedStore) commit() {
	for _, e := range s.hash {
		e.ids.Commit()
	}
}
