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

// Package storage adapts an external key-ordered KV store for the
// namespace engine: async batched writes, rolling versioned system records
// and a full-lock handle used while a namespace is cloned for a large
// transaction.
package storage

import "errors"

// ErrNotFound is returned by Read for missing keys.
var ErrNotFound = errors.New("storage: key not found")

// Engine is the contract the engine expects from the KV backend. Keys are
// opaque bytes, iteration is key-ordered.
type Engine interface {
	Open(path string) error
	Close() error
	Read(key []byte) ([]byte, error)
	Write(key, value []byte) error
	Remove(key []byte) error
	Cursor(prefix []byte) (Cursor, error)
	Flush() error
}

// Cursor iterates keys sharing a prefix in ascending key order.
type Cursor interface {
	// Next advances and reports whether a pair is available.
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// Key prefixes of the persisted layout.
const (
	PrefixIndexes = "indexes"
	PrefixSchema  = "schema"
	PrefixRepl    = "repl"
	PrefixTags    = "tags"
	PrefixMeta    = "meta"
	PrefixCache   = "cache"
	// PrefixItem precedes the serialized PK values of item records.
	PrefixItem = "I"
)
