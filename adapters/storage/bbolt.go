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

package storage

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var kvBucket = []byte("kv")

// BoltEngine is the stock Engine implementation on bbolt. All pairs live
// in a single bucket so prefix cursors map directly onto bbolt's
// key-ordered iteration.
type BoltEngine struct {
	db *bolt.DB
}

func NewBoltEngine() *BoltEngine { return &BoltEngine{} }

func (e *BoltEngine) Open(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create storage dir")
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return errors.Wrap(err, "open bolt storage")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return errors.Wrap(err, "init kv bucket")
	}
	e.db = db
	return nil
}

func (e *BoltEngine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *BoltEngine) Read(key []byte) ([]byte, error) {
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (e *BoltEngine) Write(key, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put(key, value)
	})
}

func (e *BoltEngine) Remove(key []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Delete(key)
	})
}

// WriteBatch applies a set of puts (nil value = delete) in one bolt
// transaction; the async adapter uses it on flush.
func (e *BoltEngine) WriteBatch(puts map[string][]byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		for k, v := range puts {
			if v == nil {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *BoltEngine) Flush() error {
	return e.db.Sync()
}

type boltCursor struct {
	tx     *bolt.Tx
	cur    *bolt.Cursor
	prefix []byte
	key    []byte
	val    []byte
	first  bool
}

func (e *BoltEngine) Cursor(prefix []byte) (Cursor, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, errors.Wrap(err, "begin cursor tx")
	}
	return &boltCursor{tx: tx, cur: tx.Bucket(kvBucket).Cursor(), prefix: prefix, first: true}, nil
}

func (c *boltCursor) Next() bool {
	var k, v []byte
	if c.first {
		k, v = c.cur.Seek(c.prefix)
		c.first = false
	} else {
		k, v = c.cur.Next()
	}
	if k == nil || !bytes.HasPrefix(k, c.prefix) {
		c.key, c.val = nil, nil
		return false
	}
	c.key, c.val = k, v
	return true
}

func (c *boltCursor) Key() []byte   { return c.key }
func (c *boltCursor) Value() []byte { return c.val }

func (c *boltCursor) Close() error {
	return c.tx.Rollback()
}
