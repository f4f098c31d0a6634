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
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	engine := NewBoltEngine()
	require.NoError(t, engine.Open(filepath.Join(t.TempDir(), "test.db")))
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	a := NewAdapter(engine, 0, logger)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapterReadSeesStagedWrites(t *testing.T) {
	a := newTestAdapter(t)
	a.Write([]byte("k1"), []byte("v1"))
	got, err := a.Read([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	a.Remove([]byte("k1"))
	_, err = a.Read([]byte("k1"))
	assert.Equal(t, ErrNotFound, err)
}

func TestAdapterFlushAndCursor(t *testing.T) {
	a := newTestAdapter(t)
	a.Write([]byte("I.1"), []byte("one"))
	a.Write([]byte("I.2"), []byte("two"))
	a.Write([]byte("meta.x"), []byte("m"))

	cur, err := a.Cursor([]byte("I."))
	require.NoError(t, err)
	defer cur.Close()
	var keys []string
	for cur.Next() {
		keys = append(keys, string(cur.Key()))
	}
	assert.Equal(t, []string{"I.1", "I.2"}, keys)
}

func TestAdapterFlushPersistsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	engine := NewBoltEngine()
	require.NoError(t, engine.Open(path))
	a := NewAdapter(engine, 0, logger)
	a.Write([]byte("key"), []byte("value"))
	require.NoError(t, a.Close())

	engine = NewBoltEngine()
	require.NoError(t, engine.Open(path))
	a = NewAdapter(engine, 0, logger)
	defer a.Close()
	got, err := a.Read([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestSysRecordRotation(t *testing.T) {
	a := newTestAdapter(t)
	rec := NewSysRecord(a, PrefixTags)

	body, err := rec.Load()
	require.NoError(t, err)
	assert.Nil(t, body)

	require.NoError(t, rec.Save([]byte("v1")))
	require.NoError(t, rec.Save([]byte("v2")))
	require.NoError(t, rec.Save([]byte("v3")))

	// a fresh handle picks the highest version
	fresh := NewSysRecord(a, PrefixTags)
	body, err = fresh.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), body)
}

func TestSysRecordManySavesWrapSlots(t *testing.T) {
	a := newTestAdapter(t)
	rec := NewSysRecord(a, PrefixIndexes)
	for i := 0; i < SysRecordSlots+3; i++ {
		require.NoError(t, rec.Save([]byte{byte(i)}))
	}
	fresh := NewSysRecord(a, PrefixIndexes)
	body, err := fresh.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(SysRecordSlots + 2)}, body)
}

func TestIndexesBodyMagic(t *testing.T) {
	wrapped := WrapIndexesBody([]byte("defs"))
	body, err := UnwrapIndexesBody(wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("defs"), body)

	_, err = UnwrapIndexesBody([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Error(t, err)
}

func TestLockFullyBlocksFlush(t *testing.T) {
	a := newTestAdapter(t)
	a.Write([]byte("k"), []byte("v"))
	unlock, err := a.LockFully()
	require.NoError(t, err)
	a.Write([]byte("k2"), []byte("v2"))
	unlock()
	require.NoError(t, a.Flush())
	got, err := a.Read([]byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}
