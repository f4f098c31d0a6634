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

package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/payload"
)

func newPersistentDB(t *testing.T, path string) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = path
	return New(cfg, testLogger(), nil)
}

func TestNamespaceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	d := newPersistentDB(t, dir)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "title", Type: indexes.TypeHash, KeyKind: payload.KindString})
	for i := 0; i < 20; i++ {
		upsertJSON(t, ns, fmt.Sprintf(`{"id":%d,"title":"doc %d","extra":{"n":%d}}`, i, i, i))
	}
	require.NoError(t, ns.PutMeta("build", "42"))
	require.NoError(t, ns.SetSchema([]byte(`{"type":"object","required":["id"]}`)))
	hash := ns.DataHash()
	require.NoError(t, d.Close(context.Background()))

	d2 := newPersistentDB(t, dir)
	defer d2.Close(context.Background())
	ns2, err := d2.OpenNamespace("ns")
	require.NoError(t, err)

	assert.Equal(t, 20, ns2.ItemsCount())
	assert.Equal(t, hash, ns2.DataHash())

	// indexes were reconstructed and serve queries
	qr := selectSQL(t, d2, "SELECT * FROM ns WHERE title = 'doc 7'")
	require.Equal(t, 1, qr.Count())
	docs := rowDocs(t, qr)
	assert.EqualValues(t, 7, docs[0]["id"])

	// meta and schema came back
	v, err := ns2.GetMeta("build")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
	assert.NotEmpty(t, ns2.GetSchema())

	// schema still validates
	err = ns2.Upsert(context.Background(), NewItem([]byte(`{"title":"no id"}`)))
	assert.Error(t, err)
}

func TestDeleteRemovedFromStorage(t *testing.T) {
	dir := t.TempDir()
	d := newPersistentDB(t, dir)
	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":1}`)
	upsertJSON(t, ns, `{"id":2}`)
	_, err := d.ExecSQL(context.Background(), "DELETE FROM ns WHERE id = 1")
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	d2 := newPersistentDB(t, dir)
	defer d2.Close(context.Background())
	ns2, err := d2.OpenNamespace("ns")
	require.NoError(t, err)
	assert.Equal(t, 1, ns2.ItemsCount())
}
