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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/payload"
)

func TestTTLEviction(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "created", Type: indexes.TypeTTL, KeyKind: payload.KindInt64,
			Opts: indexes.Opts{ExpireAfter: 60}})

	now := time.Now().Unix()
	upsertJSON(t, ns, fmt.Sprintf(`{"id":1,"created":%d}`, now-3600))
	upsertJSON(t, ns, fmt.Sprintf(`{"id":2,"created":%d}`, now))

	require.True(t, ns.evictExpired())
	assert.Equal(t, 1, ns.ItemsCount())
	docs := rowDocs(t, selectSQL(t, d, "SELECT * FROM ns"))
	require.Len(t, docs, 1)
	assert.EqualValues(t, 2, docs[0]["id"])
}

func TestMaintenanceCycleBuildsSortOrders(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "score", Type: indexes.TypeTree, KeyKind: payload.KindInt})
	for i := 0; i < 5; i++ {
		upsertJSON(t, ns, fmt.Sprintf(`{"id":%d,"score":%d}`, i, 50-i))
	}
	// pretend the namespace quiesced long ago
	ns.lastUpdate.Store(time.Now().Add(-time.Minute).UnixNano())
	require.True(t, ns.optimizeIndexes(func() bool { return false }))
	assert.EqualValues(t, optDone, ns.optState.Load())

	pos, ok := ns.indexByName["score"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, ns.indexes[pos].SortID(), 0)
	assert.Equal(t, 5, ns.indexes[pos].MemStat().SortOrderSize)
}
