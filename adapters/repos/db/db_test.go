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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d := New(DefaultConfig(), testLogger(), nil)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func openNS(t *testing.T, d *DB, name string, defs ...indexes.Def) *Namespace {
	t.Helper()
	ns, err := d.OpenNamespace(name)
	require.NoError(t, err)
	for _, def := range defs {
		require.NoError(t, ns.AddIndex(def))
	}
	return ns
}

func pkDef(name string) indexes.Def {
	return indexes.Def{Name: name, Type: indexes.TypeHash, KeyKind: payload.KindInt,
		Opts: indexes.Opts{PK: true}}
}

func upsertJSON(t *testing.T, ns *Namespace, doc string) {
	t.Helper()
	require.NoError(t, ns.Upsert(context.Background(), NewItem([]byte(doc))))
}

func selectSQL(t *testing.T, d *DB, sql string) *QueryResults {
	t.Helper()
	qr, err := d.ExecSQL(context.Background(), sql)
	require.NoError(t, err)
	return qr
}

func rowDocs(t *testing.T, qr *QueryResults) []map[string]interface{} {
	t.Helper()
	out := make([]map[string]interface{}, 0, qr.Count())
	for i := range qr.Rows {
		doc, err := qr.ItemJSON(i)
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(doc, &m))
		out = append(out, m)
	}
	return out
}

func TestPKUpsertKeepsOneRow(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "title", Type: indexes.TypeHash, KeyKind: payload.KindString})

	upsertJSON(t, ns, `{"id":1,"title":"a"}`)
	upsertJSON(t, ns, `{"id":1,"title":"b"}`)

	qr := selectSQL(t, d, "SELECT * FROM ns")
	require.Equal(t, 1, qr.Count())
	docs := rowDocs(t, qr)
	assert.EqualValues(t, 1, docs[0]["id"])
	assert.Equal(t, "b", docs[0]["title"])
	assert.Equal(t, 1, ns.ItemsCount())
}

func TestInsertDuplicatePKIsNoOp(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "title", Type: indexes.TypeHash, KeyKind: payload.KindString})

	require.NoError(t, ns.Insert(context.Background(), NewItem([]byte(`{"id":1,"title":"first"}`))))
	require.NoError(t, ns.Insert(context.Background(), NewItem([]byte(`{"id":1,"title":"second"}`))))

	docs := rowDocs(t, selectSQL(t, d, "SELECT * FROM ns"))
	require.Len(t, docs, 1)
	assert.Equal(t, "first", docs[0]["title"])
}

func TestCompositeEquality(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "a", Type: indexes.TypeHash, KeyKind: payload.KindInt},
		indexes.Def{Name: "b", Type: indexes.TypeHash, KeyKind: payload.KindInt},
		indexes.Def{Name: "a+b", Type: indexes.TypeCompositeHash, Fields: []string{"a", "b"}})

	upsertJSON(t, ns, `{"id":1,"a":1,"b":2}`)
	upsertJSON(t, ns, `{"id":2,"a":1,"b":3}`)
	upsertJSON(t, ns, `{"id":3,"a":2,"b":2}`)

	docs := rowDocs(t, selectSQL(t, d, `SELECT * FROM ns WHERE "a+b" = (1,2)`))
	require.Len(t, docs, 1)
	assert.EqualValues(t, 1, docs[0]["id"])

	// composite keys track field updates
	upsertJSON(t, ns, `{"id":1,"a":5,"b":6}`)
	assert.Empty(t, rowDocs(t, selectSQL(t, d, `SELECT * FROM ns WHERE "a+b" = (1,2)`)))
	docs = rowDocs(t, selectSQL(t, d, `SELECT * FROM ns WHERE "a+b" = (5,6)`))
	require.Len(t, docs, 1)
}

func TestRangeWithForcedSort(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "score", Type: indexes.TypeTree, KeyKind: payload.KindInt})
	for i, score := range []int{10, 20, 30, 40, 50} {
		upsertJSON(t, ns, fmt.Sprintf(`{"id":%d,"score":%d}`, i+1, score))
	}

	qr := selectSQL(t, d, "SELECT * FROM ns WHERE score >= 20 AND score <= 40 ORDER BY score(30,10,20) DESC")
	docs := rowDocs(t, qr)
	require.Len(t, docs, 3)
	// forced values pin listed rows first, the rest fall back to DESC
	assert.EqualValues(t, 30, docs[0]["score"])
	assert.EqualValues(t, 20, docs[1]["score"])
	assert.EqualValues(t, 40, docs[2]["score"])
}

func TestInnerJoinWithPreSelect(t *testing.T) {
	d := newTestDB(t)
	authors := openNS(t, d, "authors", pkDef("id"),
		indexes.Def{Name: "name", Type: indexes.TypeHash, KeyKind: payload.KindString})
	books := openNS(t, d, "books", pkDef("id"),
		indexes.Def{Name: "author_id", Type: indexes.TypeHash, KeyKind: payload.KindInt})

	upsertJSON(t, authors, `{"id":1,"name":"Ann"}`)
	upsertJSON(t, authors, `{"id":2,"name":"Bob"}`)
	for i := 1; i <= 6; i++ {
		upsertJSON(t, books, fmt.Sprintf(`{"id":%d,"author_id":%d}`, i, (i%2)+1))
	}

	qr := selectSQL(t, d,
		"SELECT * FROM books INNER JOIN authors ON books.author_id = authors.id WHERE authors.name LIKE 'A%'")
	require.Equal(t, 3, qr.Count())
	for i := range qr.Rows {
		require.Len(t, qr.Rows[i].Joined, 1)
		sub := qr.Rows[i].Joined[0]
		require.Equal(t, 1, sub.Count())
		joined := rowDocs(t, sub)
		assert.Equal(t, "Ann", joined[0]["name"])
	}
}

func TestLeftJoinAttachesRows(t *testing.T) {
	d := newTestDB(t)
	authors := openNS(t, d, "authors", pkDef("id"))
	books := openNS(t, d, "books", pkDef("id"),
		indexes.Def{Name: "author_id", Type: indexes.TypeHash, KeyKind: payload.KindInt})
	upsertJSON(t, authors, `{"id":1}`)
	upsertJSON(t, books, `{"id":10,"author_id":1}`)
	upsertJSON(t, books, `{"id":11,"author_id":99}`)

	qr := selectSQL(t, d, "SELECT * FROM books LEFT JOIN authors ON books.author_id = authors.id")
	require.Equal(t, 2, qr.Count())
	withJoin := 0
	for i := range qr.Rows {
		if len(qr.Rows[i].Joined) > 0 {
			withJoin++
		}
	}
	assert.Equal(t, 1, withJoin)
}

func TestDataHashXORInvariant(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "v", Type: indexes.TypeHash, KeyKind: payload.KindString})
	for i := 0; i < 10; i++ {
		upsertJSON(t, ns, fmt.Sprintf(`{"id":%d,"v":"val%d"}`, i, i))
	}
	_, err := d.ExecSQL(context.Background(), "DELETE FROM ns WHERE id IN (2,5)")
	require.NoError(t, err)

	ns.mu.RLock()
	var want uint64
	for rowID := range ns.items {
		if !ns.items[rowID].IsFree() {
			want ^= ns.items[rowID].Hash()
		}
	}
	ns.mu.RUnlock()
	assert.Equal(t, want, ns.DataHash())
	assert.Equal(t, 8, ns.ItemsCount())
}

func TestTruncateResetsEverything(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":1}`)
	upsertJSON(t, ns, `{"id":2}`)
	require.NotZero(t, ns.DataHash())

	_, err := d.ExecSQL(context.Background(), "TRUNCATE ns")
	require.NoError(t, err)
	assert.Zero(t, ns.DataHash())
	assert.Zero(t, ns.ItemsCount())
	assert.Empty(t, rowDocs(t, selectSQL(t, d, "SELECT * FROM ns")))
	// the namespace stays usable
	upsertJSON(t, ns, `{"id":3}`)
	assert.Equal(t, 1, ns.ItemsCount())
}

func TestUpdateQuerySetDropExpression(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "price", Type: indexes.TypeTree, KeyKind: payload.KindInt})
	upsertJSON(t, ns, `{"id":1,"price":10,"legacy":true}`)
	upsertJSON(t, ns, `{"id":2,"price":20,"legacy":true}`)

	_, err := d.ExecSQL(context.Background(),
		"UPDATE ns SET price = price + 5 DROP legacy WHERE id = 1")
	require.NoError(t, err)

	docs := rowDocs(t, selectSQL(t, d, "SELECT * FROM ns WHERE id = 1"))
	require.Len(t, docs, 1)
	assert.EqualValues(t, 15, docs[0]["price"])
	_, hasLegacy := docs[0]["legacy"]
	assert.False(t, hasLegacy)

	// the index reflects the new value
	docs = rowDocs(t, selectSQL(t, d, "SELECT * FROM ns WHERE price = 15"))
	require.Len(t, docs, 1)
}

func TestEmptyINBoundary(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":1}`)
	upsertJSON(t, ns, `{"id":2}`)

	assert.Equal(t, 0, selectSQL(t, d, "SELECT * FROM ns WHERE id IN ()").Count())
	// ALLSET with no values places no constraint
	assert.Equal(t, 2, selectSQL(t, d, "SELECT * FROM ns WHERE id ALLSET ()").Count())
}

func TestAggregations(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "price", Type: indexes.TypeTree, KeyKind: payload.KindInt},
		indexes.Def{Name: "brand", Type: indexes.TypeHash, KeyKind: payload.KindString})
	rows := []struct {
		price int
		brand string
	}{{10, "x"}, {20, "x"}, {30, "y"}}
	for i, r := range rows {
		upsertJSON(t, ns, fmt.Sprintf(`{"id":%d,"price":%d,"brand":"%s"}`, i, r.price, r.brand))
	}

	qr := selectSQL(t, d, "SELECT COUNT(*), SUM(price), MIN(price), MAX(price), AVG(price), FACET(brand), DISTINCT(brand) FROM ns")
	require.Len(t, qr.Aggregations, 7)
	assert.Equal(t, 3.0, *qr.Aggregations[0].Value)
	assert.Equal(t, 60.0, *qr.Aggregations[1].Value)
	assert.Equal(t, 10.0, *qr.Aggregations[2].Value)
	assert.Equal(t, 30.0, *qr.Aggregations[3].Value)
	assert.Equal(t, 20.0, *qr.Aggregations[4].Value)

	facets := qr.Aggregations[5].Facets
	require.Len(t, facets, 2)
	counts := map[string]int{}
	for _, f := range facets {
		counts[f.Values[0].Str()] = f.Count
	}
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, counts)

	assert.Len(t, qr.Aggregations[6].Distinct, 2)
}

func TestFulltextThroughSQL(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "title", Type: indexes.TypeHash, KeyKind: payload.KindString},
		indexes.Def{Name: "search", Type: indexes.TypeFullText, Fields: []string{"title"}})

	upsertJSON(t, ns, `{"id":1,"title":"hello world"}`)
	upsertJSON(t, ns, `{"id":2,"title":"goodbye moon"}`)
	upsertJSON(t, ns, `{"id":3,"title":"yellow hello"}`)

	qr := selectSQL(t, d, "SELECT * FROM ns WHERE search = '*ell*'")
	require.Equal(t, 2, qr.Count())
	// ranks flow into the result rows, best first
	assert.GreaterOrEqual(t, qr.Rows[0].Rank, qr.Rows[1].Rank)
}

func TestSchemaValidation(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	require.NoError(t, ns.SetSchema([]byte(`{
		"type":"object",
		"required":["id","title"],
		"properties":{"id":{"type":"integer"},"title":{"type":"string"}}
	}`)))

	err := ns.Upsert(context.Background(), NewItem([]byte(`{"id":1}`)))
	require.Error(t, err)
	assert.Equal(t, dberrors.KindNotValid, dberrors.KindOf(err))
	require.NoError(t, ns.Upsert(context.Background(), NewItem([]byte(`{"id":1,"title":"ok"}`))))
}

func TestMetaStore(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	require.NoError(t, ns.PutMeta("owner", "tests"))
	v, err := ns.GetMeta("owner")
	require.NoError(t, err)
	assert.Equal(t, "tests", v)
	assert.Contains(t, ns.EnumMeta(), "owner")
	_, err = ns.GetMeta("missing")
	assert.Equal(t, dberrors.KindNotFound, dberrors.KindOf(err))
}

func TestPrecepts(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))

	for i := 0; i < 3; i++ {
		item := NewItem([]byte(`{"id":0}`))
		item.SetPrecepts("id=serial()")
		require.NoError(t, ns.Insert(context.Background(), item))
	}
	assert.Equal(t, 3, ns.ItemsCount())
	docs := rowDocs(t, selectSQL(t, d, "SELECT * FROM ns ORDER BY id ASC"))
	assert.EqualValues(t, 1, docs[0]["id"])
	assert.EqualValues(t, 3, docs[2]["id"])
}

func TestTransactionInPlace(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	tx, err := d.BeginTx("ns")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Upsert(NewItem([]byte(fmt.Sprintf(`{"id":%d}`, i)))))
	}
	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, 5, ns.ItemsCount())
}

func TestTransactionTruncateThenInsertCopyMode(t *testing.T) {
	cfg := DefaultConfig()
	// force the copy path for small transactions
	cfg.Namespace.TxSizeToAlwaysCopy = 2
	d := New(cfg, testLogger(), nil)
	defer d.Close(context.Background())

	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":100}`)
	oldHash := ns.DataHash()

	tx, err := d.BeginTx("ns")
	require.NoError(t, err)
	require.NoError(t, tx.Truncate())
	for i := 0; i < 4; i++ {
		require.NoError(t, tx.Upsert(NewItem([]byte(fmt.Sprintf(`{"id":%d}`, i)))))
	}
	require.NoError(t, tx.Commit(context.Background()))

	// the swapped-in namespace holds exactly the new rows
	cur, err := d.Namespace("ns")
	require.NoError(t, err)
	assert.NotSame(t, ns, cur)
	assert.Equal(t, 4, cur.ItemsCount())
	assert.NotEqual(t, oldHash, cur.DataHash())
	assert.Equal(t, 4, selectSQL(t, d, "SELECT * FROM ns").Count())

	// the old handle is readonly
	err = ns.Upsert(context.Background(), NewItem([]byte(`{"id":7}`)))
	require.Error(t, err)
	assert.Equal(t, dberrors.KindLogic, dberrors.KindOf(err))
}

func TestTransactionCancelKeepsOldState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Namespace.TxSizeToAlwaysCopy = 2
	d := New(cfg, testLogger(), nil)
	defer d.Close(context.Background())

	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":100}`)
	oldHash := ns.DataHash()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tx, err := d.BeginTx("ns")
	require.NoError(t, err)
	require.NoError(t, tx.Truncate())
	require.NoError(t, tx.Upsert(NewItem([]byte(`{"id":1}`))))
	require.NoError(t, tx.Upsert(NewItem([]byte(`{"id":2}`))))
	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, dberrors.KindCancel, dberrors.KindOf(err))

	cur, err := d.Namespace("ns")
	require.NoError(t, err)
	assert.Equal(t, 1, cur.ItemsCount())
	assert.Equal(t, oldHash, cur.DataHash())
}

func TestTopLevelOrScansAllBranches(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "a", Type: indexes.TypeHash, KeyKind: payload.KindInt},
		indexes.Def{Name: "b", Type: indexes.TypeHash, KeyKind: payload.KindInt})
	upsertJSON(t, ns, `{"id":1,"a":1,"b":9}`)
	upsertJSON(t, ns, `{"id":2,"a":9,"b":2}`)
	upsertJSON(t, ns, `{"id":3,"a":9,"b":9}`)

	// rows matching only the second disjunct must not be dropped by the
	// driving-set shortcut
	qr := selectSQL(t, d, "SELECT * FROM ns WHERE a = 1 OR b = 2")
	docs := rowDocs(t, qr)
	ids := make([]float64, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc["id"].(float64))
	}
	assert.ElementsMatch(t, []float64{1, 2}, ids)
}

func TestSelectWithBracketsAndNot(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"),
		indexes.Def{Name: "a", Type: indexes.TypeHash, KeyKind: payload.KindInt},
		indexes.Def{Name: "b", Type: indexes.TypeHash, KeyKind: payload.KindInt})
	upsertJSON(t, ns, `{"id":1,"a":1,"b":1}`)
	upsertJSON(t, ns, `{"id":2,"a":1,"b":2}`)
	upsertJSON(t, ns, `{"id":3,"a":2,"b":2}`)

	assert.Equal(t, 2, selectSQL(t, d, "SELECT * FROM ns WHERE a = 1 AND (b = 1 OR b = 2)").Count())
	assert.Equal(t, 2, selectSQL(t, d, "SELECT * FROM ns WHERE NOT b = 1").Count())
	assert.Equal(t, 1, selectSQL(t, d, "SELECT * FROM ns WHERE a = 1 AND NOT b = 2").Count())
}

func TestExplain(t *testing.T) {
	d := newTestDB(t)
	ns := openNS(t, d, "ns", pkDef("id"))
	upsertJSON(t, ns, `{"id":1}`)
	q := query.New("ns").Where("id", query.CondEq, payload.Int(1))
	q.Explain = true
	qr, err := d.Select(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, qr.Explain)
	assert.Equal(t, "index", qr.Explain[0].Method)
	assert.Equal(t, 1, qr.Explain[0].Matched)
}

func TestDropNamespace(t *testing.T) {
	d := newTestDB(t)
	openNS(t, d, "ns", pkDef("id"))
	require.NoError(t, d.DropNamespace("ns"))
	_, err := d.ExecSQL(context.Background(), "SELECT * FROM ns")
	assert.Equal(t, dberrors.KindNotFound, dberrors.KindOf(err))
}
