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

// Package db is the namespace engine: item lifecycle, the selector with
// joins and aggregations, transactions and the background maintenance
// wiring.
package db

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/weaviate/kestrel/adapters/repos/db/fulltext"
	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/adapters/repos/db/wal"
	"github.com/weaviate/kestrel/adapters/storage"
	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/usecases/monitoring"
)

type optimizationState int32

const (
	optNone optimizationState = iota
	optPartial
	optDone
)

// Namespace is one document collection: payload rows addressed by dense
// row ids, the index set over them, the WAL and the optional storage
// binding. Readers hold the RW lock shared, mutations exclusive.
type Namespace struct {
	mu   sync.RWMutex
	name string

	payloadType *payload.Type
	tagsMatcher *payload.TagsMatcher

	items []payload.Value
	free  []int

	indexes     []indexes.Index
	indexByName map[string]int
	pkIndex     int

	dataHash      uint64
	itemsDataSize int64
	itemsCount    int

	wal           *wal.WAL
	storage       *storage.Adapter
	sysTags       *storage.SysRecord
	sysIndexes    *storage.SysRecord
	sysSchema     *storage.SysRecord
	sysMeta       map[string]*storage.SysRecord

	meta      map[string]string
	schemaRaw []byte
	schema    *gojsonschema.Schema

	stringsHolder *payload.StringsHolder

	cfg     NamespaceConfig
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics

	readonly bool
	// walSuppressed silences per-row WAL records while a statement-level
	// record covers the batch.
	walSuppressed bool
	// storageSuppressed silences storage writes while replaying records
	// during open.
	storageSuppressed bool

	lastUpdate      atomic.Int64
	optState        atomic.Int32
	cancelCommitCnt atomic.Int32
	nextSortID      int

	serialCounters map[string]*int64
}

// NewNamespace creates an empty in-memory namespace.
func NewNamespace(name string, cfg NamespaceConfig, logger logrus.FieldLogger,
	metrics *monitoring.Metrics, serverID int16,
) *Namespace {
	ns := &Namespace{
		name:           name,
		payloadType:    payload.NewType(),
		tagsMatcher:    payload.NewTagsMatcher(),
		indexByName:    map[string]int{},
		pkIndex:        -1,
		wal:            wal.New(name, serverID, cfg.WALSize),
		meta:           map[string]string{},
		stringsHolder:  payload.NewStringsHolder(),
		cfg:            cfg,
		logger:         logger.WithField("namespace", name),
		metrics:        metrics,
		sysMeta:        map[string]*storage.SysRecord{},
		serialCounters: map[string]*int64{},
	}
	return ns
}

func (ns *Namespace) Name() string { return ns.name }

// WAL exposes the journal for observers.
func (ns *Namespace) WAL() *wal.WAL { return ns.wal }

// DataHash is the XOR of all live rows' payload hashes.
func (ns *Namespace) DataHash() uint64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.dataHash
}

func (ns *Namespace) ItemsCount() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.itemsCount
}

// AddIndex defines a new index, extends the payload type for dense
// fields and reindexes existing rows.
func (ns *Namespace) AddIndex(def indexes.Def) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.addIndexLocked(def, true)
}

func (ns *Namespace) addIndexLocked(def indexes.Def, persist bool) error {
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	if _, exists := ns.indexByName[def.Name]; exists {
		return dberrors.Conflict("index %q already exists", def.Name)
	}
	if def.Opts.PK {
		if ns.pkIndex >= 0 {
			return dberrors.Conflict("namespace %q already has a PK index", ns.name)
		}
		if def.Opts.Array || def.Opts.Sparse {
			return dberrors.Params("PK index can't be array or sparse")
		}
	}

	idx, err := ns.buildIndex(def)
	if err != nil {
		return err
	}
	if !def.Type.Composite() && !def.Opts.Sparse && def.Type != indexes.TypeFullText {
		if _, ok := ns.payloadType.FieldByName(def.Name); !ok {
			nt := ns.payloadType.Clone()
			if _, err := nt.AddField(payload.Field{
				Name:      def.Name,
				Kind:      def.KeyKind,
				IsArray:   def.Opts.Array,
				JSONPaths: def.JSONPaths,
				Collate:   def.Opts.Collate,
			}); err != nil {
				return err
			}
			ns.payloadType = nt
			for i := range ns.items {
				if !ns.items[i].IsFree() {
					ns.items[i] = ns.items[i].ResizeFields(nt.NumFields())
				}
			}
		}
	}
	ns.indexes = append(ns.indexes, idx)
	ns.indexByName[def.Name] = len(ns.indexes) - 1
	if def.Opts.PK {
		ns.pkIndex = len(ns.indexes) - 1
	}

	if err := ns.reindexAllInto(idx); err != nil {
		return err
	}

	if !ns.walSuppressed {
		ns.wal.Add(wal.Record{Type: wal.RecIndexAdd, Key: def.Name})
	}
	ns.markUpdated()
	if persist {
		ns.persistIndexes()
	}
	return nil
}

// buildIndex wires the right index variant for a definition.
func (ns *Namespace) buildIndex(def indexes.Def) (indexes.Index, error) {
	switch {
	case def.Type == indexes.TypeFullText:
		fields := def.Fields
		if len(fields) == 0 {
			fields = []string{def.Name}
		}
		return fulltext.NewFastIndex(def, fulltext.Config{}, fields, ns.logger), nil
	case def.Type.Composite():
		fieldIdxs := make([]int, len(def.Fields))
		collates := make([]*payload.CollateOpts, len(def.Fields))
		for i, fname := range def.Fields {
			fi, ok := ns.payloadType.FieldByName(fname)
			if !ok {
				return nil, dberrors.Params("composite index %q references unknown field %q", def.Name, fname)
			}
			fieldIdxs[i] = fi
			f := ns.payloadType.Field(fi)
			collates[i] = &f.Collate
		}
		return indexes.NewCompositeIndex(def, fieldIdxs, collates, ns.rowPayload), nil
	default:
		name := def.Name
		return indexes.NewFieldIndex(def, func(rowID int) payload.Variants {
			return ns.fieldValuesByName(rowID, name)
		}), nil
	}
}

// reindexAllInto replays every live row into a freshly added index.
func (ns *Namespace) reindexAllInto(idx indexes.Index) error {
	for rowID := range ns.items {
		if ns.items[rowID].IsFree() {
			continue
		}
		vals, err := ns.indexValues(idx, rowID)
		if err != nil {
			return err
		}
		if err := idx.Upsert(vals, ns.items[rowID], rowID); err != nil {
			return err
		}
	}
	idx.Commit()
	return nil
}

// UpdateIndex swaps an index definition: drop plus add in one step.
func (ns *Namespace) UpdateIndex(def indexes.Def) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.indexByName[def.Name]; !ok {
		return dberrors.NotFound("index %q not found", def.Name)
	}
	if err := ns.dropIndexLocked(def.Name); err != nil {
		return err
	}
	if err := ns.addIndexLocked(def, true); err != nil {
		return err
	}
	ns.wal.Add(wal.Record{Type: wal.RecIndexUpdate, Key: def.Name})
	return nil
}

// DropIndex removes an index. Dropping a field that a composite index is
// built over fails with a Params error and leaves both indexes in place.
func (ns *Namespace) DropIndex(name string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if err := ns.dropIndexLocked(name); err != nil {
		return err
	}
	ns.wal.Add(wal.Record{Type: wal.RecIndexDrop, Key: name})
	ns.persistIndexes()
	return nil
}

func (ns *Namespace) dropIndexLocked(name string) error {
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	pos, ok := ns.indexByName[name]
	if !ok {
		return dberrors.NotFound("index %q not found", name)
	}
	if pos == ns.pkIndex {
		return dberrors.Params("can't drop PK index %q", name)
	}
	def := ns.indexes[pos].Def()
	for _, other := range ns.indexes {
		od := other.Def()
		if od.Type.Composite() {
			for _, f := range od.Fields {
				if f == name {
					return dberrors.Params("index %q is used by composite %q", name, od.Name)
				}
			}
		}
	}
	ns.indexes = append(ns.indexes[:pos], ns.indexes[pos+1:]...)
	delete(ns.indexByName, name)
	for n, i := range ns.indexByName {
		if i > pos {
			ns.indexByName[n] = i - 1
		}
	}
	if ns.pkIndex > pos {
		ns.pkIndex--
	}
	if !def.Type.Composite() && !def.Opts.Sparse && def.Type != indexes.TypeFullText {
		nt := ns.payloadType.Clone()
		if err := nt.DropField(name); err == nil {
			ns.payloadType = nt
		}
	}
	ns.markUpdated()
	return nil
}

// indexValues resolves the key values an index needs for one row.
func (ns *Namespace) indexValues(idx indexes.Index, rowID int) (payload.Variants, error) {
	def := idx.Def()
	switch {
	case def.Type.Composite():
		return nil, nil
	case def.Type == indexes.TypeFullText:
		fields := def.Fields
		if len(fields) == 0 {
			fields = []string{def.Name}
		}
		out := make(payload.Variants, len(fields))
		for i, fname := range fields {
			vals := ns.fieldValuesByName(rowID, fname)
			if len(vals) > 0 {
				out[i] = vals[0]
			} else {
				out[i] = payload.Null()
			}
		}
		return out, nil
	case def.Opts.Sparse:
		return ns.sparseValues(rowID, def.JSONPaths)
	default:
		fi, ok := ns.payloadType.FieldByName(def.Name)
		if !ok {
			return nil, dberrors.NotFound("payload field %q missing", def.Name)
		}
		return ns.items[rowID].Get(fi), nil
	}
}

// sparseValues extracts values for a tags path from the row's tuple.
func (ns *Namespace) sparseValues(rowID int, jsonPaths []string) (payload.Variants, error) {
	tuple := ns.items[rowID].Get(payload.TupleField)
	if len(tuple) == 0 {
		return nil, nil
	}
	cj := []byte(tuple[0].Str())
	for _, path := range jsonPaths {
		tp, err := ns.tagsMatcher.Path2Tags(path, false)
		if err != nil {
			continue
		}
		vals, err := payload.ValuesByTagsPath(cj, tp, ns.tagsMatcher)
		if err != nil {
			return nil, err
		}
		if len(vals) > 0 {
			return vals, nil
		}
	}
	return nil, nil
}

// rowPayload hands the raw payload of a row to composite indexes.
func (ns *Namespace) rowPayload(rowID int) payload.Value {
	return ns.items[rowID]
}

// fieldValuesByName resolves field values for comparators, sorters and
// aggregators: dense payload fields first, sparse tag paths second.
func (ns *Namespace) fieldValuesByName(rowID int, field string) payload.Variants {
	if rowID < 0 || rowID >= len(ns.items) || ns.items[rowID].IsFree() {
		return nil
	}
	if fi, ok := ns.payloadType.FieldByName(field); ok {
		return ns.items[rowID].Get(fi)
	}
	vals, err := ns.sparseValues(rowID, []string{field})
	if err != nil {
		return nil
	}
	return vals
}

// fieldValuesSafe is the locking variant of fieldValuesByName, for code
// paths running outside the namespace lock (join attachment, right-side
// pre-selects).
func (ns *Namespace) fieldValuesSafe(rowID int, field string) payload.Variants {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.fieldValuesByName(rowID, field)
}

// rowJSON renders a row back to JSON from its tuple.
func (ns *Namespace) rowJSON(rowID int, selectFilter []string) ([]byte, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if rowID < 0 || rowID >= len(ns.items) || ns.items[rowID].IsFree() {
		return nil, dberrors.NotFound("row %d not found", rowID)
	}
	tuple := ns.items[rowID].Get(payload.TupleField)
	if len(tuple) == 0 {
		return []byte("{}"), nil
	}
	doc, err := payload.CJSONToJSON([]byte(tuple[0].Str()), ns.tagsMatcher)
	if err != nil {
		return nil, err
	}
	if len(selectFilter) == 0 {
		return doc, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, err
	}
	filtered := make(map[string]interface{}, len(selectFilter))
	for _, f := range selectFilter {
		if v, ok := obj[f]; ok {
			filtered[f] = v
		}
	}
	return json.Marshal(filtered)
}

// markUpdated records the update time and resets the optimization state
// to partial; cancelCommitCnt is bumped only when this invalidates a
// finished optimization.
func (ns *Namespace) markUpdated() {
	ns.lastUpdate.Store(time.Now().UnixNano())
	if ns.optState.Swap(int32(optPartial)) == int32(optDone) {
		ns.cancelCommitCnt.Add(1)
	}
}

// Truncate removes every row, empties all indexes and resets dataHash.
func (ns *Namespace) Truncate() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.truncateLocked()
}

func (ns *Namespace) truncateLocked() error {
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	for rowID := range ns.items {
		if ns.items[rowID].IsFree() {
			continue
		}
		ns.stringsHolder.Hold(ns.items[rowID].RetiredStrings())
		if ns.storage != nil {
			key, err := ns.itemStorageKey(rowID)
			if err == nil {
				ns.storage.Remove(key)
			}
		}
	}
	defs := make([]indexes.Def, 0, len(ns.indexes))
	for _, idx := range ns.indexes {
		defs = append(defs, idx.Def())
	}
	ns.items = nil
	ns.free = nil
	ns.itemsCount = 0
	ns.dataHash = 0
	ns.itemsDataSize = 0
	oldPK := ns.pkIndex
	ns.indexes = nil
	ns.indexByName = map[string]int{}
	ns.pkIndex = -1
	for i, def := range defs {
		idx, err := ns.buildIndex(def)
		if err != nil {
			return err
		}
		ns.indexes = append(ns.indexes, idx)
		ns.indexByName[def.Name] = i
	}
	ns.pkIndex = oldPK
	if !ns.walSuppressed {
		ns.wal.Add(wal.Record{Type: wal.RecUpdateQuery, Value: []byte("TRUNCATE " + ns.name)})
	}
	ns.markUpdated()
	return nil
}

// EnumMeta lists the stored meta keys.
func (ns *Namespace) EnumMeta() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]string, 0, len(ns.meta))
	for k := range ns.meta {
		out = append(out, k)
	}
	return out
}

func (ns *Namespace) GetMeta(key string) (string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.meta[key]
	if !ok {
		return "", dberrors.NotFound("meta key %q not found", key)
	}
	return v, nil
}

func (ns *Namespace) PutMeta(key, value string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	ns.meta[key] = value
	ns.wal.Add(wal.Record{Type: wal.RecPutMeta, Key: key, Value: []byte(value)})
	if ns.storage != nil {
		rec, ok := ns.sysMeta[key]
		if !ok {
			rec = storage.NewSysRecord(ns.storage, storage.PrefixMeta+"."+key)
			ns.sysMeta[key] = rec
		}
		return rec.Save([]byte(value))
	}
	return nil
}

// SetSchema installs a JSON schema; items are validated against it on
// modify.
func (ns *Namespace) SetSchema(schemaJSON []byte) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return dberrors.Wrap(dberrors.KindParams, err, "compile namespace schema")
	}
	ns.schema = sch
	ns.schemaRaw = append([]byte(nil), schemaJSON...)
	ns.wal.Add(wal.Record{Type: wal.RecSetSchema, Value: ns.schemaRaw})
	if ns.storage != nil {
		if ns.sysSchema == nil {
			ns.sysSchema = storage.NewSysRecord(ns.storage, storage.PrefixSchema)
		}
		return ns.sysSchema.Save(ns.schemaRaw)
	}
	return nil
}

func (ns *Namespace) GetSchema() []byte {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return append([]byte(nil), ns.schemaRaw...)
}

// MemStats reports the per-index shape counters.
func (ns *Namespace) MemStats() []indexes.MemStat {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]indexes.MemStat, 0, len(ns.indexes))
	for _, idx := range ns.indexes {
		out = append(out, idx.MemStat())
	}
	return out
}

// itemStorageKey builds the storage key of a row from its PK values.
func (ns *Namespace) itemStorageKey(rowID int) ([]byte, error) {
	if ns.pkIndex < 0 {
		return nil, dberrors.Logic("namespace %q has no PK index", ns.name)
	}
	pkDef := ns.indexes[ns.pkIndex].Def()
	fi, ok := ns.payloadType.FieldByName(pkDef.Name)
	if !ok {
		return nil, dberrors.Logic("PK field %q missing from payload", pkDef.Name)
	}
	w := binser.NewWriter()
	w.Append([]byte(storage.PrefixItem))
	ns.items[rowID].SerializeFields(w, []int{fi})
	return w.Bytes(), nil
}

// checkCancel maps context state to the engine's cancel error.
func checkCancel(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if ctx.Err() != nil {
		return dberrors.FromContext(ctx)
	}
	return nil
}
