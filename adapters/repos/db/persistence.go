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
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/adapters/storage"
	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
)

// BindStorage attaches a storage adapter and reconstructs the namespace
// from it: tags, index definitions, schema, meta, then every item record.
func (ns *Namespace) BindStorage(adapter *storage.Adapter) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.storage = adapter
	ns.sysTags = storage.NewSysRecord(adapter, storage.PrefixTags)
	ns.sysIndexes = storage.NewSysRecord(adapter, storage.PrefixIndexes)
	ns.sysSchema = storage.NewSysRecord(adapter, storage.PrefixSchema)

	if err := ns.loadTags(); err != nil {
		return err
	}
	if err := ns.loadIndexes(); err != nil {
		return err
	}
	if err := ns.loadSchema(); err != nil {
		return err
	}
	if err := ns.loadMeta(); err != nil {
		return err
	}
	if err := ns.loadItems(); err != nil {
		return err
	}
	ns.logger.WithField("items", ns.itemsCount).
		WithField("indexes", len(ns.indexes)).
		Info("namespace loaded from storage")
	return nil
}

func (ns *Namespace) loadTags() error {
	body, err := ns.sysTags.Load()
	if err != nil || body == nil {
		return err
	}
	tm, err := payload.TagsMatcherFromBytes(binser.NewReader(body))
	if err != nil {
		return err
	}
	ns.tagsMatcher = tm
	return nil
}

func (ns *Namespace) loadIndexes() error {
	body, err := ns.sysIndexes.Load()
	if err != nil || body == nil {
		return err
	}
	body, err = storage.UnwrapIndexesBody(body)
	if err != nil {
		return err
	}
	r := binser.NewReader(body)
	n := r.VarUInt()
	for i := uint64(0); i < n; i++ {
		def, err := indexDefFromBytes(r)
		if err != nil {
			return err
		}
		if err := ns.addIndexLocked(*def, false); err != nil {
			return err
		}
	}
	return r.Err()
}

func (ns *Namespace) loadSchema() error {
	body, err := ns.sysSchema.Load()
	if err != nil || body == nil {
		return err
	}
	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return dberrors.Wrap(dberrors.KindParams, err, "compile stored schema")
	}
	ns.schema = sch
	ns.schemaRaw = body
	return nil
}

// loadMeta enumerates the persisted meta records; keys embed the meta
// name between the prefix and the slot suffix.
func (ns *Namespace) loadMeta() error {
	cur, err := ns.storage.Cursor([]byte(storage.PrefixMeta + "."))
	if err != nil {
		return err
	}
	defer cur.Close()
	seen := map[string]struct{}{}
	for cur.Next() {
		key := string(cur.Key())
		rest := strings.TrimPrefix(key, storage.PrefixMeta+".")
		dot := strings.LastIndexByte(rest, '.')
		if dot <= 0 {
			continue
		}
		name := rest[:dot]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
	}
	for name := range seen {
		rec := storage.NewSysRecord(ns.storage, storage.PrefixMeta+"."+name)
		body, err := rec.Load()
		if err != nil {
			return err
		}
		if body != nil {
			ns.meta[name] = string(body)
			ns.sysMeta[name] = rec
		}
	}
	return nil
}

// loadItems replays every stored item record through the normal modify
// path, with WAL and storage writes suppressed.
func (ns *Namespace) loadItems() error {
	cur, err := ns.storage.Cursor([]byte(storage.PrefixItem))
	if err != nil {
		return err
	}
	defer cur.Close()
	ns.walSuppressed = true
	ns.storageSuppressed = true
	defer func() {
		ns.walSuppressed = false
		ns.storageSuppressed = false
	}()
	var maxLSN int64
	for cur.Next() {
		val := cur.Value()
		r := binser.NewReader(val)
		lsn := int64(r.UInt64())
		if err := r.Err(); err != nil {
			return err
		}
		cj := val[r.Pos():]
		doc, err := payload.CJSONToJSON(cj, ns.tagsMatcher)
		if err != nil {
			return errors.Wrap(err, "decode stored item")
		}
		item := NewItem(doc)
		item.cjson = append([]byte(nil), cj...)
		if err := ns.modifyItemLocked(item, ModeUpsert); err != nil {
			return err
		}
		if item.id >= 0 && item.id < len(ns.items) {
			ns.items[item.id].SetLSN(lsn)
		}
		if lsn > maxLSN {
			maxLSN = lsn
		}
	}
	ns.wal.SetCounter(maxLSN)
	return nil
}

// persistIndexes saves the index definitions under the rolling indexes
// record, wrapped with the storage magic.
func (ns *Namespace) persistIndexes() {
	if ns.storage == nil || ns.storageSuppressed {
		return
	}
	w := binser.NewWriter()
	w.PutVarUInt(uint64(len(ns.indexes)))
	for _, idx := range ns.indexes {
		serializeIndexDef(w, idx.Def())
	}
	if err := ns.sysIndexes.Save(storage.WrapIndexesBody(w.Bytes())); err != nil {
		ns.logger.WithError(err).Error("persist indexes record")
	}
}

func (ns *Namespace) persistTagsIfUpdated() {
	if ns.storage == nil || ns.storageSuppressed || !ns.tagsMatcher.IsUpdated() {
		return
	}
	w := binser.NewWriter()
	ns.tagsMatcher.Serialize(w)
	if err := ns.sysTags.Save(w.Bytes()); err != nil {
		ns.logger.WithError(err).Error("persist tags record")
		return
	}
	ns.tagsMatcher.ResetUpdated()
}

// CloseStorage flushes and detaches the adapter.
func (ns *Namespace) CloseStorage() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.storage == nil {
		return nil
	}
	err := ns.storage.Close()
	ns.storage = nil
	return err
}

func serializeIndexDef(w *binser.Writer, def indexes.Def) {
	w.PutVString(def.Name)
	w.PutUInt8(uint8(def.Type))
	w.PutUInt8(uint8(def.KeyKind))
	w.PutBool(def.Opts.PK)
	w.PutBool(def.Opts.Array)
	w.PutBool(def.Opts.Dense)
	w.PutBool(def.Opts.Sparse)
	w.PutUInt8(uint8(def.Opts.Collate.Mode))
	w.PutVString(def.Opts.Collate.SortOrderTable)
	w.PutVarInt(def.Opts.ExpireAfter)
	w.PutVarUInt(uint64(len(def.JSONPaths)))
	for _, p := range def.JSONPaths {
		w.PutVString(p)
	}
	w.PutVarUInt(uint64(len(def.Fields)))
	for _, f := range def.Fields {
		w.PutVString(f)
	}
}

func indexDefFromBytes(r *binser.Reader) (*indexes.Def, error) {
	def := &indexes.Def{}
	def.Name = r.VString()
	def.Type = indexes.Type(r.UInt8())
	def.KeyKind = payload.Kind(r.UInt8())
	def.Opts.PK = r.Bool()
	def.Opts.Array = r.Bool()
	def.Opts.Dense = r.Bool()
	def.Opts.Sparse = r.Bool()
	def.Opts.Collate.Mode = payload.CollateMode(r.UInt8())
	def.Opts.Collate.SortOrderTable = r.VString()
	def.Opts.ExpireAfter = r.VarInt()
	np := r.VarUInt()
	for i := uint64(0); i < np; i++ {
		def.JSONPaths = append(def.JSONPaths, r.VString())
	}
	nf := r.VarUInt()
	for i := uint64(0); i < nf; i++ {
		def.Fields = append(def.Fields, r.VString())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return def, nil
}
