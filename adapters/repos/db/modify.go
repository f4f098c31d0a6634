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
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/xeipuuv/gojsonschema"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/adapters/repos/db/wal"
	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// Insert adds the item unless its PK already exists (then it is a no-op).
func (ns *Namespace) Insert(ctx context.Context, item *Item) error {
	return ns.ModifyItem(ctx, item, ModeInsert)
}

// Update replaces the item when its PK exists (no-op otherwise).
func (ns *Namespace) Update(ctx context.Context, item *Item) error {
	return ns.ModifyItem(ctx, item, ModeUpdate)
}

// Upsert inserts or replaces by PK.
func (ns *Namespace) Upsert(ctx context.Context, item *Item) error {
	return ns.ModifyItem(ctx, item, ModeUpsert)
}

// Delete removes the row with the item's PK.
func (ns *Namespace) Delete(ctx context.Context, item *Item) error {
	return ns.ModifyItem(ctx, item, ModeDelete)
}

// ModifyItem runs the full item path: precepts, schema validation, PK
// resolution, per-index maintenance, dataHash, WAL and storage.
func (ns *Namespace) ModifyItem(ctx context.Context, item *Item, mode ItemMode) error {
	if err := checkCancel(ctx); err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.modifyItemLocked(item, mode)
}

func (ns *Namespace) modifyItemLocked(item *Item, mode ItemMode) error {
	if ns.readonly {
		return dberrors.Logic("namespace %q is readonly", ns.name)
	}
	if ns.pkIndex < 0 {
		return dberrors.Logic("namespace %q needs a PK index before items", ns.name)
	}
	if len(item.precepts) > 0 && mode != ModeDelete {
		if err := ns.applyPrecepts(item); err != nil {
			return err
		}
	}
	if ns.schema != nil && mode != ModeDelete {
		res, err := ns.schema.Validate(gojsonschema.NewBytesLoader(item.json))
		if err != nil {
			return dberrors.Wrap(dberrors.KindParams, err, "validate item")
		}
		if !res.Valid() {
			return dberrors.New(dberrors.KindNotValid, "item violates schema: %s", res.Errors()[0].String())
		}
	}

	// the tuple stores the full document in compact form; encoding also
	// merges new json names into the tags matcher. Storage replays carry
	// their original cjson and must keep it byte-identical so the data
	// hash survives a reload.
	cj := item.cjson
	if cj == nil {
		var err error
		cj, err = payload.JSONToCJSON(item.json, ns.tagsMatcher)
		if err != nil {
			return err
		}
		item.cjson = cj
	}

	pkDef := ns.indexes[ns.pkIndex].Def()
	fi, ok := ns.payloadType.FieldByName(pkDef.Name)
	if !ok {
		return dberrors.Logic("PK field %q missing from payload", pkDef.Name)
	}
	pkVals, err := item.fieldValues(ns.payloadType.Field(fi))
	if err != nil {
		return err
	}
	if len(pkVals) != 1 {
		return dberrors.Params("item misses PK field %q", pkDef.Name)
	}
	existing, exists := ns.lookupPK(pkVals[0])

	switch mode {
	case ModeInsert:
		if exists {
			item.id = existing
			return nil
		}
	case ModeUpdate:
		if !exists {
			return nil
		}
	case ModeDelete:
		if !exists {
			return dberrors.NotFound("item with PK %s not found", pkVals[0])
		}
		return ns.deleteRowLocked(existing)
	}

	// build the new payload value
	nv := payload.NewValue(ns.payloadType)
	if err := nv.Set(payload.TupleField, payload.Variants{payload.String(string(cj))}); err != nil {
		return err
	}
	for fidx := 1; fidx < ns.payloadType.NumFields(); fidx++ {
		f := ns.payloadType.Field(fidx)
		vals, err := item.fieldValues(f)
		if err != nil {
			return err
		}
		if err := nv.Set(fidx, vals); err != nil {
			return err
		}
	}

	var rowID int
	var old payload.Value
	if exists {
		rowID = existing
		old = ns.items[rowID]
	} else {
		rowID = ns.allocRow()
	}

	// index maintenance: delete old entries first, composite indexes key
	// off the payload value itself
	if exists {
		if err := ns.removeFromIndexes(old, rowID); err != nil {
			return err
		}
		ns.dataHash ^= old.Hash()
		ns.itemsDataSize -= tupleSize(old)
		ns.stringsHolder.Hold(old.RetiredStrings())
	}
	ns.items[rowID] = nv
	if err := ns.insertIntoIndexes(nv, rowID); err != nil {
		return err
	}
	ns.dataHash ^= nv.Hash()
	ns.itemsDataSize += int64(len(cj))
	if !exists {
		ns.itemsCount++
	}

	var lsn wal.LSN
	if !ns.walSuppressed {
		lsn = ns.wal.Add(wal.Record{
			Type:               wal.RecItemModify,
			ItemMode:           int(mode),
			CJSON:              cj,
			TagsMatcherVersion: ns.tagsMatcher.Version(),
		})
	} else {
		// statement-level batches carry one WAL record; rows inherit the
		// journal position current at write time
		lsn = ns.wal.LastLSN()
	}
	nv.SetLSN(lsn.Counter)

	if ns.storage != nil && !ns.storageSuppressed {
		key, err := ns.itemStorageKey(rowID)
		if err != nil {
			return err
		}
		w := binser.NewWriter()
		w.PutUInt64(uint64(lsn.Counter))
		w.Append(cj)
		ns.storage.Write(key, w.Bytes())
		ns.persistTagsIfUpdated()
	}
	ns.markUpdated()
	ns.metrics.CountModify(ns.name, mode.String())
	item.id = rowID
	return nil
}

func (ns *Namespace) deleteRowLocked(rowID int) error {
	old := ns.items[rowID]
	if err := ns.removeFromIndexes(old, rowID); err != nil {
		return err
	}
	if ns.storage != nil && !ns.storageSuppressed {
		if key, err := ns.itemStorageKey(rowID); err == nil {
			ns.storage.Remove(key)
		}
	}
	ns.dataHash ^= old.Hash()
	ns.itemsDataSize -= tupleSize(old)
	ns.stringsHolder.Hold(old.RetiredStrings())
	ns.items[rowID] = payload.Value{}
	ns.free = append(ns.free, rowID)
	ns.itemsCount--
	if !ns.walSuppressed {
		ns.wal.Add(wal.Record{Type: wal.RecItemModify, ItemMode: int(ModeDelete)})
	}
	ns.markUpdated()
	ns.metrics.CountModify(ns.name, ModeDelete.String())
	return nil
}

func tupleSize(pl payload.Value) int64 {
	tuple := pl.Get(payload.TupleField)
	if len(tuple) == 0 {
		return 0
	}
	return int64(len(tuple[0].Str()))
}

func (ns *Namespace) allocRow() int {
	if n := len(ns.free); n > 0 {
		rowID := ns.free[n-1]
		ns.free = ns.free[:n-1]
		return rowID
	}
	ns.items = append(ns.items, payload.Value{})
	return len(ns.items) - 1
}

func (ns *Namespace) insertIntoIndexes(pl payload.Value, rowID int) error {
	for _, idx := range ns.indexes {
		vals, err := ns.indexValuesFor(idx, pl, rowID)
		if err != nil {
			return err
		}
		if err := idx.Upsert(vals, pl, rowID); err != nil {
			return err
		}
	}
	return nil
}

func (ns *Namespace) removeFromIndexes(pl payload.Value, rowID int) error {
	for _, idx := range ns.indexes {
		vals, err := ns.indexValuesFor(idx, pl, rowID)
		if err != nil {
			return err
		}
		if err := idx.Delete(vals, pl, rowID); err != nil {
			return err
		}
	}
	return nil
}

// indexValuesFor mirrors indexValues but reads from an explicit payload,
// needed while the row slot still holds the previous value.
func (ns *Namespace) indexValuesFor(idx indexes.Index, pl payload.Value, rowID int) (payload.Variants, error) {
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
			if fi, ok := ns.payloadType.FieldByName(fname); ok {
				vals := pl.Get(fi)
				if len(vals) > 0 {
					out[i] = vals[0]
					continue
				}
			}
			out[i] = payload.Null()
		}
		return out, nil
	case def.Opts.Sparse:
		tuple := pl.Get(payload.TupleField)
		if len(tuple) == 0 {
			return nil, nil
		}
		cj := []byte(tuple[0].Str())
		for _, path := range def.JSONPaths {
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
	default:
		fi, ok := ns.payloadType.FieldByName(def.Name)
		if !ok {
			return nil, dberrors.NotFound("payload field %q missing", def.Name)
		}
		return pl.Get(fi), nil
	}
}

// lookupPK resolves a PK value to its row.
func (ns *Namespace) lookupPK(pk payload.Variant) (int, bool) {
	res, err := ns.indexes[ns.pkIndex].SelectKey(context.Background(),
		payload.Variants{pk}, query.CondEq, -1,
		indexes.SelectOpts{DisableCache: true})
	if err != nil {
		return -1, false
	}
	ids := res.MergeIDs()
	if len(ids) == 0 {
		return -1, false
	}
	return ids[0], true
}

// applyPrecepts fills server-assigned fields: "field=serial()" bumps a
// per-field counter, "field=now()" stamps the current time.
func (ns *Namespace) applyPrecepts(item *Item) error {
	for _, p := range item.precepts {
		eq := strings.IndexByte(p, '=')
		if eq <= 0 {
			return dberrors.Params("bad precept %q", p)
		}
		field := strings.TrimSpace(p[:eq])
		expr := strings.TrimSpace(p[eq+1:])
		var rendered []byte
		switch {
		case strings.EqualFold(expr, "serial()"):
			cnt, ok := ns.serialCounters[field]
			if !ok {
				start := ns.maxIntField(field)
				cnt = &start
				ns.serialCounters[field] = cnt
			}
			*cnt++
			rendered = []byte(strconv.FormatInt(*cnt, 10))
		case strings.EqualFold(expr, "now()"):
			rendered = []byte(strconv.FormatInt(time.Now().Unix(), 10))
		case strings.EqualFold(expr, "now(msec)"):
			rendered = []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))
		default:
			return dberrors.Params("unknown precept expression %q", expr)
		}
		out, err := jsonparser.Set(item.json, rendered, splitJSONPath(field)...)
		if err != nil {
			return dberrors.Wrap(dberrors.KindParams, err, "apply precept "+p)
		}
		item.json = out
	}
	return nil
}

// maxIntField scans for the current maximum of a serial field so the
// counter continues after a reload.
func (ns *Namespace) maxIntField(field string) int64 {
	var max int64
	for rowID := range ns.items {
		if ns.items[rowID].IsFree() {
			continue
		}
		for _, v := range ns.fieldValuesByName(rowID, field) {
			if f, ok := v.AsFloat(); ok && int64(f) > max {
				max = int64(f)
			}
		}
	}
	return max
}
