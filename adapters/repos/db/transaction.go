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
	"sync"

	"github.com/weaviate/kestrel/adapters/repos/db/wal"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// TransactionStep is one queued operation: an item mutation, a query
// update/delete, or a truncate.
type TransactionStep struct {
	Item     *Item
	Mode     ItemMode
	Query    *query.Query
	Truncate bool
}

// Transaction queues steps against one namespace and applies them on
// commit, either in place or on a namespace copy that is swapped in
// atomically.
type Transaction struct {
	db     *DB
	nsName string
	steps  []TransactionStep
	done   bool
	mu     sync.Mutex
}

func (tx *Transaction) add(step TransactionStep) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return dberrors.Logic("transaction already finished")
	}
	tx.steps = append(tx.steps, step)
	return nil
}

func (tx *Transaction) Insert(item *Item) error {
	return tx.add(TransactionStep{Item: item, Mode: ModeInsert})
}

func (tx *Transaction) Update(item *Item) error {
	return tx.add(TransactionStep{Item: item, Mode: ModeUpdate})
}

func (tx *Transaction) Upsert(item *Item) error {
	return tx.add(TransactionStep{Item: item, Mode: ModeUpsert})
}

func (tx *Transaction) Delete(item *Item) error {
	return tx.add(TransactionStep{Item: item, Mode: ModeDelete})
}

func (tx *Transaction) UpdateQuery(q *query.Query) error {
	return tx.add(TransactionStep{Query: q})
}

func (tx *Transaction) Truncate() error {
	return tx.add(TransactionStep{Truncate: true})
}

func (tx *Transaction) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.steps)
}

// Rollback discards the queued steps.
func (tx *Transaction) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	tx.steps = nil
}

// Commit applies the queued steps. Large transactions clone the
// namespace, replay onto the clone and swap it in; a cancellation during
// the clone path discards the clone and leaves the live namespace
// untouched.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return dberrors.Logic("transaction already finished")
	}
	tx.done = true
	steps := tx.steps
	tx.steps = nil
	tx.mu.Unlock()

	ns, err := tx.db.getNamespace(tx.nsName)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	if ns.shouldCopyOnCommit(len(steps)) {
		return tx.commitWithCopy(ctx, ns, steps)
	}
	return tx.commitInPlace(ctx, ns, steps)
}

// shouldCopyOnCommit implements the copy policy: very large transactions
// always copy; medium ones copy when the namespace is small enough that
// rebuilding beats locking it for the whole replay.
func (ns *Namespace) shouldCopyOnCommit(steps int) bool {
	if steps >= ns.cfg.TxSizeToAlwaysCopy {
		return true
	}
	return steps >= ns.cfg.StartCopyPolicyTxSize &&
		ns.ItemsCount() <= ns.cfg.CopyPolicyMultiplier*steps
}

func (tx *Transaction) commitInPlace(ctx context.Context, ns *Namespace, steps []TransactionStep) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.wal.Add(wal.Record{Type: wal.RecInitTransaction})
	for _, step := range steps {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		if err := ns.applyTxStepLocked(ctx, step, tx.db.resolver()); err != nil {
			return err
		}
	}
	ns.wal.Add(wal.Record{Type: wal.RecCommitTransaction})
	return nil
}

func (ns *Namespace) applyTxStepLocked(ctx context.Context, step TransactionStep, resolve NamespaceResolver) error {
	switch {
	case step.Truncate:
		return ns.truncateLocked()
	case step.Item != nil:
		return ns.modifyItemLocked(step.Item, step.Mode)
	case step.Query != nil:
		// query steps re-enter through the unlocked paths; run them on a
		// goroutine-local basis is not needed since we hold the lock:
		// evaluate directly
		res, err := func() (*QueryResults, error) {
			sel := *step.Query
			sel.UpdateFields = nil
			sc := &selectCtx{q: &sel, ftRanks: map[int]int{}}
			var err error
			sc.plan, err = ns.planNodes(ctx, sel.Entries, sc)
			if err != nil {
				return nil, err
			}
			matched, err := ns.execPlan(ctx, sc)
			if err != nil {
				return nil, err
			}
			qr := &QueryResults{ns: ns}
			qr.Rows = make([]ResultRow, len(matched))
			for i, id := range matched {
				qr.Rows[i] = ResultRow{RowID: id}
			}
			return qr, nil
		}()
		if err != nil {
			return err
		}
		if len(step.Query.UpdateFields) == 0 {
			for _, row := range res.Rows {
				if err := ns.deleteRowLocked(row.RowID); err != nil {
					return err
				}
			}
			return nil
		}
		for _, row := range res.Rows {
			doc, err := ns.rowJSONLocked(row.RowID)
			if err != nil {
				return err
			}
			updated, err := ns.applyUpdateEntries(doc, row.RowID, step.Query.UpdateFields)
			if err != nil {
				return err
			}
			if err := ns.modifyItemLocked(NewItem(updated), ModeUpsert); err != nil {
				return err
			}
		}
		return nil
	default:
		return dberrors.Logic("empty transaction step")
	}
}

// commitWithCopy builds a clone outside the namespace lock, replays the
// steps onto it and swaps the live pointer. The old namespace becomes
// readonly so stale handles fail loudly instead of mutating a dead copy.
func (tx *Transaction) commitWithCopy(ctx context.Context, ns *Namespace, steps []TransactionStep) error {
	var unlockStorage func()
	if ns.storage != nil {
		var err error
		unlockStorage, err = ns.storage.LockFully()
		if err != nil {
			return err
		}
		defer unlockStorage()
	}

	clone, err := ns.cloneForCommit(ctx)
	if err != nil {
		return err
	}
	clone.wal.Add(wal.Record{Type: wal.RecInitTransaction})
	clone.mu.Lock()
	for _, step := range steps {
		if err := checkCancel(ctx); err != nil {
			clone.mu.Unlock()
			ns.cancelCommitCnt.Add(1)
			return err
		}
		if err := clone.applyTxStepLocked(ctx, step, tx.db.resolver()); err != nil {
			clone.mu.Unlock()
			return err
		}
	}
	clone.mu.Unlock()
	clone.wal.Add(wal.Record{Type: wal.RecCommitTransaction})

	tx.db.replaceNamespace(ns, clone)
	ns.mu.Lock()
	ns.readonly = true
	ns.mu.Unlock()
	ns.metrics.CountTxCopy()
	if clone.storage != nil {
		return clone.storage.Flush()
	}
	return nil
}

// cloneForCommit copies the namespace under the shared lock: same
// definitions, all rows replayed, storage adapter shared.
func (ns *Namespace) cloneForCommit(ctx context.Context) (*Namespace, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	clone := NewNamespace(ns.name, ns.cfg, ns.logger, ns.metrics, 0)
	clone.wal = ns.wal // the journal survives the swap
	clone.tagsMatcher = ns.tagsMatcher.Clone()
	clone.meta = make(map[string]string, len(ns.meta))
	for k, v := range ns.meta {
		clone.meta[k] = v
	}
	clone.schemaRaw = append([]byte(nil), ns.schemaRaw...)
	clone.schema = ns.schema
	clone.storage = ns.storage
	clone.sysTags = ns.sysTags
	clone.sysIndexes = ns.sysIndexes
	clone.sysSchema = ns.sysSchema
	clone.sysMeta = ns.sysMeta

	clone.mu.Lock()
	defer clone.mu.Unlock()
	clone.walSuppressed = true
	clone.storageSuppressed = true
	defer func() {
		clone.walSuppressed = false
		clone.storageSuppressed = false
	}()
	for _, idx := range ns.indexes {
		if err := clone.addIndexLocked(idx.Def(), false); err != nil {
			return nil, err
		}
	}
	for rowID := range ns.items {
		if ns.items[rowID].IsFree() {
			continue
		}
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		doc, err := ns.rowJSONLocked(rowID)
		if err != nil {
			return nil, err
		}
		item := NewItem(doc)
		if tuple := ns.items[rowID].Get(payload.TupleField); len(tuple) > 0 {
			item.cjson = []byte(tuple[0].Str())
		}
		if err := clone.modifyItemLocked(item, ModeUpsert); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
