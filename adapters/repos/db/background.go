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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// maintenanceCycle is the per-namespace background step: index
// optimization once the namespace quiesced, TTL eviction, and draining
// retired strings. Returns true when work was done.
func (ns *Namespace) maintenanceCycle(shouldBreak func() bool) bool {
	worked := false
	if ns.optimizeIndexes(shouldBreak) {
		worked = true
	}
	if ns.evictExpired() {
		worked = true
	}
	if ns.stringsHolder.Drain() > 0 {
		worked = true
	}
	if ns.storage != nil {
		if err := ns.storage.Flush(); err != nil {
			ns.logger.WithError(err).Error("background storage flush")
		} else {
			ns.metrics.CountStorageFlush()
		}
	}
	return worked
}

// optimizeIndexes builds sort orders for ordered indexes once the
// namespace has been idle for the configured timeout. The run holds the
// namespace write lock, so updates wait until it ends; a break request or
// a bump of cancelCommitCnt stops it at the next check.
func (ns *Namespace) optimizeIndexes(shouldBreak func() bool) bool {
	if optimizationState(ns.optState.Load()) == optDone {
		return false
	}
	last := ns.lastUpdate.Load()
	if last == 0 || time.Since(time.Unix(0, last)) < ns.cfg.OptimizationTimeout {
		return false
	}
	cancelGen := ns.cancelCommitCnt.Load()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.readonly {
		return false
	}

	for _, idx := range ns.indexes {
		idx.Commit()
	}

	// ordered indexes get dense sort ids and materialized orders, built
	// by a bounded worker pool
	var ordered []indexes.Index
	for _, idx := range ns.indexes {
		if idx.Def().Type.Ordered() && !idx.Opts().Array {
			if idx.SortID() < 0 {
				idx.SetSortID(ns.nextSortID)
				ns.nextSortID++
			}
			ordered = append(ordered, idx)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	workers := ns.cfg.OptimizationSortWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, idx := range ordered {
		idx := idx
		g.Go(func() error {
			if shouldBreak() || ns.cancelCommitCnt.Load() != cancelGen {
				cancel()
				return nil
			}
			idx.MakeSortOrders(gctx)
			idx.UpdateSortedIDs(gctx)
			return nil
		})
	}
	_ = g.Wait()

	if shouldBreak() || ns.cancelCommitCnt.Load() != cancelGen {
		// the build was interrupted; stay partial and retry next cycle
		ns.optState.Store(int32(optPartial))
		return true
	}
	ns.optState.Store(int32(optDone))
	return true
}

// evictExpired deletes rows whose TTL index value fell behind
// now-expireAfter, via an internal delete query.
func (ns *Namespace) evictExpired() bool {
	var ttlDefs []indexes.Def
	ns.mu.RLock()
	for _, idx := range ns.indexes {
		def := idx.Def()
		if def.Type == indexes.TypeTTL && def.Opts.ExpireAfter > 0 {
			ttlDefs = append(ttlDefs, def)
		}
	}
	ns.mu.RUnlock()
	worked := false
	for _, def := range ttlDefs {
		threshold := time.Now().Unix() - def.Opts.ExpireAfter
		q := query.New(ns.name).Where(def.Name, query.CondLt, payload.Int64Value(threshold))
		res, err := ns.DeleteQuery(context.Background(), q, func(string) (*Namespace, error) {
			return ns, nil
		})
		if err != nil {
			ns.logger.WithError(err).WithField("index", def.Name).Error("ttl eviction")
			continue
		}
		if res.Count() > 0 {
			worked = true
			ns.logger.WithField("index", def.Name).
				WithField("evicted", res.Count()).
				Debug("ttl eviction")
		}
	}
	return worked
}
