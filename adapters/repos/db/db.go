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
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/kestrel/adapters/repos/db/sqlparser"
	"github.com/weaviate/kestrel/adapters/repos/db/wal"
	"github.com/weaviate/kestrel/adapters/storage"
	"github.com/weaviate/kestrel/entities/cyclemanager"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/query"
	"github.com/weaviate/kestrel/usecases/monitoring"
)

// DB owns the namespaces of one database instance and runs their shared
// background maintenance.
type DB struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
	cfg        Config
	logger     logrus.FieldLogger
	metrics    *monitoring.Metrics
	cycle      *cyclemanager.CycleManager
	observers  []wal.Observer
}

const maintenanceInterval = 200 * time.Millisecond

// New creates a database instance. A non-empty cfg.Path enables
// persistent storage, one file per namespace.
func New(cfg Config, logger logrus.FieldLogger, metrics *monitoring.Metrics) *DB {
	if cfg.Namespace.OptimizationTimeout == 0 {
		cfg.Namespace = DefaultNamespaceConfig()
	}
	d := &DB{
		namespaces: map[string]*Namespace{},
		cfg:        cfg,
		logger:     logger.WithField("component", "kestrel"),
		metrics:    metrics,
		cycle:      cyclemanager.New(maintenanceInterval, 4),
	}
	d.cycle.Start()
	return d
}

// AddWALObserver registers an observer attached to every namespace,
// current and future.
func (d *DB) AddWALObserver(o wal.Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
	for _, ns := range d.namespaces {
		ns.WAL().AddObserver(o)
	}
}

// OpenNamespace creates or opens a namespace. With storage enabled, the
// on-disk state is scanned, items reconstructed and indexes rebuilt.
func (d *DB) OpenNamespace(name string) (*Namespace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ns, ok := d.namespaces[name]; ok {
		return ns, nil
	}
	ns := NewNamespace(name, d.cfg.Namespace, d.logger, d.metrics, d.cfg.ServerID)
	if d.cfg.Path != "" {
		engine := storage.NewBoltEngine()
		if err := engine.Open(filepath.Join(d.cfg.Path, name+".db")); err != nil {
			return nil, err
		}
		adapter := storage.NewAdapter(engine, d.cfg.Namespace.StorageSoftFlushLimit, d.logger)
		if err := ns.BindStorage(adapter); err != nil {
			adapter.Close()
			return nil, err
		}
	}
	for _, o := range d.observers {
		ns.WAL().AddObserver(o)
	}
	d.namespaces[name] = ns
	d.cycle.Register(func(shouldBreak cyclemanager.ShouldBreakFunc) bool {
		cur, err := d.getNamespace(name)
		if err != nil {
			return false
		}
		return cur.maintenanceCycle(shouldBreak)
	})
	return ns, nil
}

// DropNamespace closes and forgets a namespace.
func (d *DB) DropNamespace(name string) error {
	d.mu.Lock()
	ns, ok := d.namespaces[name]
	delete(d.namespaces, name)
	d.mu.Unlock()
	if !ok {
		return dberrors.NotFound("namespace %q not found", name)
	}
	return ns.CloseStorage()
}

func (d *DB) getNamespace(name string) (*Namespace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ns, ok := d.namespaces[name]
	if !ok {
		return nil, dberrors.NotFound("namespace %q not found", name)
	}
	return ns, nil
}

// Namespace returns an open namespace handle.
func (d *DB) Namespace(name string) (*Namespace, error) {
	return d.getNamespace(name)
}

// resolver adapts the namespace map for joins and merges.
func (d *DB) resolver() NamespaceResolver {
	return func(name string) (*Namespace, error) {
		return d.getNamespace(name)
	}
}

// replaceNamespace swaps a committed transaction clone in for the old
// namespace.
func (d *DB) replaceNamespace(old, clone *Namespace) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.namespaces[old.name]; ok && cur == old {
		d.namespaces[old.name] = clone
	}
}

// BeginTx starts a transaction against one namespace.
func (d *DB) BeginTx(namespace string) (*Transaction, error) {
	if _, err := d.getNamespace(namespace); err != nil {
		return nil, err
	}
	return &Transaction{db: d, nsName: namespace}, nil
}

// Select executes a canonical query.
func (d *DB) Select(ctx context.Context, q *query.Query) (*QueryResults, error) {
	ns, err := d.getNamespace(q.Namespace)
	if err != nil {
		return nil, err
	}
	return ns.Select(ctx, q, d.resolver())
}

// ExecSQL parses and executes one SQL statement.
func (d *DB) ExecSQL(ctx context.Context, sql string) (*QueryResults, error) {
	q, verb, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, err
	}
	ns, err := d.getNamespace(q.Namespace)
	if err != nil {
		return nil, err
	}
	switch verb {
	case sqlparser.VerbSelect:
		return ns.Select(ctx, q, d.resolver())
	case sqlparser.VerbUpdate:
		return ns.UpdateQuery(ctx, q, d.resolver())
	case sqlparser.VerbDelete:
		return ns.DeleteQuery(ctx, q, d.resolver())
	case sqlparser.VerbTruncate:
		return &QueryResults{ns: ns}, ns.Truncate()
	default:
		return nil, dberrors.ParseSQL("unsupported statement")
	}
}

// Close stops maintenance and flushes every namespace.
func (d *DB) Close(ctx context.Context) error {
	if err := d.cycle.StopAndWait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for name, ns := range d.namespaces {
		if err := ns.CloseStorage(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.namespaces, name)
	}
	return firstErr
}
