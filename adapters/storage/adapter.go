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
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSoftFlushLimit is the staged-bytes level that triggers a
// background flush.
const DefaultSoftFlushLimit = 4 << 20

// Adapter stages writes in memory and flushes them to the engine in
// batches from a background routine. Reads see staged data first, so the
// adapter is transparent to the namespace.
type Adapter struct {
	mu        sync.Mutex
	engine    Engine
	staged    map[string][]byte // nil value = pending delete
	stagedLen int
	softLimit int
	flushCh   chan struct{}
	closed    chan struct{}
	wg        sync.WaitGroup
	logger    logrus.FieldLogger

	// fullLock serializes flushes against a namespace clone snapshot
	fullLock sync.RWMutex
}

func NewAdapter(engine Engine, softLimit int, logger logrus.FieldLogger) *Adapter {
	if softLimit <= 0 {
		softLimit = DefaultSoftFlushLimit
	}
	a := &Adapter{
		engine:    engine,
		staged:    map[string][]byte{},
		softLimit: softLimit,
		flushCh:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
		logger:    logger.WithField("action", "storage_flush"),
	}
	a.wg.Add(1)
	go a.flushLoop()
	return a
}

func (a *Adapter) flushLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.closed:
			return
		case <-a.flushCh:
			if err := a.Flush(); err != nil {
				a.logger.WithError(err).Error("background flush failed")
			}
		}
	}
}

func (a *Adapter) Write(key, value []byte) {
	a.mu.Lock()
	a.staged[string(key)] = append([]byte(nil), value...)
	a.stagedLen += len(key) + len(value)
	over := a.stagedLen >= a.softLimit
	a.mu.Unlock()
	if over {
		a.kickFlush()
	}
}

func (a *Adapter) Remove(key []byte) {
	a.mu.Lock()
	a.staged[string(key)] = nil
	a.stagedLen += len(key)
	over := a.stagedLen >= a.softLimit
	a.mu.Unlock()
	if over {
		a.kickFlush()
	}
}

func (a *Adapter) kickFlush() {
	select {
	case a.flushCh <- struct{}{}:
	default:
	}
}

func (a *Adapter) Read(key []byte) ([]byte, error) {
	a.mu.Lock()
	if v, ok := a.staged[string(key)]; ok {
		a.mu.Unlock()
		if v == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), v...), nil
	}
	a.mu.Unlock()
	return a.engine.Read(key)
}

// Cursor flushes staged writes first so iteration sees a consistent view.
func (a *Adapter) Cursor(prefix []byte) (Cursor, error) {
	if err := a.Flush(); err != nil {
		return nil, err
	}
	return a.engine.Cursor(prefix)
}

// Flush pushes all staged writes to the engine and syncs it.
func (a *Adapter) Flush() error {
	a.fullLock.RLock()
	defer a.fullLock.RUnlock()

	a.mu.Lock()
	if len(a.staged) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := a.staged
	a.staged = map[string][]byte{}
	a.stagedLen = 0
	a.mu.Unlock()

	var err error
	if be, ok := a.engine.(*BoltEngine); ok {
		err = be.WriteBatch(batch)
	} else {
		for k, v := range batch {
			if v == nil {
				err = a.engine.Remove([]byte(k))
			} else {
				err = a.engine.Write([]byte(k), v)
			}
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		// re-stage so nothing is lost; the next flush retries
		a.mu.Lock()
		for k, v := range batch {
			if _, exists := a.staged[k]; !exists {
				a.staged[k] = v
				a.stagedLen += len(k) + len(v)
			}
		}
		a.mu.Unlock()
		return errors.Wrap(err, "flush staged writes")
	}
	return a.engine.Flush()
}

// LockFully flushes and then blocks further flushes to the engine until
// the returned func is called; Write and Remove keep staging meanwhile.
// Used to snapshot storage during a namespace copy.
func (a *Adapter) LockFully() (func(), error) {
	if err := a.Flush(); err != nil {
		return nil, err
	}
	a.fullLock.Lock()
	return func() { a.fullLock.Unlock() }, nil
}

func (a *Adapter) Close() error {
	close(a.closed)
	a.wg.Wait()
	if err := a.Flush(); err != nil {
		return err
	}
	return a.engine.Close()
}
