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

// Package cyclemanager runs the periodic maintenance work of a namespace:
// index optimization, TTL eviction, strings-holder draining and storage
// flushing. Cycles observe a break func so a stop request interrupts long
// work at safe points.
package cyclemanager

import (
	"context"
	"sync"
	"time"
)

type (
	// ShouldBreakFunc reports whether the cycle should end early because a
	// stop was requested.
	ShouldBreakFunc func() bool
	// CycleFunc returns true when actual work was done, which shortens the
	// next tick interval.
	CycleFunc func(shouldBreak ShouldBreakFunc) bool
)

type UnregisterFunc func()

// CycleManager drives registered callbacks on a ticker until stopped.
type CycleManager struct {
	mu        sync.Mutex
	callbacks []*registered
	interval  time.Duration
	busyRatio int
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

type registered struct {
	fn      CycleFunc
	removed bool
}

// New creates a manager ticking every interval; after a cycle that did
// work, the next tick fires at interval/busyRatio (min 1).
func New(interval time.Duration, busyRatio int) *CycleManager {
	if busyRatio < 1 {
		busyRatio = 1
	}
	return &CycleManager{interval: interval, busyRatio: busyRatio}
}

func (c *CycleManager) Register(fn CycleFunc) UnregisterFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &registered{fn: fn}
	c.callbacks = append(c.callbacks, r)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		r.removed = true
	}
}

func (c *CycleManager) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CycleManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go c.run(c.stop, c.done)
}

func (c *CycleManager) run(stop, done chan struct{}) {
	defer close(done)
	interval := c.interval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		worked := c.executeAll(stop)
		if worked {
			interval = c.interval / time.Duration(c.busyRatio)
		} else {
			interval = c.interval
		}
		timer.Reset(interval)
	}
}

func (c *CycleManager) executeAll(stop chan struct{}) bool {
	shouldBreak := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}
	c.mu.Lock()
	cbs := make([]*registered, 0, len(c.callbacks))
	kept := c.callbacks[:0]
	for _, r := range c.callbacks {
		if r.removed {
			continue
		}
		kept = append(kept, r)
		cbs = append(cbs, r)
	}
	c.callbacks = kept
	c.mu.Unlock()

	worked := false
	for _, r := range cbs {
		if shouldBreak() {
			break
		}
		if r.fn(shouldBreak) {
			worked = true
		}
	}
	return worked
}

// StopAndWait requests a stop and blocks until the current cycle finished
// or ctx expired.
func (c *CycleManager) StopAndWait(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
