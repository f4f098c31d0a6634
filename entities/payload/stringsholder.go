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

package payload

import (
	"sync"
	"sync/atomic"
)

// StringsHolder keeps strings displaced from live rows alive until no
// reader that may still observe them is active. Readers enter an epoch
// before iterating rows and leave it when done; retired strings are parked
// in the epoch current at retirement time and dropped once every older
// epoch has drained. The background maintenance routine calls Drain.
type StringsHolder struct {
	mu      sync.Mutex
	epochs  []*holderEpoch
	current *holderEpoch
}

type holderEpoch struct {
	readers int64
	retired []string
	memSize int64
}

func NewStringsHolder() *StringsHolder {
	cur := &holderEpoch{}
	return &StringsHolder{current: cur, epochs: []*holderEpoch{cur}}
}

// Enter registers a reader and returns the handle it must Leave with.
func (h *StringsHolder) Enter() *holderEpoch {
	h.mu.Lock()
	e := h.current
	atomic.AddInt64(&e.readers, 1)
	h.mu.Unlock()
	return e
}

func (h *StringsHolder) Leave(e *holderEpoch) {
	atomic.AddInt64(&e.readers, -1)
}

// Hold parks strings retired by a delete or overwrite.
func (h *StringsHolder) Hold(strs []string) {
	if len(strs) == 0 {
		return
	}
	h.mu.Lock()
	h.current.retired = append(h.current.retired, strs...)
	for _, s := range strs {
		h.current.memSize += int64(len(s))
	}
	h.mu.Unlock()
}

// Drain seals the current epoch and frees every epoch that, like all epochs
// before it, has no readers left. Returns the bytes released.
func (h *StringsHolder) Drain() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.current.retired) > 0 {
		next := &holderEpoch{}
		h.epochs = append(h.epochs, next)
		h.current = next
	}
	var released int64
	blocked := false
	kept := h.epochs[:0]
	for _, e := range h.epochs {
		if atomic.LoadInt64(&e.readers) != 0 {
			blocked = true
		}
		if e != h.current && !blocked {
			released += e.memSize
			continue
		}
		kept = append(kept, e)
	}
	h.epochs = kept
	return released
}

// MemSize reports the bytes currently parked.
func (h *StringsHolder) MemSize() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total int64
	for _, e := range h.epochs {
		total += e.memSize
	}
	return total
}
