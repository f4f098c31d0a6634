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

// Package wal keeps the typed operation journal of a namespace: a ring of
// LSN-tagged records handed to observers in order. Replication transports
// consume it; the engine only appends.
package wal

import (
	"sync"

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

type RecordType uint8

const (
	RecEmpty RecordType = iota
	RecItemUpdate
	RecItemModify
	RecUpdateQuery
	RecIndexAdd
	RecIndexUpdate
	RecIndexDrop
	RecPutMeta
	RecSetSchema
	RecInitTransaction
	RecCommitTransaction
)

// LSN pairs the dense record counter with the originating server.
type LSN struct {
	ServerID int16
	Counter  int64
}

func (l LSN) IsEmpty() bool { return l.Counter <= 0 }

// Record is one journal entry. Payload fields are populated per type:
// ItemModify carries the CJSON and mode, PutMeta the key/value pair,
// UpdateQuery and SetSchema their serialized bodies.
type Record struct {
	Type     RecordType
	LSN      LSN
	ItemMode int
	CJSON    []byte
	TagsMatcherVersion int32
	Key      string
	Value    []byte
}

func (r *Record) Serialize(w *binser.Writer) {
	w.PutUInt8(uint8(r.Type))
	w.PutVarInt(int64(r.LSN.ServerID))
	w.PutVarInt(r.LSN.Counter)
	w.PutVarInt(int64(r.ItemMode))
	w.PutVBytes(r.CJSON)
	w.PutUInt32(uint32(r.TagsMatcherVersion))
	w.PutVString(r.Key)
	w.PutVBytes(r.Value)
}

func RecordFromBytes(rd *binser.Reader) (Record, error) {
	var r Record
	r.Type = RecordType(rd.UInt8())
	r.LSN.ServerID = int16(rd.VarInt())
	r.LSN.Counter = rd.VarInt()
	r.ItemMode = int(rd.VarInt())
	r.CJSON = append([]byte(nil), rd.VBytes()...)
	r.TagsMatcherVersion = int32(rd.UInt32())
	r.Key = rd.VString()
	r.Value = append([]byte(nil), rd.VBytes()...)
	if err := rd.Err(); err != nil {
		return r, dberrors.Wrap(dberrors.KindParseBin, err, "wal record")
	}
	return r, nil
}

// Observer receives records in LSN order for one namespace.
type Observer interface {
	OnWALRecord(namespace string, rec Record)
}

// DefaultRingSize bounds how many records the in-memory ring retains.
const DefaultRingSize = 100000

// WAL is the per-namespace journal.
type WAL struct {
	mu        sync.Mutex
	namespace string
	serverID  int16
	counter   int64
	ring      []Record
	ringSize  int
	observers []Observer
}

func New(namespace string, serverID int16, ringSize int) *WAL {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &WAL{namespace: namespace, serverID: serverID, ringSize: ringSize}
}

func (w *WAL) AddObserver(o Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
}

// Add assigns the next LSN, stores the record in the ring and notifies
// observers. Returns the assigned LSN.
func (w *WAL) Add(rec Record) LSN {
	w.mu.Lock()
	w.counter++
	rec.LSN = LSN{ServerID: w.serverID, Counter: w.counter}
	if len(w.ring) < w.ringSize {
		w.ring = append(w.ring, rec)
	} else {
		w.ring[int(w.counter)%w.ringSize] = rec
	}
	obs := append([]Observer(nil), w.observers...)
	w.mu.Unlock()
	for _, o := range obs {
		o.OnWALRecord(w.namespace, rec)
	}
	return rec.LSN
}

// LastLSN reports the newest assigned LSN.
func (w *WAL) LastLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return LSN{ServerID: w.serverID, Counter: w.counter}
}

// SetCounter restores the counter after a storage reload.
func (w *WAL) SetCounter(c int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c > w.counter {
		w.counter = c
	}
}
