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
	"fmt"

	"github.com/weaviate/kestrel/entities/binser"
	"github.com/weaviate/kestrel/entities/dberrors"
)

// System records (tags, schema, indexes, replication state, meta) rotate
// through 8 slots keyed "<tag>.<N>". Each body is prefixed with an 8-byte
// version; on load the highest version wins, so a write torn by power loss
// falls back to the previous slot. The very first write emits 3 copies.
const (
	SysRecordSlots           = 8
	SysRecordsFirstWriteCopies = 3

	// embedded in the indexes record
	StorageMagic   = 0x1234FEDC
	StorageVersion = 0x8
)

// SysRecord reads and rotates one versioned record.
type SysRecord struct {
	adapter *Adapter
	tag     string
	version uint64
}

func NewSysRecord(adapter *Adapter, tag string) *SysRecord {
	return &SysRecord{adapter: adapter, tag: tag}
}

func (r *SysRecord) slotKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("%s.%d", r.tag, slot%SysRecordSlots))
}

// Load returns the body of the highest-versioned slot, or nil when no slot
// exists yet.
func (r *SysRecord) Load() ([]byte, error) {
	var best []byte
	r.version = 0
	found := false
	for slot := uint64(0); slot < SysRecordSlots; slot++ {
		data, err := r.adapter.Read(r.slotKey(slot))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		rd := binser.NewReader(data)
		version := rd.UInt64()
		if rd.Err() != nil {
			continue
		}
		if !found || version > r.version {
			r.version = version
			best = data[8:]
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return best, nil
}

// Save writes body under the next version slot. The first write populates
// several slots so a torn write can't leave the record unreadable.
func (r *SysRecord) Save(body []byte) error {
	first := r.version == 0
	r.version++
	w := binser.NewWriter()
	w.PutUInt64(r.version)
	w.Append(body)
	copies := uint64(1)
	if first {
		copies = SysRecordsFirstWriteCopies
	}
	for i := uint64(0); i < copies; i++ {
		r.adapter.Write(r.slotKey(r.version+i), w.Bytes())
	}
	return nil
}

// WrapIndexesBody prefixes the indexes record with the storage magic and
// version so an incompatible layout is detected on open.
func WrapIndexesBody(body []byte) []byte {
	w := binser.NewWriter()
	w.PutUInt32(StorageMagic)
	w.PutUInt32(StorageVersion)
	w.Append(body)
	return w.Bytes()
}

// UnwrapIndexesBody validates and strips the magic/version header.
func UnwrapIndexesBody(data []byte) ([]byte, error) {
	rd := binser.NewReader(data)
	magic := rd.UInt32()
	version := rd.UInt32()
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if magic != StorageMagic {
		return nil, dberrors.New(dberrors.KindParseBin, "bad storage magic %x", magic)
	}
	if version != StorageVersion {
		return nil, dberrors.New(dberrors.KindParseBin, "unsupported storage version %x", version)
	}
	return data[rd.Pos():], nil
}
