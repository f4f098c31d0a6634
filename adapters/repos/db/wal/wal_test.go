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

package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/kestrel/entities/binser"
)

func TestRecordSerializeRoundTrip(t *testing.T) {
	rec := Record{
		Type:               RecItemModify,
		LSN:                LSN{ServerID: 3, Counter: 42},
		ItemMode:           2,
		CJSON:              []byte{1, 2, 3},
		TagsMatcherVersion: 7,
		Key:                "meta-key",
		Value:              []byte("value"),
	}
	w := binser.NewWriter()
	rec.Serialize(w)
	back, err := RecordFromBytes(binser.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestRecordFromBytesTruncated(t *testing.T) {
	_, err := RecordFromBytes(binser.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

type recordingObserver struct {
	seen []Record
}

func (r *recordingObserver) OnWALRecord(_ string, rec Record) {
	r.seen = append(r.seen, rec)
}

func TestWALAssignsDenseLSNs(t *testing.T) {
	w := New("ns", 1, 0)
	obs := &recordingObserver{}
	w.AddObserver(obs)

	first := w.Add(Record{Type: RecItemUpdate})
	second := w.Add(Record{Type: RecItemModify})
	assert.Equal(t, int64(1), first.Counter)
	assert.Equal(t, int64(2), second.Counter)
	assert.EqualValues(t, 1, first.ServerID)

	require.Len(t, obs.seen, 2)
	assert.Equal(t, int64(1), obs.seen[0].LSN.Counter)
	assert.Equal(t, int64(2), obs.seen[1].LSN.Counter)
}

func TestWALRingBounded(t *testing.T) {
	w := New("ns", 0, 4)
	for i := 0; i < 10; i++ {
		w.Add(Record{Type: RecItemUpdate})
	}
	assert.Equal(t, int64(10), w.LastLSN().Counter)
}

func TestWALSetCounterOnlyAdvances(t *testing.T) {
	w := New("ns", 0, 0)
	w.SetCounter(10)
	assert.Equal(t, int64(10), w.LastLSN().Counter)
	w.SetCounter(5)
	assert.Equal(t, int64(10), w.LastLSN().Counter)
}
