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

package cyclemanager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleManagerRunsCallbacks(t *testing.T) {
	cm := New(5*time.Millisecond, 1)
	var runs atomic.Int32
	cm.Register(func(ShouldBreakFunc) bool {
		runs.Add(1)
		return false
	})
	cm.Start()
	assert.True(t, cm.Running())

	require.Eventually(t, func() bool { return runs.Load() >= 3 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, cm.StopAndWait(context.Background()))
	assert.False(t, cm.Running())
}

func TestCycleManagerUnregister(t *testing.T) {
	cm := New(5*time.Millisecond, 1)
	var runs atomic.Int32
	unregister := cm.Register(func(ShouldBreakFunc) bool {
		runs.Add(1)
		return false
	})
	cm.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)
	unregister()
	seen := runs.Load()
	time.Sleep(30 * time.Millisecond)
	// at most one in-flight cycle after unregistering
	assert.LessOrEqual(t, runs.Load(), seen+1)
	require.NoError(t, cm.StopAndWait(context.Background()))
}

func TestCycleManagerStopInterruptsCycle(t *testing.T) {
	cm := New(time.Millisecond, 1)
	started := make(chan struct{})
	cm.Register(func(shouldBreak ShouldBreakFunc) bool {
		select {
		case started <- struct{}{}:
		default:
		}
		for !shouldBreak() {
			time.Sleep(time.Millisecond)
		}
		return true
	})
	cm.Start()
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cm.StopAndWait(ctx))
}
