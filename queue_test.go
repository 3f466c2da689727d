// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package weevil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestQueueUnlimited(t *testing.T) {
	q := NewRequestQueue(RequestQueueConfig{}, zap.NewNop())

	for i := 0; i < 100; i++ {
		release, err := q.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}

	assert.Zero(t, q.Stats().CurrentActive)
}

func TestRequestQueueAcquireRelease(t *testing.T) {
	q := NewRequestQueue(RequestQueueConfig{MaxConcurrentRequests: 2}, zap.NewNop())

	r1, err := q.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := q.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), q.Stats().CurrentActive)

	r1()
	r2()
	assert.Zero(t, q.Stats().CurrentActive)
}

func TestRequestQueueFullRejection(t *testing.T) {
	q := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: 1,
		MaxQueueSize:          1,
	}, zap.NewNop())

	release, err := q.Acquire(context.Background())
	require.NoError(t, err)

	// Fill the single queue slot with a waiter.
	waiterDone := make(chan error, 1)
	go func() {
		r, err := q.Acquire(context.Background())
		if err == nil {
			r()
		}
		waiterDone <- err
	}()

	require.Eventually(t, func() bool {
		return q.Stats().CurrentQueued == 1
	}, time.Second, time.Millisecond)

	// Queue is full: next request is rejected immediately.
	_, err = q.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), q.Stats().TotalDropped)

	// Releasing the slot lets the waiter through.
	release()
	require.NoError(t, <-waiterDone)
}

func TestRequestQueueTimeout(t *testing.T) {
	q := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: 1,
		RequestTimeout:        20 * time.Millisecond,
	}, zap.NewNop())

	release, err := q.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = q.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestRequestQueueContextCancelled(t *testing.T) {
	q := NewRequestQueue(RequestQueueConfig{MaxConcurrentRequests: 1}, zap.NewNop())

	release, err := q.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = q.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
