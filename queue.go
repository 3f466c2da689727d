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
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull indicates the waiting queue has reached its capacity.
	ErrQueueFull = errors.New("request queue is full")

	// ErrRequestTimeout indicates a request waited in the queue longer than
	// the configured timeout.
	ErrRequestTimeout = errors.New("request timed out waiting in queue")
)

// RequestQueueConfig configures the request queue.
type RequestQueueConfig struct {
	// MaxConcurrentRequests bounds in-flight requests (0 = unlimited).
	MaxConcurrentRequests int

	// MaxQueueSize bounds requests waiting for a slot (0 = unlimited).
	MaxQueueSize int

	// RequestTimeout is the max time to wait for a slot (0 = wait forever).
	RequestTimeout time.Duration
}

// RequestQueue applies backpressure to inference requests: a bounded number
// run concurrently, a bounded number wait, and the rest are rejected.
type RequestQueue struct {
	slots   chan struct{}
	config  RequestQueueConfig
	logger  *zap.Logger
	active  atomic.Int64
	queued  atomic.Int64
	dropped atomic.Int64
}

// QueueStats is a point-in-time snapshot of queue state.
type QueueStats struct {
	CurrentActive int64 `json:"current_active"`
	CurrentQueued int64 `json:"current_queued"`
	TotalDropped  int64 `json:"total_dropped"`
}

// NewRequestQueue creates a request queue. With MaxConcurrentRequests <= 0
// the queue is a no-op and Acquire always succeeds immediately.
func NewRequestQueue(config RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &RequestQueue{
		config: config,
		logger: logger,
	}

	if config.MaxConcurrentRequests > 0 {
		q.slots = make(chan struct{}, config.MaxConcurrentRequests)
		logger.Info("Request queue enabled",
			zap.Int("max_concurrent", config.MaxConcurrentRequests),
			zap.Int("max_queue_size", config.MaxQueueSize),
			zap.Duration("request_timeout", config.RequestTimeout))
	}

	return q
}

// Acquire blocks until a concurrency slot is available, the queue fills up,
// the timeout elapses, or ctx is cancelled. On success the returned release
// function must be called exactly once.
func (q *RequestQueue) Acquire(ctx context.Context) (release func(), err error) {
	if q.slots == nil {
		return func() {}, nil
	}

	// Fast path: free slot, no waiting
	select {
	case q.slots <- struct{}{}:
		q.active.Add(1)
		return q.releaseSlot, nil
	default:
	}

	if q.config.MaxQueueSize > 0 && q.queued.Load() >= int64(q.config.MaxQueueSize) {
		q.dropped.Add(1)
		return nil, ErrQueueFull
	}

	q.queued.Add(1)
	defer q.queued.Add(-1)

	var timeout <-chan time.Time
	if q.config.RequestTimeout > 0 {
		timer := time.NewTimer(q.config.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	start := time.Now()
	select {
	case q.slots <- struct{}{}:
		RecordQueueWaitTime(time.Since(start).Seconds())
		q.active.Add(1)
		return q.releaseSlot, nil
	case <-timeout:
		q.dropped.Add(1)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *RequestQueue) releaseSlot() {
	q.active.Add(-1)
	<-q.slots
}

// Stats returns a snapshot of the queue state.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		CurrentActive: q.active.Load(),
		CurrentQueued: q.queued.Load(),
		TotalDropped:  q.dropped.Load(),
	}
}

// WriteQueueFullResponse writes a 429 with a Retry-After hint.
func WriteQueueFullResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	http.Error(w, "server is at capacity, retry later", http.StatusTooManyRequests)
}

// WriteTimeoutResponse writes a 503 for requests that timed out in the queue.
func WriteTimeoutResponse(w http.ResponseWriter) {
	http.Error(w, "request timed out waiting for capacity", http.StatusServiceUnavailable)
}
