/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport hands decoded snapshots from a polling goroutine to their consumers.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// DefaultFeedCap is the capacity of a Feed created with a zero capacity.
const DefaultFeedCap = 64

// evictTimeout bounds the wait for the oldest item when Offer makes room.
const evictTimeout = time.Millisecond

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("feed closed")

// Feed is a bounded multi-producer multi-consumer hand-off. A full feed evicts its oldest
// snapshot, so consumers that fall behind skip intermediate states instead of stalling
// the producer.
type Feed[T any] struct {
	rb      *queue.RingBuffer
	ready   chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewFeed returns a feed holding up to capacity snapshots, rounded up to a power of two.
func NewFeed[T any](capacity uint64) *Feed[T] {
	if capacity == 0 {
		capacity = DefaultFeedCap
	}
	return &Feed[T]{
		rb:    queue.NewRingBuffer(capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Offer enqueues v without blocking. It returns false when v or an older snapshot had to
// be dropped, or when the feed is closed.
func (f *Feed[T]) Offer(v T) bool {
	ok, err := f.rb.Offer(v)
	if err != nil {
		return false
	}
	if !ok {
		if _, err := f.rb.Poll(evictTimeout); err == nil {
			f.dropped.Add(1)
		}
		if ok, err = f.rb.Offer(v); err != nil {
			return false
		}
		if !ok {
			f.dropped.Add(1)
		}
		f.signal()
		return false
	}
	f.signal()
	return true
}

func (f *Feed[T]) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot is available, ctx is done, or the feed is closed.
func (f *Feed[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		if f.rb.IsDisposed() {
			return zero, ErrClosed
		}
		if f.rb.Len() > 0 {
			item, err := f.rb.Poll(evictTimeout)
			switch {
			case err == nil:
				if f.rb.Len() > 0 {
					f.signal()
				}
				return item.(T), nil
			case errors.Is(err, queue.ErrDisposed):
				return zero, ErrClosed
			}
			// another consumer took it
			continue
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-f.done:
			return zero, ErrClosed
		case <-f.ready:
		}
	}
}

// Len returns the number of queued snapshots.
func (f *Feed[T]) Len() int {
	return int(f.rb.Len())
}

// Cap returns the capacity of the feed.
func (f *Feed[T]) Cap() int {
	return int(f.rb.Cap())
}

// Dropped returns how many snapshots were discarded because the feed was full.
func (f *Feed[T]) Dropped() uint64 {
	return f.dropped.Load()
}

// Close discards queued snapshots and wakes blocked consumers.
func (f *Feed[T]) Close() {
	f.once.Do(func() {
		f.rb.Dispose()
		close(f.done)
	})
}
