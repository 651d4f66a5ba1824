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

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/srediag/seqshm/pkg/health"
	"github.com/srediag/seqshm/pkg/shm"
	"github.com/srediag/seqshm/pkg/transport"
)

const (
	// DefaultInterval is the poll cadence of a monitor, one frame at 60Hz.
	DefaultInterval = 16 * time.Millisecond

	defaultConnectInitial = 250 * time.Millisecond
	defaultConnectMax     = 5 * time.Second
)

// MonitorOption configures a Monitor.
type MonitorOption func(*monitorOptions)

type monitorOptions struct {
	interval    time.Duration
	tracker     *health.Tracker
	logger      *zap.Logger
	connectBack backoff.BackOff
	readerOpts  []shm.ReaderOption
	feedCap     uint64
	now         func() time.Time
}

// WithInterval sets the poll cadence.
func WithInterval(d time.Duration) MonitorOption {
	return func(o *monitorOptions) { o.interval = d }
}

// WithTracker reports every poll outcome to t.
func WithTracker(t *health.Tracker) MonitorOption {
	return func(o *monitorOptions) { o.tracker = t }
}

// WithMonitorLogger sets the monitor logger.
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(o *monitorOptions) { o.logger = l }
}

// WithConnectBackOff sets the reconnect policy. backoff.Stop is treated as the policy's
// maximum interval.
func WithConnectBackOff(b backoff.BackOff) MonitorOption {
	return func(o *monitorOptions) { o.connectBack = b }
}

// WithReaderOptions passes options to the underlying reader.
func WithReaderOptions(opts ...shm.ReaderOption) MonitorOption {
	return func(o *monitorOptions) { o.readerOpts = append(o.readerOpts, opts...) }
}

// WithFeedCap sets the capacity of the snapshot feed.
func WithFeedCap(n uint64) MonitorOption {
	return func(o *monitorOptions) { o.feedCap = n }
}

func newConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultConnectInitial
	b.MaxInterval = defaultConnectMax
	b.MaxElapsedTime = 0
	return b
}

// Monitor keeps one reader connected to a region and polls it at a fixed cadence. Updated
// snapshots go to Feed; every outcome goes to the health tracker.
type Monitor[T any] struct {
	name   string
	opts   monitorOptions
	reader *shm.Reader[T]
	feed   *transport.Feed[T]

	nextConnect time.Time
	lastUpdate  atomic.Int64 // unix nanoseconds
}

// NewMonitor returns a monitor for the region called name. It does not connect until Run
// or Step.
func NewMonitor[T any](name string, opts ...MonitorOption) *Monitor[T] {
	o := monitorOptions{
		interval: DefaultInterval,
		logger:   shm.Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval <= 0 {
		o.interval = DefaultInterval
	}
	if o.tracker == nil {
		o.tracker = health.NewTracker(health.DefaultFailureThreshold)
	}
	if o.connectBack == nil {
		o.connectBack = newConnectBackOff()
	}
	o.logger = o.logger.With(zap.String("region", name))
	return &Monitor[T]{
		name:   name,
		opts:   o,
		reader: shm.NewReader[T](o.readerOpts...),
		feed:   transport.NewFeed[T](o.feedCap),
	}
}

// Name returns the region name.
func (m *Monitor[T]) Name() string {
	return m.name
}

// Feed returns the queue of Updated snapshots.
func (m *Monitor[T]) Feed() *transport.Feed[T] {
	return m.feed
}

// Tracker returns the health tracker the monitor reports to.
func (m *Monitor[T]) Tracker() *health.Tracker {
	return m.opts.tracker
}

// Stats returns the reader counters.
func (m *Monitor[T]) Stats() shm.ReaderStats {
	return m.reader.Stats()
}

// LastUpdate returns when Step last delivered a snapshot.
func (m *Monitor[T]) LastUpdate() time.Time {
	ns := m.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Step runs one connect-or-poll cycle. It fails only when the region cannot hold T.
func (m *Monitor[T]) Step(ctx context.Context) (shm.PollStatus, error) {
	if !m.reader.Connected() {
		if err := m.connect(ctx); err != nil {
			return shm.NotConnected, err
		}
		if !m.reader.Connected() {
			m.opts.tracker.Observe(m.name, shm.NotConnected)
			return shm.NotConnected, nil
		}
	}

	v, status := m.reader.Poll()
	alive := m.opts.tracker.Observe(m.name, status)
	switch {
	case status == shm.Updated:
		m.lastUpdate.Store(m.opts.now().UnixNano())
		if !m.feed.Offer(v) {
			m.opts.logger.Debug("feed full, dropped oldest snapshot")
		}
	case !alive:
		m.opts.logger.Warn("producer stalled, reconnecting",
			zap.Stringer("status", status),
			zap.Int("threshold", m.opts.tracker.Threshold()))
		_ = m.reader.Disconnect()
		m.opts.tracker.Observe(m.name, shm.NotConnected)
		m.nextConnect = time.Time{}
	}
	return status, nil
}

func (m *Monitor[T]) connect(ctx context.Context) error {
	now := m.opts.now()
	if now.Before(m.nextConnect) {
		return nil
	}
	err := m.reader.Connect(ctx, m.name)
	if err == nil {
		m.opts.connectBack.Reset()
		m.opts.logger.Info("connected")
		return nil
	}
	if errors.Is(err, shm.ErrLayoutMismatch) {
		m.opts.logger.Error("region layout does not match", zap.Error(err))
		return err
	}
	wait := m.opts.connectBack.NextBackOff()
	if wait == backoff.Stop {
		wait = defaultConnectMax
	}
	m.nextConnect = now.Add(wait)
	m.opts.logger.Debug("connect failed", zap.Error(err), zap.Duration("retry_in", wait))
	return nil
}

// Run steps at the configured interval until ctx is done or the layout mismatches. The
// feed is closed on return.
func (m *Monitor[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	defer m.feed.Close()
	defer func() { _ = m.reader.Disconnect() }()

	for {
		if _, err := m.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
