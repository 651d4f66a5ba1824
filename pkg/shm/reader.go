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

package shm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// PollStatus is the outcome of a Poll.
type PollStatus int

const (
	// NotConnected means no region is bound to the reader.
	NotConnected PollStatus = iota
	// Updated means a consistent snapshot was copied and decoded.
	Updated
	// Unchanged means the region holds the version of the last successful read; nothing was copied.
	Unchanged
	// StuckFrame means the region still holds the version pair of the last failed poll.
	StuckFrame
	// Failed means every attempt of the poll observed a write in progress.
	Failed
)

var pollStatusNames = [...]string{"not_connected", "updated", "unchanged", "stuck_frame", "failed"}

func (s PollStatus) String() string {
	if int(s) < len(pollStatusNames) {
		return pollStatusNames[s]
	}
	return fmt.Sprintf("PollStatus(%d)", int(s))
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	partial       bool
	skipUnchanged bool
	maxRetries    int
	backOff       backoff.BackOff
	sleep         func(time.Duration)
	logger        *zap.Logger
	meter         metric.Meter
	tracer        trace.Tracer
}

// WithPartial reads VersionHeaderWithSize and copies only the hinted payload prefix.
func WithPartial(partial bool) ReaderOption {
	return func(o *readerOptions) { o.partial = partial }
}

// WithSkipUnchanged makes Poll return Unchanged without copying when the version pair equals
// the last successful one.
func WithSkipUnchanged(skip bool) ReaderOption {
	return func(o *readerOptions) { o.skipUnchanged = skip }
}

// WithMaxRetries bounds the attempts of one Poll. Values below 1 select DefaultMaxRetries.
func WithMaxRetries(n int) ReaderOption {
	return func(o *readerOptions) { o.maxRetries = n }
}

// WithBackOff sets the pause policy between attempts. backoff.Stop ends the poll early.
func WithBackOff(b backoff.BackOff) ReaderOption {
	return func(o *readerOptions) { o.backOff = b }
}

// WithSleep replaces time.Sleep for the pauses between attempts.
func WithSleep(sleep func(time.Duration)) ReaderOption {
	return func(o *readerOptions) { o.sleep = sleep }
}

// WithLogger sets the reader logger.
func WithLogger(l *zap.Logger) ReaderOption {
	return func(o *readerOptions) { o.logger = l }
}

// WithMeter records poll outcomes on the seqshm.reader.polls counter.
func WithMeter(m metric.Meter) ReaderOption {
	return func(o *readerOptions) { o.meter = m }
}

// WithTracer traces Connect and Disconnect.
func WithTracer(t trace.Tracer) ReaderOption {
	return func(o *readerOptions) { o.tracer = t }
}

// Reader polls a region for consistent snapshots of T. A Reader is meant to be driven by a
// single goroutine; Stats may be read concurrently. Independent readers share nothing and
// may poll the same region from any number of goroutines or processes.
type Reader[T any] struct {
	opts   readerOptions
	layout Layout
	err    error

	src    Source
	region *Region // set when the reader opened src itself

	buf     []byte // header + payload scratch
	peekBuf [SizedHeaderSize]byte
	current T

	lastSuccess VersionHeader
	haveSuccess bool
	stuck       VersionHeader

	stats statsBox
	polls metric.Int64Counter
	attrs [len(pollStatusNames)]metric.AddOption
}

// NewReader returns an unconnected Reader for payload type T. Layout errors surface from
// Connect and Attach.
func NewReader[T any](opts ...ReaderOption) *Reader[T] {
	o := readerOptions{
		maxRetries: DefaultMaxRetries,
		logger:     Logger(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 1 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.backOff == nil {
		o.backOff = backoff.NewConstantBackOff(DefaultRetrySleep)
	}
	if o.meter == nil {
		o.meter = metricnoop.NewMeterProvider().Meter("seqshm")
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer("seqshm")
	}

	size, err := PayloadSize[T]()
	r := &Reader[T]{
		opts:   o,
		layout: Layout{Sized: o.partial, PayloadSize: size},
		err:    err,
	}
	r.polls, _ = o.meter.Int64Counter("seqshm.reader.polls",
		metric.WithDescription("Reader polls by outcome."))
	if r.polls == nil {
		r.polls, _ = metricnoop.NewMeterProvider().Meter("seqshm").Int64Counter("seqshm.reader.polls")
	}
	for i, name := range pollStatusNames {
		r.attrs[i] = metric.WithAttributes(attribute.String("status", name))
	}
	if err == nil {
		r.buf = make([]byte, r.layout.RegionSize())
	}
	return r
}

// Layout returns the region layout the reader expects.
func (r *Reader[T]) Layout() Layout {
	return r.layout
}

// Connect opens the named region read-only. A missing region returns an error matching
// ErrNotConnected; callers retry on their own, slower cadence.
func (r *Reader[T]) Connect(ctx context.Context, name string) (err error) {
	ctx, span := r.opts.tracer.Start(ctx, "seqshm.Reader.Connect",
		trace.WithAttributes(attribute.String("region", name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if r.err != nil {
		return r.err
	}
	if r.src != nil {
		return ErrAlreadyConnected
	}
	region, err := Open(ctx, OpenOptions{Name: name, Layout: r.layout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("reader connect %s: %w", name, err)
	}
	if err := r.Attach(region); err != nil {
		_ = region.Close()
		return err
	}
	r.region = region
	r.opts.logger.Info("reader connected",
		zap.String("region", name),
		zap.String("path", region.Path()),
		zap.Bool("partial", r.opts.partial))
	return nil
}

// Attach binds an already open source. The reader does not close it on Disconnect.
func (r *Reader[T]) Attach(src Source) error {
	if r.err != nil {
		return r.err
	}
	if r.src != nil {
		return ErrAlreadyConnected
	}
	if src.Size() != r.layout.RegionSize() {
		return fmt.Errorf("source has %d bytes, want %d: %w", src.Size(), r.layout.RegionSize(), ErrLayoutMismatch)
	}
	r.src = src
	r.resetState()
	return nil
}

// Connected reports whether a region is bound.
func (r *Reader[T]) Connected() bool {
	return r.src != nil
}

// Disconnect unbinds the region and forgets the last success and stuck versions.
func (r *Reader[T]) Disconnect() error {
	_, span := r.opts.tracer.Start(context.Background(), "seqshm.Reader.Disconnect")
	defer span.End()

	if r.src == nil {
		return nil
	}
	var err error
	if r.region != nil {
		err = r.region.Close()
		r.region = nil
	}
	r.src = nil
	r.resetState()
	return err
}

func (r *Reader[T]) resetState() {
	r.lastSuccess = VersionHeader{}
	r.haveSuccess = false
	r.stuck = VersionHeader{}
	var zero T
	r.current = zero
	r.stats.reset()
}

// Stats returns a copy of the reader counters.
func (r *Reader[T]) Stats() ReaderStats {
	return r.stats.snapshot()
}

// ResetStats zeroes the reader counters.
func (r *Reader[T]) ResetStats() {
	r.stats.reset()
}

// Poll returns the latest consistent snapshot, or a status explaining why there is none.
// The returned value is a copy; it is only meaningful when the status is Updated. Poll blocks
// for at most MaxRetries pauses.
func (r *Reader[T]) Poll() (T, PollStatus) {
	var zero T
	if r.src == nil {
		return zero, r.finish(NotConnected)
	}

	r.opts.backOff.Reset()
	var (
		retries  uint64
		observed VersionHeader
	)
	for attempt := 0; attempt < r.opts.maxRetries; attempt++ {
		if attempt > 0 && !r.pause() {
			break
		}

		pre, err := r.peek()
		if err != nil {
			r.opts.logger.Error("header read failed", zap.Error(err))
			break
		}
		observed = pre.VersionHeader

		if !r.stuck.isZero() && observed == r.stuck {
			r.stats.update(func(s *ReaderStats) { s.StuckFrames++ })
			return zero, r.finish(StuckFrame)
		}
		if r.opts.skipUnchanged && r.haveSuccess && observed == r.lastSuccess {
			r.stats.update(func(s *ReaderStats) { s.SkippedUnchanged++ })
			return zero, r.finish(Unchanged)
		}
		if !observed.Consistent() {
			retries++
			r.stats.update(func(s *ReaderStats) { s.PreCheckRetries++ })
			continue
		}

		n := r.copyLen(pre.BytesUpdatedHint)
		if _, err := r.src.ReadAt(r.buf[:n], 0); err != nil {
			r.opts.logger.Error("payload read failed", zap.Error(err))
			break
		}
		copied := DecodeHeader(r.buf, r.layout.Sized).VersionHeader
		if !copied.Consistent() {
			retries++
			r.stats.update(func(s *ReaderStats) { s.MainReadRetries++ })
			continue
		}

		post, err := r.peek()
		if err != nil {
			r.opts.logger.Error("header read failed", zap.Error(err))
			break
		}
		if post.VersionHeader != copied {
			retries++
			r.stats.update(func(s *ReaderStats) { s.PostCheckRetries++ })
			continue
		}

		copy(payloadBytes(&r.current), r.buf[r.layout.HeaderLen():n])
		r.lastSuccess = post.VersionHeader
		r.haveSuccess = true
		r.stuck = VersionHeader{}
		r.stats.update(func(s *ReaderStats) {
			s.Successes++
			s.MaxRetriesSeen = max(s.MaxRetriesSeen, retries)
		})
		return r.current, r.finish(Updated)
	}

	r.stuck = observed
	r.stats.update(func(s *ReaderStats) {
		s.HardFailures++
		s.MaxRetriesSeen = max(s.MaxRetriesSeen, retries)
	})
	r.opts.logger.Debug("poll exhausted retries",
		zap.Stringer("versions", observed),
		zap.Uint64("retries", retries))
	return zero, r.finish(Failed)
}

// copyLen returns how many region bytes the main read copies.
func (r *Reader[T]) copyLen(hint uint32) int {
	full := r.layout.RegionSize()
	if !r.opts.partial || hint == 0 || int(hint) >= r.layout.PayloadSize {
		return full
	}
	return r.layout.HeaderLen() + int(hint)
}

func (r *Reader[T]) peek() (VersionHeaderWithSize, error) {
	b := r.peekBuf[:r.layout.HeaderLen()]
	if _, err := r.src.ReadAt(b, 0); err != nil {
		return VersionHeaderWithSize{}, err
	}
	return DecodeHeader(b, r.layout.Sized), nil
}

// pause sleeps for the next backoff interval. It returns false when the policy says stop.
func (r *Reader[T]) pause() bool {
	d := r.opts.backOff.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	if d > 0 {
		r.opts.sleep(d)
	}
	return true
}

func (r *Reader[T]) finish(s PollStatus) PollStatus {
	r.polls.Add(context.Background(), 1, r.attrs[s])
	return s
}
