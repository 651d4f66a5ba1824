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

	"go.uber.org/zap"

	internalshm "github.com/srediag/seqshm/internal/shm"
)

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	sized  bool
	logger *zap.Logger
}

// WithWriterSizeHint publishes VersionHeaderWithSize instead of VersionHeader.
func WithWriterSizeHint(sized bool) WriterOption {
	return func(o *writerOptions) { o.sized = sized }
}

// WithWriterLogger sets the writer logger.
func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(o *writerOptions) { o.logger = l }
}

// Writer publishes snapshots of T into a named region. There must be at most one Writer
// per region; Writer methods are not safe for concurrent use.
type Writer[T any] struct {
	opts    writerOptions
	layout  Layout
	region  *Region
	version uint32
	err     error
}

// NewWriter returns an unconnected Writer for payload type T.
func NewWriter[T any](opts ...WriterOption) *Writer[T] {
	o := writerOptions{logger: Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	size, err := PayloadSize[T]()
	return &Writer[T]{
		opts:   o,
		layout: Layout{Sized: o.sized, PayloadSize: size},
		err:    err,
	}
}

// Layout returns the region layout written by w.
func (w *Writer[T]) Layout() Layout {
	return w.layout
}

// Connect opens or creates the named region. Versions continue from whatever the region
// already holds, so a restarted writer never moves the counters backwards.
func (w *Writer[T]) Connect(ctx context.Context, name string) error {
	if w.err != nil {
		return w.err
	}
	if w.region != nil {
		return ErrAlreadyConnected
	}
	region, err := Open(ctx, OpenOptions{Name: name, Layout: w.layout, Create: true})
	if err != nil {
		return fmt.Errorf("writer connect %s: %w", name, err)
	}
	h := region.Header()
	w.version = max(h.VersionBegin, h.VersionEnd)
	if !h.Consistent() {
		// a previous writer died mid-write
		region.storeBegin(w.version)
		region.storeEnd(w.version)
		w.opts.logger.Warn("resumed torn region",
			zap.String("region", name),
			zap.Uint32("version_begin", h.VersionBegin),
			zap.Uint32("version_end", h.VersionEnd))
	}
	w.region = region
	w.opts.logger.Info("writer connected",
		zap.String("region", name),
		zap.String("path", region.Path()),
		zap.Int("size", region.Size()),
		zap.Uint32("version", w.version))
	return nil
}

// Publish overwrites the payload with v. It never blocks; readers that overlap the write
// observe a version mismatch and retry.
func (w *Writer[T]) Publish(v T) error {
	if w.region == nil {
		return ErrNotConnected
	}
	w.publish(payloadBytes(&v), 0)
	return nil
}

// PublishPrefix writes only the first n payload bytes of v and advertises n as the size hint.
// Readers in partial mode copy just those bytes and keep their previous tail.
func (w *Writer[T]) PublishPrefix(v T, n int) error {
	if w.region == nil {
		return ErrNotConnected
	}
	if !w.layout.Sized {
		return ErrNoSizeHint
	}
	if n <= 0 || n > w.layout.PayloadSize {
		return fmt.Errorf("%w: %d of %d", ErrPrefixTooLarge, n, w.layout.PayloadSize)
	}
	w.publish(payloadBytes(&v)[:n], uint32(n))
	return nil
}

func (w *Writer[T]) publish(p []byte, hint uint32) {
	w.version++
	w.region.storeBegin(w.version)
	if w.layout.Sized {
		if hint == 0 {
			hint = uint32(len(p))
		}
		w.region.storeHint(hint)
	}
	copy(w.region.payload(), p)
	w.region.storeEnd(w.version)
}

// Version returns the version of the last completed publish.
func (w *Writer[T]) Version() uint32 {
	return w.version
}

// Disconnect releases the region handle. The region itself stays until removed.
func (w *Writer[T]) Disconnect() error {
	if w.region == nil {
		return nil
	}
	err := w.region.Close()
	w.region = nil
	return err
}

// Remove disconnects and unlinks the backing object of the region.
func (w *Writer[T]) Remove() error {
	if w.region == nil {
		return ErrNotConnected
	}
	name := w.region.Name()
	if err := w.Disconnect(); err != nil {
		return err
	}
	return internalshm.RemoveRegion(name)
}
