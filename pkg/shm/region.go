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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	internalshm "github.com/srediag/seqshm/internal/shm"
)

// Source is the read side of a region as seen by a Reader.
type Source interface {
	io.ReaderAt
	// Size returns the number of readable bytes.
	Size() int
}

// Region is a handle to a mapped named region. It does not own the region: the OS object
// outlives the handle and is shared with every other process that opened the same name.
type Region struct {
	mu     sync.Mutex
	mapped *internalshm.MappedRegion
	layout Layout
	mem    []byte
}

// OpenOptions defines options for creating or opening a named region.
type OpenOptions struct {
	// Name is the identifier agreed between writer and readers.
	Name   string
	Layout Layout
	// Create creates the region if it does not exist. Writers set it, readers do not.
	Create bool
	// ReadOnly maps the region without write access.
	ReadOnly bool
}

// Open creates or opens a named region.
//
// An absent region yields an error matching both ErrNotConnected and os.ErrNotExist. A region
// whose size differs from the layout's yields ErrLayoutMismatch.
func Open(ctx context.Context, opts OpenOptions) (*Region, error) {
	if opts.Layout.PayloadSize <= 0 {
		return nil, fmt.Errorf("open %s: payload size %d: %w", opts.Name, opts.Layout.PayloadSize, ErrLayoutMismatch)
	}
	if !hostLittleEndian() {
		return nil, fmt.Errorf("open %s: big-endian host: %w", opts.Name, ErrLayoutMismatch)
	}
	mapped, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:     opts.Name,
		Size:     opts.Layout.RegionSize(),
		Create:   opts.Create,
		ReadOnly: opts.ReadOnly,
	})
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	case errors.Is(err, internalshm.ErrRegionTooSmall), errors.Is(err, internalshm.ErrRegionSizeMismatch):
		return nil, fmt.Errorf("%w: %w", ErrLayoutMismatch, err)
	default:
		return nil, err
	}
	return &Region{
		mapped: mapped,
		layout: opts.Layout,
		mem:    mapped.Addr,
	}, nil
}

// Name returns the region name.
func (r *Region) Name() string {
	return r.mapped.Name
}

// Path returns the backing object path, or the name where there is none.
func (r *Region) Path() string {
	return r.mapped.Path
}

// Layout returns the layout the region was opened with.
func (r *Region) Layout() Layout {
	return r.layout
}

// Size returns the mapped size in bytes.
func (r *Region) Size() int {
	return len(r.mem)
}

// ReadAt copies region bytes into p. Header words inside the requested range are loaded
// atomically and before the payload bytes, so a header read first in program order is
// never observed later than the payload it guards.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.mem)) {
		return 0, io.EOF
	}
	o := int(off)
	n := 0
	hdrLen := r.layout.HeaderLen()
	for o+n < hdrLen && n+4 <= len(p) && (o+n)%4 == 0 {
		w := internalshm.AtomicLoadUint32(r.mem, o+n)
		p[n], p[n+1], p[n+2], p[n+3] = byte(w), byte(w>>8), byte(w>>16), byte(w>>24)
		n += 4
	}
	n += copy(p[n:], r.mem[o+n:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Header loads the version header atomically.
func (r *Region) Header() VersionHeaderWithSize {
	h := VersionHeaderWithSize{
		VersionHeader: VersionHeader{
			VersionBegin: internalshm.AtomicLoadUint32(r.mem, offVersionBegin),
			VersionEnd:   internalshm.AtomicLoadUint32(r.mem, offVersionEnd),
		},
	}
	if r.layout.Sized {
		h.BytesUpdatedHint = internalshm.AtomicLoadUint32(r.mem, offSizeHint)
	}
	return h
}

func (r *Region) storeBegin(v uint32) {
	internalshm.AtomicStoreUint32(r.mem, offVersionBegin, v)
}

func (r *Region) storeEnd(v uint32) {
	internalshm.AtomicStoreUint32(r.mem, offVersionEnd, v)
}

func (r *Region) storeHint(v uint32) {
	internalshm.AtomicStoreUint32(r.mem, offSizeHint, v)
}

func (r *Region) payload() []byte {
	return r.mem[r.layout.HeaderLen():]
}

// Close unmaps the region. It is safe to call more than once.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	r.mem = nil
	return internalshm.UnmapRegion(context.Background(), r.mapped)
}
