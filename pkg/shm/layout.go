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
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"
)

const (
	// HeaderSize is the size of VersionHeader in bytes.
	HeaderSize = 8
	// SizedHeaderSize is the size of VersionHeaderWithSize in bytes.
	SizedHeaderSize = 12

	// DefaultMaxRetries bounds the attempts of a single Poll.
	DefaultMaxRetries = 10
	// DefaultRetrySleep is the pause between two attempts of a Poll.
	DefaultRetrySleep = time.Millisecond

	offVersionBegin = 0
	offVersionEnd   = 4
	offSizeHint     = 8
)

// VersionHeader precedes the payload at offset 0 of a region.
type VersionHeader struct {
	VersionBegin uint32
	VersionEnd   uint32
}

// Consistent reports whether no write is in progress.
func (h VersionHeader) Consistent() bool {
	return h.VersionBegin == h.VersionEnd
}

func (h VersionHeader) isZero() bool {
	return h.VersionBegin == 0 && h.VersionEnd == 0
}

func (h VersionHeader) String() string {
	return fmt.Sprintf("(%d,%d)", h.VersionBegin, h.VersionEnd)
}

// VersionHeaderWithSize is the header of regions whose writer publishes how many leading
// payload bytes the last write touched. A zero hint means the whole payload.
type VersionHeaderWithSize struct {
	VersionHeader
	BytesUpdatedHint uint32
}

// Layout describes where the payload sits in a region.
type Layout struct {
	// Sized selects VersionHeaderWithSize.
	Sized       bool
	PayloadSize int
}

// HeaderLen returns the size of the header in bytes.
func (l Layout) HeaderLen() int {
	if l.Sized {
		return SizedHeaderSize
	}
	return HeaderSize
}

// RegionSize returns the number of bytes a region with this layout occupies.
func (l Layout) RegionSize() int {
	return l.HeaderLen() + l.PayloadSize
}

// DecodeHeader decodes a header from the first bytes of b. The hint is left zero unless
// sized is set.
func DecodeHeader(b []byte, sized bool) VersionHeaderWithSize {
	h := VersionHeaderWithSize{
		VersionHeader: VersionHeader{
			VersionBegin: binary.LittleEndian.Uint32(b[offVersionBegin:]),
			VersionEnd:   binary.LittleEndian.Uint32(b[offVersionEnd:]),
		},
	}
	if sized {
		h.BytesUpdatedHint = binary.LittleEndian.Uint32(b[offSizeHint:])
	}
	return h
}

// EncodeHeader writes h into the first bytes of b.
func EncodeHeader(b []byte, h VersionHeaderWithSize, sized bool) {
	binary.LittleEndian.PutUint32(b[offVersionBegin:], h.VersionBegin)
	binary.LittleEndian.PutUint32(b[offVersionEnd:], h.VersionEnd)
	if sized {
		binary.LittleEndian.PutUint32(b[offSizeHint:], h.BytesUpdatedHint)
	}
}

// PayloadSize returns the byte size of T after checking that T has a fixed layout:
// no pointers, slices, maps or strings, and no implicit padding.
func PayloadSize[T any]() (int, error) {
	var v T
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return 0, fmt.Errorf("%T has zero size: %w", v, ErrLayoutMismatch)
	}
	if n := binary.Size(v); n != size {
		return 0, fmt.Errorf("%T is %d bytes in memory but %d bytes on the wire: %w", v, size, n, ErrLayoutMismatch)
	}
	return size, nil
}

// payloadBytes exposes the memory of *v as a byte slice. T must have passed PayloadSize.
func payloadBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

func hostLittleEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}
