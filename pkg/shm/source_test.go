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
	"io"
)

// sample is a payload with a fixed, padding-free layout.
type sample struct {
	Seq    uint32
	Flags  uint32
	Values [6]float64
}

type blob [64]byte

// memSource is an in-memory region that counts reads and lets tests act as the writer
// between the reader's steps.
type memSource struct {
	mem    []byte
	layout Layout

	calls        int
	headerReads  int
	payloadReads int
	lastLen      int
	// hook runs before the n-th ReadAt call (1-based).
	hook func(call int)
}

func newMemSource(l Layout) *memSource {
	return &memSource{mem: make([]byte, l.RegionSize()), layout: l}
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	m.calls++
	if m.hook != nil {
		m.hook(m.calls)
	}
	if len(p) <= m.layout.HeaderLen() {
		m.headerReads++
	} else {
		m.payloadReads++
		m.lastLen = len(p)
	}
	if off >= int64(len(m.mem)) {
		return 0, io.EOF
	}
	n := copy(p, m.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memSource) Size() int {
	return len(m.mem)
}

func (m *memSource) resetCounters() {
	m.calls, m.headerReads, m.payloadReads = 0, 0, 0
}

func (m *memSource) setBegin(v uint32) {
	binary.LittleEndian.PutUint32(m.mem[offVersionBegin:], v)
}

func (m *memSource) setEnd(v uint32) {
	binary.LittleEndian.PutUint32(m.mem[offVersionEnd:], v)
}

func (m *memSource) setHint(v uint32) {
	binary.LittleEndian.PutUint32(m.mem[offSizeHint:], v)
}

// writePayload copies p at payload offset off.
func (m *memSource) writePayload(off int, p []byte) {
	copy(m.mem[m.layout.HeaderLen()+off:], p)
}

// publish performs a complete write of p stamped with version v.
func (m *memSource) publish(v uint32, p []byte) {
	m.setBegin(v)
	if m.layout.Sized {
		m.setHint(uint32(len(p)))
	}
	m.writePayload(0, p)
	m.setEnd(v)
}

func uniformBlob(b byte) blob {
	var v blob
	for i := range v {
		v[i] = b
	}
	return v
}

func isUniform(v blob) bool {
	for i := range v {
		if v[i] != v[0] {
			return false
		}
	}
	return true
}
