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

package main

import (
	"encoding/binary"
	"time"
)

// Synthetic frames: a little-endian sequence number, the publish time in unix nanoseconds,
// and filler bytes equal to the low byte of the sequence.
type (
	frame64   [64]byte
	frame256  [256]byte
	frame1024 [1024]byte
	frame4096 [4096]byte
)

const frameStampLen = 16

var payloadSizes = map[int]struct{}{64: {}, 256: {}, 1024: {}, 4096: {}}

func stampFrame(b []byte, seq uint64, now time.Time) {
	binary.LittleEndian.PutUint64(b[0:8], seq)
	binary.LittleEndian.PutUint64(b[8:16], uint64(now.UnixNano()))
	for i := frameStampLen; i < len(b); i++ {
		b[i] = byte(seq)
	}
}

// readStamp returns the sequence and publish time of a frame, and whether the filler agrees
// with the sequence over the first n bytes.
func readStamp(b []byte, n int) (seq uint64, at time.Time, ok bool) {
	seq = binary.LittleEndian.Uint64(b[0:8])
	at = time.Unix(0, int64(binary.LittleEndian.Uint64(b[8:16])))
	if n > len(b) {
		n = len(b)
	}
	for i := frameStampLen; i < n; i++ {
		if b[i] != byte(seq) {
			return seq, at, false
		}
	}
	return seq, at, true
}
