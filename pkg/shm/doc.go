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

// Package shm provides a lock-free, single-writer/multiple-reader snapshot exchange over a
// named shared memory region.
//
// A region starts with a version header followed by a fixed-size payload:
//
//	offset 0  uint32 version_begin
//	offset 4  uint32 version_end
//	offset 8  uint32 bytes_updated_hint   (sized layouts only)
//	offset 8 or 12: payload
//
// The Writer advances version_begin, overwrites the payload and then sets version_end to
// the same value. A Reader copies the region and accepts the copy only when begin == end
// before the copy, inside the copied bytes, and again after the copy. Readers never write
// to the region and never block the writer; a torn read is detected and retried, at most
// MaxRetries times per Poll. The final check compares only the version pair, so a writer
// that completes exactly 2^32 publishes between the copy and that check goes unnoticed.
//
// Example usage:
//
//	r := shm.NewReader[Telemetry](shm.WithSkipUnchanged(true))
//	if err := r.Connect(ctx, "$rFactor2SMMP_Telemetry$"); err != nil {
//		// producer not running, retry later
//	}
//	v, status := r.Poll()
//
// Payload types must be fixed-size, pointer-free and free of implicit padding. Multi-byte
// fields are read in host byte order; the header is little-endian, so hosts must be too.
package shm
