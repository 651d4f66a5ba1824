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

import "sync"

// ReaderStats are diagnostic counters of a Reader. They accumulate between resets and carry
// no meaning for correctness.
type ReaderStats struct {
	PreCheckRetries  uint64
	MainReadRetries  uint64
	PostCheckRetries uint64
	HardFailures     uint64
	StuckFrames      uint64
	SkippedUnchanged uint64
	Successes        uint64
	// MaxRetriesSeen is the largest number of retries spent by a single Poll.
	MaxRetriesSeen uint64
}

// Retries returns the sum of all retry counters.
func (s ReaderStats) Retries() uint64 {
	return s.PreCheckRetries + s.MainReadRetries + s.PostCheckRetries
}

// statsBox guards ReaderStats so that Stats may be read from another goroutine (metrics
// scrapes) while the owner polls.
type statsBox struct {
	mu sync.Mutex
	s  ReaderStats
}

func (b *statsBox) update(f func(s *ReaderStats)) {
	b.mu.Lock()
	f(&b.s)
	b.mu.Unlock()
}

func (b *statsBox) snapshot() ReaderStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

func (b *statsBox) reset() {
	b.mu.Lock()
	b.s = ReaderStats{}
	b.mu.Unlock()
}
