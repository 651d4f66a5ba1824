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

// Package health tracks whether the producers behind shared-memory regions are still
// advancing, and exposes that as liveness and readiness probes.
package health

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/seqshm/pkg/shm"
)

// DefaultFailureThreshold is the number of consecutive Failed or StuckFrame polls after which
// a producer is considered dead.
const DefaultFailureThreshold = 3

var (
	// ErrProducerStalled is reported by the liveness probe of a region whose producer stopped
	// mid-write or keeps tearing frames.
	ErrProducerStalled = errors.New("producer stalled")
	// ErrRegionDisconnected is reported by the readiness probe of an unmapped region.
	ErrRegionDisconnected = errors.New("region not connected")
)

type regionState struct {
	connected  bool
	streak     int
	last       shm.PollStatus
	lastChange time.Time
}

// Status is a point-in-time view of one region.
type Status struct {
	Region    string
	Connected bool
	Alive     bool
	Streak    int
	Last      shm.PollStatus
	Since     time.Time
}

// Tracker folds poll outcomes into per-region liveness. It is safe for concurrent use.
type Tracker struct {
	threshold int
	now       func() time.Time

	mu      sync.RWMutex
	regions map[string]*regionState

	handler healthcheck.Handler
}

// NewTracker returns a tracker. A threshold below 1 selects DefaultFailureThreshold.
func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &Tracker{
		threshold: threshold,
		now:       time.Now,
		regions:   make(map[string]*regionState),
		handler:   healthcheck.NewHandler(),
	}
}

// Threshold returns the failure streak at which a region stops being alive.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Register starts tracking region and adds its probes to the handler. It is a no-op for a
// region already tracked.
func (t *Tracker) Register(region string) {
	t.mu.Lock()
	_, ok := t.regions[region]
	if !ok {
		t.regions[region] = &regionState{last: shm.NotConnected, lastChange: t.now()}
	}
	t.mu.Unlock()
	if ok {
		return
	}
	t.handler.AddLivenessCheck(region+"-producer", func() error {
		if !t.Alive(region) {
			return fmt.Errorf("%s: %w", region, ErrProducerStalled)
		}
		return nil
	})
	t.handler.AddReadinessCheck(region+"-connected", func() error {
		if !t.Connected(region) {
			return fmt.Errorf("%s: %w", region, ErrRegionDisconnected)
		}
		return nil
	})
}

// Observe records one poll outcome and reports whether the region is still alive.
func (t *Tracker) Observe(region string, status shm.PollStatus) bool {
	t.Register(region)

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.regions[region]
	if st.last != status {
		st.lastChange = t.now()
	}
	st.last = status
	switch status {
	case shm.NotConnected:
		st.connected = false
		st.streak = 0
	case shm.Failed, shm.StuckFrame:
		st.connected = true
		st.streak++
	default:
		st.connected = true
		st.streak = 0
	}
	return t.aliveLocked(st)
}

// Alive reports whether region is connected and below the failure threshold.
func (t *Tracker) Alive(region string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.regions[region]
	if !ok {
		return false
	}
	return t.aliveLocked(st)
}

func (t *Tracker) aliveLocked(st *regionState) bool {
	return st.connected && st.streak < t.threshold
}

// Connected reports whether the last outcome for region came from a mapped region.
func (t *Tracker) Connected(region string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.regions[region]
	return ok && st.connected
}

// Status returns the state of region.
func (t *Tracker) Status(region string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.regions[region]
	if !ok {
		return Status{}, false
	}
	return Status{
		Region:    region,
		Connected: st.connected,
		Alive:     t.aliveLocked(st),
		Streak:    st.streak,
		Last:      st.last,
		Since:     st.lastChange,
	}, true
}

// Regions returns the tracked region names in order.
func (t *Tracker) Regions() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.regions))
	for name := range t.regions {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Forget drops the state of region. Its probes stay registered and report it as dead.
func (t *Tracker) Forget(region string) {
	t.mu.Lock()
	delete(t.regions, region)
	t.mu.Unlock()
}

// Handler serves /live (producers advancing) and /ready (regions connected).
func (t *Tracker) Handler() healthcheck.Handler {
	return t.handler
}
