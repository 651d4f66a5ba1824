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
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything that reports ReaderStats, typically a *Reader.
type StatsSource interface {
	Stats() ReaderStats
}

type statDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(ReaderStats) uint64
}

// StatsCollector exports the counters of named readers as prometheus metrics labelled by region.
type StatsCollector struct {
	mu      sync.RWMutex
	sources map[string]StatsSource
	descs   []statDesc
}

// NewStatsCollector returns an empty collector. Metric names carry the given namespace
// (seqshm when empty).
func NewStatsCollector(namespace string) *StatsCollector {
	if namespace == "" {
		namespace = "seqshm"
	}
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "reader", name), help, []string{"region"}, nil)
	}
	return &StatsCollector{
		sources: make(map[string]StatsSource),
		descs: []statDesc{
			{d("precheck_retries_total", "Retries caused by a write in progress before the copy."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.PreCheckRetries }},
			{d("mainread_retries_total", "Retries caused by a torn header inside the copied bytes."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.MainReadRetries }},
			{d("postcheck_retries_total", "Retries caused by a write starting right after the copy."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.PostCheckRetries }},
			{d("failures_total", "Polls that exhausted their retries."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.HardFailures }},
			{d("stuck_frames_total", "Polls short-circuited on the version pair of the last failure."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.StuckFrames }},
			{d("unchanged_total", "Polls skipped because the version did not move."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.SkippedUnchanged }},
			{d("updates_total", "Consistent snapshots read."), prometheus.CounterValue,
				func(s ReaderStats) uint64 { return s.Successes }},
			{d("max_retries", "Largest number of retries spent by one poll."), prometheus.GaugeValue,
				func(s ReaderStats) uint64 { return s.MaxRetriesSeen }},
		},
	}
}

// Add registers a source under a region name, replacing any previous one.
func (c *StatsCollector) Add(region string, src StatsSource) {
	c.mu.Lock()
	c.sources[region] = src
	c.mu.Unlock()
}

// Remove forgets a region.
func (c *StatsCollector) Remove(region string) {
	c.mu.Lock()
	delete(c.sources, region)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	stats := make([]ReaderStats, len(names))
	for i, name := range names {
		stats[i] = c.sources[name].Stats()
	}
	c.mu.RUnlock()

	for i, name := range names {
		for _, d := range c.descs {
			ch <- prometheus.MustNewConstMetric(d.desc, d.kind, float64(d.value(stats[i])), name)
		}
	}
}
