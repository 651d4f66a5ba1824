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

// Package lifecycle supervises readers of many regions: reconnecting, polling and
// reporting health for each.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/srediag/seqshm/pkg/shm"
)

var (
	// ErrDuplicateRegion is returned by Add for a region already in the group.
	ErrDuplicateRegion = errors.New("region already supervised")
	// ErrGroupStopped is returned when adding to or starting a stopped group.
	ErrGroupStopped = errors.New("group stopped")
)

// Runner is a supervised unit. *Monitor[T] implements it for any T.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	Stats() shm.ReaderStats
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupLogger sets the group logger.
func WithGroupLogger(l *zap.Logger) GroupOption {
	return func(g *Group) { g.logger = l }
}

// WithCollector registers every runner's counters with c.
func WithCollector(c *shm.StatsCollector) GroupOption {
	return func(g *Group) { g.collector = c }
}

// Group runs monitors of different regions, each on its own pool worker.
type Group struct {
	runners   cmap.ConcurrentMap[string, Runner]
	errs      cmap.ConcurrentMap[string, error]
	pool      *ants.Pool
	logger    *zap.Logger
	collector *shm.StatsCollector

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewGroup returns a group able to run size monitors at once. A size of zero or less
// means no limit.
func NewGroup(size int, opts ...GroupOption) (*Group, error) {
	g := &Group{
		runners: cmap.New[Runner](),
		errs:    cmap.New[error](),
		logger:  shm.Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			g.logger.Error("monitor panicked", zap.Any("panic", p))
		}))
	if err != nil {
		return nil, err
	}
	g.pool = pool
	return g, nil
}

// Add registers r. If the group is running, r starts immediately.
func (g *Group) Add(r Runner) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrGroupStopped
	}
	if !g.runners.SetIfAbsent(r.Name(), r) {
		return fmt.Errorf("%s: %w", r.Name(), ErrDuplicateRegion)
	}
	if g.collector != nil {
		g.collector.Add(r.Name(), r)
	}
	if g.ctx != nil {
		if err := g.submit(r); err != nil {
			g.forget(r.Name())
			return err
		}
	}
	return nil
}

// Start runs every registered monitor until Stop or until ctx is done.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrGroupStopped
	}
	if g.ctx != nil {
		return nil
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	for item := range g.runners.IterBuffered() {
		if err := g.submit(item.Val); err != nil {
			g.cancel()
			return err
		}
	}
	g.logger.Info("group started", zap.Int("regions", g.runners.Count()))
	return nil
}

func (g *Group) submit(r Runner) error {
	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		err := r.Run(g.ctx)
		if err != nil && g.ctx.Err() == nil {
			g.errs.Set(r.Name(), err)
			g.logger.Error("monitor exited", zap.String("region", r.Name()), zap.Error(err))
		}
	})
	if err != nil {
		g.wg.Done()
		return fmt.Errorf("start %s: %w", r.Name(), err)
	}
	return nil
}

func (g *Group) forget(name string) {
	g.runners.Remove(name)
	if g.collector != nil {
		g.collector.Remove(name)
	}
}

// Stop cancels every monitor, waits for them to return and releases the pool.
func (g *Group) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()

	g.wg.Wait()
	g.pool.Release()
	g.logger.Info("group stopped")
}

// Names returns the supervised region names in order.
func (g *Group) Names() []string {
	names := g.runners.Keys()
	sort.Strings(names)
	return names
}

// Get returns the runner supervising region.
func (g *Group) Get(region string) (Runner, bool) {
	return g.runners.Get(region)
}

// Err returns the error a monitor exited with, if any.
func (g *Group) Err(region string) error {
	err, _ := g.errs.Get(region)
	return err
}
