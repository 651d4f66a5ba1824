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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/srediag/seqshm/pkg/health"
	"github.com/srediag/seqshm/pkg/lifecycle"
	"github.com/srediag/seqshm/pkg/shm"
	"github.com/srediag/seqshm/pkg/transport"
)

const statusEvery = 5 * time.Second

func runWatch(ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer) error {
	if err := shm.VerifyConfig(&cfg.Reader); err != nil {
		return err
	}
	switch cfg.Size {
	case 64:
		return watchFrames(ctx, cfg, logger, out, func(f *frame64) []byte { return f[:] })
	case 256:
		return watchFrames(ctx, cfg, logger, out, func(f *frame256) []byte { return f[:] })
	case 1024:
		return watchFrames(ctx, cfg, logger, out, func(f *frame1024) []byte { return f[:] })
	default:
		return watchFrames(ctx, cfg, logger, out, func(f *frame4096) []byte { return f[:] })
	}
}

func watchFrames[T any](ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer, bytesOf func(*T) []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := cfg.Reader.Name
	tracker := health.NewTracker(health.DefaultFailureThreshold)
	collector := shm.NewStatsCollector("")
	readerOpts := append(cfg.Reader.ReaderOptions(), shm.WithLogger(logger))
	monitor := lifecycle.NewMonitor[T](name,
		lifecycle.WithInterval(cfg.Interval),
		lifecycle.WithTracker(tracker),
		lifecycle.WithMonitorLogger(logger),
		lifecycle.WithReaderOptions(readerOpts...))

	group, err := lifecycle.NewGroup(1, lifecycle.WithGroupLogger(logger), lifecycle.WithCollector(collector))
	if err != nil {
		return err
	}
	defer group.Stop()
	if err := group.Add(monitor); err != nil {
		return err
	}

	if cfg.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector, collectors.NewGoCollector())
		srv, err := serve(cfg.Listen, reg, tracker, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := group.Start(ctx); err != nil {
		return err
	}

	checkLen := len(bytesOf(new(T)))
	if cfg.Reader.Partial {
		checkLen = frameStampLen
	}
	p := &printer{out: out, name: name, tracker: tracker, monitor: monitor}
	return consume(ctx, monitor.Feed(), p, bytesOf, checkLen)
}

func consume[T any](ctx context.Context, feed *transport.Feed[T], p *printer, bytesOf func(*T) []byte, checkLen int) error {
	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()

	next := make(chan T)
	go func() {
		defer close(next)
		for {
			v, err := feed.Next(ctx)
			if err != nil {
				return
			}
			select {
			case next <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			p.status()
			return nil
		case <-ticker.C:
			p.status()
		case v, ok := <-next:
			if !ok {
				p.status()
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("monitor stopped")
			}
			seq, at, clean := readStamp(bytesOf(&v), checkLen)
			p.frame(seq, time.Since(at), clean)
		}
	}
}

func serve(addr string, reg *prometheus.Registry, tracker *health.Tracker, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	probes := tracker.Handler()
	mux.Handle("/live", probes)
	mux.Handle("/ready", probes)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics and probes", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

// printer reports frames and periodic reader status.
type printer struct {
	out     io.Writer
	name    string
	tracker *health.Tracker
	monitor lifecycle.Runner

	frames  uint64
	torn    uint64
	lastSeq uint64
	skipped uint64
	latency time.Duration
}

func (p *printer) frame(seq uint64, latency time.Duration, clean bool) {
	p.frames++
	if !clean {
		p.torn++
	}
	if p.lastSeq != 0 && seq > p.lastSeq+1 {
		p.skipped += seq - p.lastSeq - 1
	}
	p.lastSeq = seq
	p.latency = latency
}

func (p *printer) status() {
	st, _ := p.tracker.Status(p.name)
	stats := p.monitor.Stats()
	fmt.Fprintf(p.out, "%s alive=%t connected=%t last=%s seq=%d frames=%d skipped=%d torn=%d latency=%s\n",
		p.name, st.Alive, st.Connected, st.Last, p.lastSeq, p.frames, p.skipped, p.torn, p.latency)
	fmt.Fprintf(p.out, "%s retries pre=%d main=%d post=%d failures=%d stuck=%d unchanged=%d max=%d\n",
		p.name, stats.PreCheckRetries, stats.MainReadRetries, stats.PostCheckRetries,
		stats.HardFailures, stats.StuckFrames, stats.SkippedUnchanged, stats.MaxRetriesSeen)
}
