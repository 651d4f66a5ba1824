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
	"time"

	"go.uber.org/zap"

	"github.com/srediag/seqshm/pkg/shm"
)

func runPublish(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	switch cfg.Size {
	case 64:
		return publishFrames(ctx, cfg, logger, func(f *frame64) []byte { return f[:] })
	case 256:
		return publishFrames(ctx, cfg, logger, func(f *frame256) []byte { return f[:] })
	case 1024:
		return publishFrames(ctx, cfg, logger, func(f *frame1024) []byte { return f[:] })
	default:
		return publishFrames(ctx, cfg, logger, func(f *frame4096) []byte { return f[:] })
	}
}

func publishFrames[T any](ctx context.Context, cfg *Config, logger *zap.Logger, bytesOf func(*T) []byte) error {
	if cfg.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", cfg.Rate)
	}
	if cfg.Prefix > 0 && !cfg.Sized {
		return errors.New("--prefix needs --sized")
	}

	w := shm.NewWriter[T](shm.WithWriterSizeHint(cfg.Sized), shm.WithWriterLogger(logger))
	if err := w.Connect(ctx, cfg.Reader.Name); err != nil {
		return err
	}
	defer func() { _ = w.Disconnect() }()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Rate))
	defer ticker.Stop()

	var frame T
	for seq := uint64(1); cfg.Count == 0 || seq <= uint64(cfg.Count); seq++ {
		select {
		case <-ctx.Done():
			logger.Info("publisher stopped", zap.Uint32("version", w.Version()))
			return nil
		case <-ticker.C:
		}
		stampFrame(bytesOf(&frame), seq, time.Now())
		var err error
		if cfg.Prefix > 0 {
			err = w.PublishPrefix(frame, cfg.Prefix)
		} else {
			err = w.Publish(frame)
		}
		if err != nil {
			return err
		}
		if seq%uint64(max(cfg.Rate, 1)) == 0 {
			logger.Debug("published", zap.Uint64("seq", seq), zap.Uint32("version", w.Version()))
		}
	}
	logger.Info("publisher done", zap.Int("frames", cfg.Count), zap.Uint32("version", w.Version()))
	return nil
}
