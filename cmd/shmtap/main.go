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

// Command shmtap publishes, watches and inspects seqlock shared-memory regions.
//
//	shmtap publish --name telemetry --rate 60 --size 256
//	shmtap watch   --name telemetry --interval 16ms --listen :9464
//	shmtap inspect --name telemetry
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/srediag/seqshm/pkg/shm"
)

const (
	cmdPublish = "publish"
	cmdWatch   = "watch"
	cmdInspect = "inspect"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: shmtap <publish|watch|inspect> [flags]")
	fmt.Fprintln(w, "run 'shmtap <command> --help' for the flags of a command")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "shmtap:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}
	cmd := args[0]
	switch cmd {
	case cmdPublish, cmdWatch, cmdInspect:
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := loadConfig(newFlagSet(cmd), args[1:])
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	shm.SetLogger(logger)

	switch cmd {
	case cmdPublish:
		return runPublish(ctx, cfg, logger)
	case cmdWatch:
		return runWatch(ctx, cfg, logger, out)
	default:
		return runInspect(ctx, cfg, out)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}
