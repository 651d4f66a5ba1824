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
	"io"

	"github.com/srediag/seqshm/pkg/shm"
)

// runInspect maps the region read-only and prints its header and the start of the payload.
func runInspect(ctx context.Context, cfg *Config, out io.Writer) error {
	region, err := shm.Open(ctx, shm.OpenOptions{
		Name:     cfg.Reader.Name,
		Layout:   shm.Layout{Sized: cfg.Sized, PayloadSize: cfg.Size},
		ReadOnly: true,
	})
	if err != nil {
		return err
	}
	defer region.Close()

	mem := make([]byte, region.Size())
	if _, err := region.ReadAt(mem, 0); err != nil {
		return err
	}
	_, err = io.WriteString(out, shm.FormatRegionDetail(region.Name(), mem, cfg.Sized))
	return err
}
