//go:build linux

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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const devShm = "/dev/shm"

// RegionPath returns the backing file path for a named region.
func RegionPath(name string) string {
	if info, err := os.Stat(devShm); err == nil && info.IsDir() {
		return filepath.Join(devShm, name)
	}
	return filepath.Join(os.TempDir(), name)
}

// canCreate reports whether the filesystem holding path has room for size more bytes.
// Only tmpfs under /dev/shm is checked, anything else is assumed to fit.
func canCreate(size uint64, path string) bool {
	if filepath.Dir(path) != devShm {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// MapRegion maps or creates a shared memory region (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("map %s: invalid size %d", opts.Name, opts.Size)
	}
	shmPath := RegionPath(opts.Name)

	flags := unix.O_RDWR | unix.O_CLOEXEC
	prot := unix.PROT_READ | unix.PROT_WRITE
	if opts.ReadOnly && !opts.Create {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
		prot = unix.PROT_READ
	}
	if opts.Create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(shmPath, flags, 0600)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("open %s: %w", shmPath, os.ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", shmPath, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	switch {
	case st.Size == int64(opts.Size):
	case st.Size == 0 && opts.Create:
		if !canCreate(uint64(opts.Size), shmPath) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("%s size %d: %w", shmPath, opts.Size, ErrNoSpace)
		}
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	case st.Size < int64(opts.Size) && !opts.Create:
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s has %d bytes, need %d: %w", shmPath, st.Size, opts.Size, ErrRegionTooSmall)
	default:
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s has %d bytes, want %d: %w", shmPath, st.Size, opts.Size, ErrRegionSizeMismatch)
	}

	addr, err := unix.Mmap(fd, 0, opts.Size, prot, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr:   addr,
		Name:   opts.Name,
		Path:   shmPath,
		Size:   opts.Size,
		handle: uintptr(fd),
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	err := unix.Munmap(region.Addr)
	region.Addr = nil
	if cerr := unix.Close(int(region.handle)); cerr != nil && err == nil {
		return fmt.Errorf("close: %w", cerr)
	}
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// RemoveRegion unlinks the backing file of a named region. Existing mappings stay valid.
func RemoveRegion(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(RegionPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
