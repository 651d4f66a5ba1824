//go:build windows

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
	"unsafe"

	"golang.org/x/sys/windows"
)

var procOpenFileMappingW = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

// RegionPath returns the object name of a named region. Windows mappings have no file path.
func RegionPath(name string) string {
	return name
}

// pageRound rounds size up to whole pages. Sections are only observable at page granularity.
func pageRound(size int) uintptr {
	page := uintptr(windows.Getpagesize())
	return (uintptr(size) + page - 1) / page * page
}

func openFileMapping(access uint32, name *uint16) (windows.Handle, error) {
	r, _, err := procOpenFileMappingW.Call(uintptr(access), 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return 0, os.ErrNotExist
		}
		return 0, err
	}
	return windows.Handle(r), nil
}

// MapRegion maps or creates a shared memory region (Windows implementation).
// Regions are backed by the paging file and live as long as any process holds a handle.
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
	name, err := windows.UTF16PtrFromString(opts.Name)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", opts.Name, err)
	}

	access := uint32(windows.FILE_MAP_READ | windows.FILE_MAP_WRITE)
	if opts.ReadOnly && !opts.Create {
		access = windows.FILE_MAP_READ
	}

	var h windows.Handle
	if opts.Create {
		size := uint64(opts.Size)
		h, err = windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
			uint32(size>>32), uint32(size), name)
		// an existing mapping comes back as a valid handle plus ERROR_ALREADY_EXISTS
		if err != nil && !(errors.Is(err, windows.ERROR_ALREADY_EXISTS) && h != 0) {
			if h != 0 {
				_ = windows.CloseHandle(h)
			}
			return nil, fmt.Errorf("CreateFileMapping %s: %w", opts.Name, err)
		}
	} else {
		h, err = openFileMapping(access, name)
		if err != nil {
			return nil, fmt.Errorf("OpenFileMapping %s: %w", opts.Name, err)
		}
	}

	// map the whole section so VirtualQuery reports its size rather than the view's
	addr, err := windows.MapViewOfFile(h, access, 0, 0, 0)
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile %s: %w", opts.Name, err)
	}

	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info)); err != nil {
		_ = windows.UnmapViewOfFile(addr)
		_ = windows.CloseHandle(h)
		return nil, fmt.Errorf("VirtualQuery %s: %w", opts.Name, err)
	}
	if want := pageRound(opts.Size); info.RegionSize != want {
		_ = windows.UnmapViewOfFile(addr)
		_ = windows.CloseHandle(h)
		if info.RegionSize < want && !opts.Create {
			return nil, fmt.Errorf("%s has %d bytes, need %d: %w", opts.Name, info.RegionSize, want, ErrRegionTooSmall)
		}
		return nil, fmt.Errorf("%s has %d bytes, want %d: %w", opts.Name, info.RegionSize, want, ErrRegionSizeMismatch)
	}

	return &MappedRegion{
		Addr:   unsafe.Slice((*byte)(unsafe.Pointer(addr)), opts.Size),
		Name:   opts.Name,
		Path:   opts.Name,
		Size:   opts.Size,
		handle: uintptr(h),
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Windows implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&region.Addr[0])))
	region.Addr = nil
	if cerr := windows.CloseHandle(windows.Handle(region.handle)); cerr != nil && err == nil {
		return fmt.Errorf("CloseHandle: %w", cerr)
	}
	if err != nil {
		return fmt.Errorf("UnmapViewOfFile: %w", err)
	}
	return nil
}

// RemoveRegion is a no-op on Windows: the mapping disappears with its last handle.
func RemoveRegion(name string) error {
	return validateName(name)
}
