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

// Package shm contains platform-specific helpers for mapping named shared memory regions.
package shm

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedPlatform is returned by MapRegion on platforms without a named region backend.
	ErrUnsupportedPlatform = errors.New("shared memory regions are not supported on this platform")
	// ErrRegionTooSmall means an existing region is smaller than the requested mapping.
	ErrRegionTooSmall = errors.New("shared memory region is smaller than requested")
	// ErrRegionSizeMismatch means an existing region is larger than the requested mapping, or
	// a creator found it sized for a different layout.
	ErrRegionSizeMismatch = errors.New("shared memory region size does not match")
	// ErrNoSpace means the backing filesystem cannot hold a region of the requested size.
	ErrNoSpace = errors.New("not enough space left to create shared memory region")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid shared memory region name")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Name string
	// Path is the backing object path on platforms that expose one.
	Path string
	Size int

	handle uintptr
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name   string
	Size   int
	Create bool
	// ReadOnly maps the region without write access. Ignored when Create is set.
	ReadOnly bool
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_windows.go, platform_other.go).
