//go:build !linux && !windows

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

import "context"

// RegionPath returns the name unchanged.
func RegionPath(name string) string {
	return name
}

// MapRegion always fails with ErrUnsupportedPlatform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

// UnmapRegion is a no-op.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}

// RemoveRegion is a no-op.
func RemoveRegion(name string) error {
	return nil
}
