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
	"errors"

	internalshm "github.com/srediag/seqshm/internal/shm"
)

var (
	// ErrNotConnected is returned when no region is bound, and wraps open failures caused by
	// an absent region (producer not running).
	ErrNotConnected = errors.New("shared memory region not connected")
	// ErrAlreadyConnected is returned by Connect on a bound reader or writer.
	ErrAlreadyConnected = errors.New("shared memory region already connected")
	// ErrLayoutMismatch means the region and the payload type disagree on size or the payload
	// type has no fixed byte layout. It is a configuration error and must not be retried.
	ErrLayoutMismatch = errors.New("shared memory layout mismatch")
	// ErrPrefixTooLarge is returned by PublishPrefix when n exceeds the payload size.
	ErrPrefixTooLarge = errors.New("prefix larger than payload")
	// ErrNoSizeHint is returned by PublishPrefix on a layout without a size hint.
	ErrNoSizeHint = errors.New("layout carries no size hint")
	// ErrUnsupportedPlatform is returned by Open where no named region backend exists.
	ErrUnsupportedPlatform = internalshm.ErrUnsupportedPlatform
)
