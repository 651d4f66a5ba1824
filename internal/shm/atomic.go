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
	"fmt"
	"sync/atomic"
	"unsafe"
)

func wordAt(mem []byte, off int) *uint32 {
	if off < 0 || off%4 != 0 || off+4 > len(mem) {
		panic(fmt.Sprintf("shm: unaligned or out of range word offset %d (len %d)", off, len(mem)))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%4 != 0 {
		panic(fmt.Sprintf("shm: word at offset %d is not 4-byte aligned", off))
	}
	return (*uint32)(p)
}

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
// off must be a multiple of 4; mapped memory is page aligned so the address is too.
func AtomicLoadUint32(mem []byte, off int) uint32 {
	return atomic.LoadUint32(wordAt(mem, off))
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(mem []byte, off int, val uint32) {
	atomic.StoreUint32(wordAt(mem, off), val)
}
