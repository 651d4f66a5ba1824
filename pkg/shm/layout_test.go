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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSizes(t *testing.T) {
	assert.Equal(t, uintptr(HeaderSize), unsafe.Sizeof(VersionHeader{}))
	assert.Equal(t, uintptr(SizedHeaderSize), unsafe.Sizeof(VersionHeaderWithSize{}))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(VersionHeader{}.VersionEnd))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(VersionHeaderWithSize{}.BytesUpdatedHint))
}

func TestLayoutSizes(t *testing.T) {
	l := Layout{PayloadSize: 100}
	assert.Equal(t, HeaderSize, l.HeaderLen())
	assert.Equal(t, 108, l.RegionSize())

	l.Sized = true
	assert.Equal(t, SizedHeaderSize, l.HeaderLen())
	assert.Equal(t, 112, l.RegionSize())
}

func TestHeaderEncoding(t *testing.T) {
	b := make([]byte, SizedHeaderSize)
	h := VersionHeaderWithSize{VersionHeader: VersionHeader{VersionBegin: 7, VersionEnd: 6}, BytesUpdatedHint: 40}
	EncodeHeader(b, h, true)
	assert.Equal(t, []byte{7, 0, 0, 0, 6, 0, 0, 0, 40, 0, 0, 0}, b)
	assert.Equal(t, h, DecodeHeader(b, true))

	unsized := DecodeHeader(b, false)
	assert.Equal(t, uint32(0), unsized.BytesUpdatedHint)
	assert.False(t, unsized.Consistent())
	assert.Equal(t, "(7,6)", unsized.VersionHeader.String())
}

func TestPayloadSize(t *testing.T) {
	n, err := PayloadSize[sample]()
	require.NoError(t, err)
	assert.Equal(t, 56, n)

	n, err = PayloadSize[blob]()
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	type padded struct {
		A uint8
		B uint32
	}
	_, err = PayloadSize[padded]()
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	type withPointer struct {
		P *int
	}
	_, err = PayloadSize[withPointer]()
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = PayloadSize[struct{}]()
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestPayloadBytesAliasesValue(t *testing.T) {
	var v sample
	b := payloadBytes(&v)
	require.Len(t, b, 56)
	b[0] = 9
	assert.Equal(t, uint32(9), v.Seq)
}
