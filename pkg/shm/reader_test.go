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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/suite"
)

type ReaderTestSuite struct {
	suite.Suite
	sleeps []time.Duration
}

func (s *ReaderTestSuite) SetupTest() {
	s.sleeps = nil
}

func (s *ReaderTestSuite) newReader(opts ...ReaderOption) (*Reader[blob], *memSource) {
	opts = append([]ReaderOption{WithSleep(func(d time.Duration) { s.sleeps = append(s.sleeps, d) })}, opts...)
	r := NewReader[blob](opts...)
	src := newMemSource(r.Layout())
	s.Require().NoError(r.Attach(src))
	return r, src
}

func (s *ReaderTestSuite) TestRoundTrip() {
	r, src := s.newReader()
	pattern := blob{}
	for i := range pattern {
		pattern[i] = byte(i * 7)
	}
	for i, want := range []blob{uniformBlob(0), uniformBlob(0xFF), pattern} {
		src.publish(uint32(i+1), want[:])
		got, status := r.Poll()
		s.Require().Equal(Updated, status)
		s.Equal(want, got)
	}
	st := r.Stats()
	s.Equal(uint64(3), st.Successes)
	s.Equal(uint64(0), st.Retries())
	s.Empty(s.sleeps)
}

func (s *ReaderTestSuite) TestReturnedValueIsACopy() {
	r, src := s.newReader()
	a := uniformBlob(0xAA)
	src.publish(1, a[:])
	got, status := r.Poll()
	s.Require().Equal(Updated, status)
	got[0] = 0

	again, status := r.Poll()
	s.Require().Equal(Updated, status)
	s.Equal(a, again)
}

func (s *ReaderTestSuite) TestUnchangedSkipsPayloadCopy() {
	r, src := s.newReader(WithSkipUnchanged(true))
	a := uniformBlob(0xAA)
	src.publish(1, a[:])
	_, status := r.Poll()
	s.Require().Equal(Updated, status)

	src.resetCounters()
	for i := 0; i < 5; i++ {
		_, status = r.Poll()
		s.Equal(Unchanged, status)
	}
	s.Equal(0, src.payloadReads)
	s.Equal(5, src.headerReads)
	st := r.Stats()
	s.Equal(uint64(5), st.SkippedUnchanged)
	s.Equal(uint64(1), st.Successes)

	b := uniformBlob(0xBB)
	src.publish(2, b[:])
	got, status := r.Poll()
	s.Equal(Updated, status)
	s.Equal(b, got)
}

func (s *ReaderTestSuite) TestFirstPollOfEmptyRegionIsRead() {
	r, src := s.newReader(WithSkipUnchanged(true))
	got, status := r.Poll()
	s.Equal(Updated, status)
	s.Equal(blob{}, got)
	s.Equal(1, src.payloadReads)

	_, status = r.Poll()
	s.Equal(Unchanged, status)
}

func (s *ReaderTestSuite) TestStuckFrameShortCircuit() {
	r, src := s.newReader()
	src.setBegin(5)
	src.setEnd(4)

	_, status := r.Poll()
	s.Require().Equal(Failed, status)
	st := r.Stats()
	s.Equal(uint64(DefaultMaxRetries), st.PreCheckRetries)
	s.Equal(uint64(1), st.HardFailures)
	s.Equal(uint64(DefaultMaxRetries), st.MaxRetriesSeen)
	s.Equal(0, src.payloadReads)
	s.Len(s.sleeps, DefaultMaxRetries-1)
	for _, d := range s.sleeps {
		s.Equal(DefaultRetrySleep, d)
	}

	src.resetCounters()
	s.sleeps = nil
	for i := 0; i < 3; i++ {
		_, status = r.Poll()
		s.Equal(StuckFrame, status)
	}
	s.Equal(3, src.headerReads)
	s.Equal(0, src.payloadReads)
	s.Empty(s.sleeps)
	s.Equal(uint64(3), r.Stats().StuckFrames)
	s.Equal(uint64(1), r.Stats().HardFailures)

	b := uniformBlob(0xBB)
	src.writePayload(0, b[:])
	src.setEnd(5)
	got, status := r.Poll()
	s.Equal(Updated, status)
	s.Equal(b, got)

	// the stuck pair only short-circuits while the region still shows it
	src.setBegin(6)
	_, status = r.Poll()
	s.Equal(Failed, status)
	src.setBegin(5)
	_, status = r.Poll()
	s.Equal(Updated, status)
}

func (s *ReaderTestSuite) TestTornMainReadScenario() {
	r, src := s.newReader()
	a, b := uniformBlob(0xAA), uniformBlob(0xBB)
	src.publish(1, a[:])
	got, status := r.Poll()
	s.Require().Equal(Updated, status)
	s.Require().Equal(a, got)

	src.resetCounters()
	src.hook = func(call int) {
		switch call {
		case 2: // writer starts (2,2) right before the main copy
			src.setBegin(2)
			src.writePayload(0, b[:32])
		case 3: // and finishes it before the retry
			src.writePayload(32, b[32:])
			src.setEnd(2)
		}
	}
	got, status = r.Poll()
	s.Require().Equal(Updated, status)
	s.Equal(b, got)
	s.True(isUniform(got))
	s.Equal(uint64(1), r.Stats().MainReadRetries)
	s.Equal(uint64(1), r.Stats().MaxRetriesSeen)
	s.Len(s.sleeps, 1)

	src.hook = nil
	got, status = r.Poll()
	s.Equal(Updated, status)
	s.Equal(b, got)
}

func (s *ReaderTestSuite) TestPostCheckDetectsNewWrite() {
	r, src := s.newReader()
	a, b := uniformBlob(0xAA), uniformBlob(0xBB)
	src.publish(1, a[:])
	src.hook = func(call int) {
		if call == 3 {
			src.publish(2, b[:])
		}
	}
	got, status := r.Poll()
	s.Require().Equal(Updated, status)
	s.Equal(b, got)
	st := r.Stats()
	s.Equal(uint64(1), st.PostCheckRetries)
	s.Equal(uint64(0), st.MainReadRetries)
	s.Equal(6, src.calls)
}

func (s *ReaderTestSuite) TestPreCheckWaitsForWriter() {
	r, src := s.newReader()
	a, b := uniformBlob(0xAA), uniformBlob(0xBB)
	src.publish(1, a[:])
	src.hook = func(call int) {
		switch call {
		case 1:
			src.setBegin(2)
		case 3:
			src.writePayload(0, b[:])
			src.setEnd(2)
		}
	}
	got, status := r.Poll()
	s.Require().Equal(Updated, status)
	s.Equal(b, got)
	s.Equal(uint64(2), r.Stats().PreCheckRetries)
	s.Len(s.sleeps, 2)
}

func (s *ReaderTestSuite) TestWorstCaseBlocksForBoundedPauses() {
	r, src := s.newReader()
	// every copy is torn: pre-check consistent, copied header not
	src.hook = func(call int) {
		if call%2 == 1 {
			src.setBegin(1)
			src.setEnd(1)
		} else {
			src.setBegin(2)
		}
	}
	_, status := r.Poll()
	s.Equal(Failed, status)
	s.Equal(uint64(DefaultMaxRetries), r.Stats().MainReadRetries)
	s.Len(s.sleeps, DefaultMaxRetries-1)

	var total time.Duration
	for _, d := range s.sleeps {
		total += d
	}
	s.LessOrEqual(total, time.Duration(DefaultMaxRetries)*DefaultRetrySleep)
}

func (s *ReaderTestSuite) TestMaxRetriesOption() {
	r, src := s.newReader(WithMaxRetries(3))
	src.setBegin(1)
	_, status := r.Poll()
	s.Equal(Failed, status)
	s.Equal(uint64(3), r.Stats().PreCheckRetries)
	s.Len(s.sleeps, 2)
}

func (s *ReaderTestSuite) TestBackOffStopEndsPoll() {
	r, src := s.newReader(WithBackOff(&backoff.StopBackOff{}))
	src.setBegin(1)
	_, status := r.Poll()
	s.Equal(Failed, status)
	s.Equal(uint64(1), r.Stats().PreCheckRetries)
	s.Empty(s.sleeps)
}

func (s *ReaderTestSuite) TestPartialKeepsTail() {
	r := NewReader[blob](WithPartial(true), WithSleep(func(time.Duration) {}))
	s.Require().Equal(SizedHeaderSize, r.Layout().HeaderLen())
	src := newMemSource(r.Layout())
	s.Require().NoError(r.Attach(src))

	a, b := uniformBlob(0xAA), uniformBlob(0xBB)
	src.publish(1, a[:])
	got, status := r.Poll()
	s.Require().Equal(Updated, status)
	s.Require().Equal(a, got)
	s.Equal(SizedHeaderSize+64, src.lastLen)

	src.setBegin(2)
	src.setHint(16)
	src.writePayload(0, b[:16])
	src.setEnd(2)
	got, status = r.Poll()
	s.Require().Equal(Updated, status)
	s.Equal(SizedHeaderSize+16, src.lastLen)
	for i := range got {
		if i < 16 {
			s.Equal(byte(0xBB), got[i])
		} else {
			s.Equal(byte(0xAA), got[i])
		}
	}

	// a hint past the payload falls back to the full size
	src.setBegin(3)
	src.setHint(1000)
	src.setEnd(3)
	_, status = r.Poll()
	s.Equal(Updated, status)
	s.Equal(SizedHeaderSize+64, src.lastLen)
}

func (s *ReaderTestSuite) TestNotConnected() {
	r := NewReader[blob]()
	s.False(r.Connected())
	_, status := r.Poll()
	s.Equal(NotConnected, status)
	s.Equal("not_connected", status.String())
}

func (s *ReaderTestSuite) TestAttachValidation() {
	r := NewReader[blob]()
	small := newMemSource(Layout{PayloadSize: 8})
	s.ErrorIs(r.Attach(small), ErrLayoutMismatch)
	s.ErrorIs(r.Attach(newMemSource(Layout{PayloadSize: 128})), ErrLayoutMismatch)
	s.ErrorIs(r.Attach(newMemSource(Layout{Sized: true, PayloadSize: 64})), ErrLayoutMismatch)

	s.Require().NoError(r.Attach(newMemSource(r.Layout())))
	s.ErrorIs(r.Attach(newMemSource(r.Layout())), ErrAlreadyConnected)

	type padded struct {
		A uint8
		B uint64
	}
	p := NewReader[padded]()
	s.ErrorIs(p.Attach(newMemSource(Layout{PayloadSize: 16})), ErrLayoutMismatch)
}

func (s *ReaderTestSuite) TestDisconnectResetsState() {
	r, src := s.newReader(WithSkipUnchanged(true))
	a := uniformBlob(0xAA)
	src.publish(1, a[:])
	_, status := r.Poll()
	s.Require().Equal(Updated, status)
	_, status = r.Poll()
	s.Require().Equal(Unchanged, status)

	s.Require().NoError(r.Disconnect())
	s.False(r.Connected())
	s.Equal(ReaderStats{}, r.Stats())

	s.Require().NoError(r.Attach(src))
	got, status := r.Poll()
	s.Equal(Updated, status)
	s.Equal(a, got)
}

func (s *ReaderTestSuite) TestResetStats() {
	r, src := s.newReader()
	a := uniformBlob(1)
	src.publish(1, a[:])
	_, _ = r.Poll()
	s.Equal(uint64(1), r.Stats().Successes)
	r.ResetStats()
	s.Equal(ReaderStats{}, r.Stats())
}

func (s *ReaderTestSuite) TestPollStatusString() {
	s.Equal("updated", Updated.String())
	s.Equal("unchanged", Unchanged.String())
	s.Equal("stuck_frame", StuckFrame.String())
	s.Equal("failed", Failed.String())
	s.Equal("PollStatus(42)", PollStatus(42).String())
}

func TestReaderTestSuite(t *testing.T) {
	suite.Run(t, new(ReaderTestSuite))
}
