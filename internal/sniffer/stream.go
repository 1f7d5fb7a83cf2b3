package sniffer

import (
	"encoding/binary"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

const (
	// maxFrameLen bounds a plausible application frame. Legitimate
	// frames are a few kB; anything above this means the splitter lost
	// alignment with the stream.
	maxFrameLen = 0x0FFFFF

	// streamStallTimeout unlocks the flow when no contiguous byte
	// arrived for this long; the game connection is presumed gone.
	streamStallTimeout = 30 * time.Second

	seqUnsynced = -1
)

// stream reorders TCP segments of the locked flow into a contiguous
// byte buffer and splits it into length-prefixed application frames.
type stream struct {
	data       []byte            // contiguous bytes not yet split into frames
	nextSeq    int64             // next expected sequence, seqUnsynced when lost
	cache      map[uint32][]byte // out-of-order segments keyed by sequence
	lastContig time.Time         // when the last contiguous byte arrived
}

func newStream() *stream {
	return &stream{
		nextSeq: seqUnsynced,
		cache:   make(map[uint32][]byte),
	}
}

// reset drops all reassembly state, returning to the unsynced state.
func (s *stream) reset() {
	if n := len(s.cache); n > 0 {
		metrics.SegmentsCached.Sub(float64(n))
	}
	s.data = nil
	s.nextSeq = seqUnsynced
	s.cache = make(map[uint32][]byte)
	s.lastContig = time.Time{}
}

// seed restarts reassembly at the given sequence number.
func (s *stream) seed(seq uint32) {
	s.reset()
	s.nextSeq = int64(seq)
}

// push feeds one segment of the locked flow into the reassembler and
// appends every byte that became contiguous to the pending buffer.
func (s *stream) push(seg core.TCPSegment) {
	payload := seg.Payload
	if len(payload) == 0 {
		return
	}

	// Desynchronised: adopt this segment as the new stream origin when
	// its head looks like a frame length. A mid-frame segment would
	// carry an implausibly large value here.
	if s.nextSeq == seqUnsynced {
		if len(payload) < 4 || binary.BigEndian.Uint32(payload[0:4]) >= maxFrameLen {
			return
		}
		s.nextSeq = int64(seg.Seq)
	}

	// Signed 32-bit distance tolerates sequence wraparound: <= 0 means
	// the segment starts at or ahead of the expected byte, > 0 means it
	// only repeats bytes already consumed.
	if int32(uint32(s.nextSeq)-seg.Seq) > 0 {
		return
	}
	if _, dup := s.cache[seg.Seq]; !dup {
		metrics.SegmentsCached.Inc()
	}
	s.cache[seg.Seq] = append([]byte(nil), payload...)

	for {
		next := uint32(s.nextSeq)
		chunk, ok := s.cache[next]
		if !ok {
			break
		}
		s.data = append(s.data, chunk...)
		delete(s.cache, next)
		metrics.SegmentsCached.Dec()
		s.nextSeq = int64(next + uint32(len(chunk))) // wraps mod 2^32
		s.lastContig = seg.Timestamp
	}
}

// splitFrames pops complete length-prefixed frames off the pending
// buffer. The 4-byte big-endian prefix counts itself, so a frame is
// delivered with its prefix intact. An implausible length is fatal:
// the splitter can never realign once it has consumed wrong bytes.
func (s *stream) splitFrames(emit func(frame []byte) error) error {
	for len(s.data) >= 4 {
		frameLen := int(binary.BigEndian.Uint32(s.data[0:4]))
		if frameLen > maxFrameLen {
			return core.ErrFrameTooLarge
		}
		if frameLen < 4 {
			return core.ErrZeroLengthFrame
		}
		if len(s.data) < frameLen {
			return nil
		}

		frame := make([]byte, frameLen)
		copy(frame, s.data[:frameLen])
		s.data = s.data[frameLen:]
		metrics.FramesTotal.Inc()

		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// stalled reports whether the flow has been silent past the stall
// timeout. Never true before the first contiguous byte.
func (s *stream) stalled(now time.Time) bool {
	return !s.lastContig.IsZero() && now.Sub(s.lastContig) > streamStallTimeout
}

func (s *stream) cached() int { return len(s.cache) }
