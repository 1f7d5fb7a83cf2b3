package sniffer

import (
	"sync"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

// FrameFunc receives one complete application frame, length prefix
// included. Returning an error aborts processing of the packet and is
// escalated by the pipeline; it is reserved for unrecoverable stream
// corruption.
type FrameFunc func(frame []byte) error

// Options wires the sniffer to its collaborators.
type Options struct {
	// OnFrame is invoked for every application frame reconstructed from
	// the locked flow, in byte-stream order.
	OnFrame FrameFunc

	// OnServerChange is invoked whenever the locked scene server
	// endpoint changes, including the first lock.
	OnServerChange func(server core.FlowKey)

	Logger log.Logger
}

// Sniffer turns raw captured frames into ordered application frames:
// link-layer strip, IPv4 defragmentation, scene-flow discovery, TCP
// reassembly and frame splitting. One mutex serialises all of it; the
// processing worker is the only caller on the hot path, periodic
// maintenance is the only other entry point.
type Sniffer struct {
	mu      sync.Mutex
	defrag  *defragmenter
	stream  *stream
	server  core.FlowKey
	onFrame FrameFunc
	onLock  func(core.FlowKey)
	log     log.Logger
}

func New(opts Options) *Sniffer {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	onFrame := opts.OnFrame
	if onFrame == nil {
		onFrame = func([]byte) error { return nil }
	}
	return &Sniffer{
		defrag:  newDefragmenter(),
		stream:  newStream(),
		onFrame: onFrame,
		onLock:  opts.OnServerChange,
		log:     logger,
	}
}

// HandlePacket processes one captured link-layer frame to completion.
// Malformed packets are counted and dropped; only unrecoverable stream
// corruption returns an error.
func (s *Sniffer) HandlePacket(frame core.RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ipData, ok := decodeLink(frame.Link, frame.Data)
	if !ok {
		metrics.LinkDiscardsTotal.Inc()
		return nil
	}

	hdr, payload, err := parseIPv4(ipData)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		return nil
	}
	if hdr.protocol != protocolTCP {
		// The BPF filter admits only TCP; anything else slipped through
		// a fragment or a loose offline source.
		return nil
	}

	datagram := payload
	if hdr.fragmented() {
		full, done := s.defrag.process(hdr, payload, frame.Timestamp)
		if !done {
			return nil
		}
		datagram = full
	}

	seg, err := parseTCP(hdr, datagram, frame.Timestamp)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		return nil
	}
	if len(seg.Payload) == 0 {
		return nil
	}

	if m, ok := matchSceneSignature(seg); ok && m.flow != s.server {
		s.lockServer(m)
	}
	if !s.server.IsValid() || seg.Flow != s.server {
		return nil
	}

	s.stream.push(seg)
	return s.stream.splitFrames(s.onFrame)
}

// lockServer switches the locked flow. Reassembly state of the previous
// flow is dropped and the engine is notified so it can apply its
// server-change clearing policy.
func (s *Sniffer) lockServer(m signatureMatch) {
	s.log.Infof("scene server identified via %s: %s", m.name, m.flow)
	s.server = m.flow
	s.stream.seed(m.nextSeq)
	metrics.ServerLocksTotal.Inc()
	if s.onLock != nil {
		s.onLock(m.flow)
	}
}

// Maintain runs the periodic housekeeping: expired fragment eviction
// and stall detection on the locked flow. Meant to be driven by a 10 s
// ticker on live captures.
func (s *Sniffer) Maintain(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evicted := s.defrag.sweep(now); evicted > 0 {
		s.log.Debugf("evicted %d expired ip fragment entries", evicted)
	}

	if s.server.IsValid() && s.stream.stalled(now) {
		s.log.Warnf("scene server flow %s stalled for %s, returning to discovery", s.server, streamStallTimeout)
		s.server = core.FlowKey{}
		s.stream.reset()
	}
}

// CurrentServer returns the locked scene server flow, zero when the
// sniffer is still searching.
func (s *Sniffer) CurrentServer() core.FlowKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Stats is a point-in-time view of reassembly state for the stats API.
type Stats struct {
	Server          string `json:"server"`
	FragmentsActive int    `json:"fragments_active"`
	SegmentsCached  int    `json:"segments_cached"`
	PendingBytes    int    `json:"pending_bytes"`
}

func (s *Sniffer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	server := ""
	if s.server.IsValid() {
		server = s.server.String()
	}
	return Stats{
		Server:          server,
		FragmentsActive: s.defrag.active(),
		SegmentsCached:  s.stream.cached(),
		PendingBytes:    len(s.stream.data),
	}
}
