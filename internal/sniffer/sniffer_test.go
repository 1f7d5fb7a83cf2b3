package sniffer

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// wrapIPv4 builds a raw IPv4 packet around the given payload with the
// fragmentation fields set. offset is in bytes, a multiple of 8.
func wrapIPv4(src, dst core.Endpoint, ipID uint16, offset int, moreFragments bool, payload []byte) []byte {
	pkt := make([]byte, ipv4HeaderMinLen+len(payload))
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], uint16(len(pkt)))
	binary.BigEndian.PutUint16(pkt[4:6], ipID)

	flagsOffset := uint16(offset / 8)
	if moreFragments {
		flagsOffset |= 0x2000
	}
	binary.BigEndian.PutUint16(pkt[6:8], flagsOffset)

	pkt[8] = 64
	pkt[9] = protocolTCP
	srcAddr := src.Addr.As4()
	dstAddr := dst.Addr.As4()
	copy(pkt[12:16], srcAddr[:])
	copy(pkt[16:20], dstAddr[:])
	copy(pkt[ipv4HeaderMinLen:], payload)
	return pkt
}

// tcpBytes builds the TCP header plus payload for a flow.
func tcpBytes(flow core.FlowKey, seq, ack uint32, payload []byte) []byte {
	seg := make([]byte, tcpHeaderMinLen+len(payload))
	binary.BigEndian.PutUint16(seg[0:2], flow.Src.Port)
	binary.BigEndian.PutUint16(seg[2:4], flow.Dst.Port)
	binary.BigEndian.PutUint32(seg[4:8], seq)
	binary.BigEndian.PutUint32(seg[8:12], ack)
	seg[12] = 5 << 4
	seg[13] = core.TCPFlagPSH | core.TCPFlagACK
	copy(seg[tcpHeaderMinLen:], payload)
	return seg
}

func rawFrame(pkt []byte, ts time.Time) core.RawFrame {
	return core.RawFrame{Data: ethernetFrame(pkt), Timestamp: ts, Link: core.LinkEthernet}
}

// tcpFrame builds a whole (unfragmented) link-layer frame for the flow.
func tcpFrame(flow core.FlowKey, ipID uint16, seq, ack uint32, payload []byte, ts time.Time) core.RawFrame {
	return rawFrame(wrapIPv4(flow.Src, flow.Dst, ipID, 0, false, tcpBytes(flow, seq, ack, payload)), ts)
}

type frameRecorder struct {
	frames  [][]byte
	servers []core.FlowKey
}

func (r *frameRecorder) onFrame(f []byte) error {
	r.frames = append(r.frames, f)
	return nil
}

func (r *frameRecorder) onServerChange(flow core.FlowKey) {
	r.servers = append(r.servers, flow)
}

func newTestSniffer() (*Sniffer, *frameRecorder) {
	rec := &frameRecorder{}
	return New(Options{OnFrame: rec.onFrame, OnServerChange: rec.onServerChange}), rec
}

func TestSnifferLocksAndDeliversFrames(t *testing.T) {
	s, rec := newTestSniffer()
	now := time.Now()

	// Traffic before the lock is ignored.
	if err := s.HandlePacket(tcpFrame(downFlow, 1, 100, 0, frameBytes(0x01), now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.frames) != 0 {
		t.Fatal("frames before the lock must be ignored")
	}

	// Login return locks the flow and seeds the next sequence.
	login := loginReturnPayload()
	if err := s.HandlePacket(tcpFrame(downFlow, 2, 1000, 0, login, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if got := s.CurrentServer(); got != downFlow {
		t.Fatalf("expected locked server %s, got %s", downFlow, got)
	}
	if len(rec.servers) != 1 || rec.servers[0] != downFlow {
		t.Fatalf("expected one server change notification, got %v", rec.servers)
	}

	// Stream bytes after the login frame are reassembled and split.
	f1, f2 := frameBytes(0xAA, 0xBB), frameBytes(0xCC)
	seq := 1000 + uint32(len(login))
	if err := s.HandlePacket(tcpFrame(downFlow, 3, seq, 0, append(append([]byte(nil), f1...), f2...), now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(rec.frames))
	}
	if !bytes.Equal(rec.frames[0], f1) || !bytes.Equal(rec.frames[1], f2) {
		t.Fatal("delivered frames differ from the stream content")
	}

	// Traffic on the reverse direction never reaches the splitter.
	if err := s.HandlePacket(tcpFrame(upFlow, 4, 555, 0, frameBytes(0xEE), now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.frames) != 2 {
		t.Fatal("client-side traffic must be ignored")
	}
}

// A 3000-byte TCP segment split into two IP fragments delivered in
// reverse order must reach the TCP reassembler as one contiguous
// segment.
func TestSnifferReassemblesFragmentedSegment(t *testing.T) {
	s, rec := newTestSniffer()
	now := time.Now()

	login := loginReturnPayload()
	if err := s.HandlePacket(tcpFrame(downFlow, 1, 4000, 0, login, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	// One application frame spanning the full segment payload.
	appFrame := make([]byte, 2980)
	binary.BigEndian.PutUint32(appFrame[0:4], uint32(len(appFrame)))
	for i := 4; i < len(appFrame); i++ {
		appFrame[i] = byte(i)
	}

	seq := 4000 + uint32(len(login))
	whole := tcpBytes(downFlow, seq, 0, appFrame) // 3000 bytes of IP payload

	frag2 := wrapIPv4(downFlow.Src, downFlow.Dst, 55, 1480, false, whole[1480:])
	frag1 := wrapIPv4(downFlow.Src, downFlow.Dst, 55, 0, true, whole[:1480])

	if err := s.HandlePacket(rawFrame(frag2, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.frames) != 0 {
		t.Fatal("half a datagram must not produce frames")
	}
	if err := s.HandlePacket(rawFrame(frag1, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	if len(rec.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(rec.frames))
	}
	if !bytes.Equal(rec.frames[0], appFrame) {
		t.Fatal("reassembled frame differs from the original")
	}
}

func TestSnifferServerChangeResetsStream(t *testing.T) {
	s, rec := newTestSniffer()
	now := time.Now()

	login := loginReturnPayload()
	if err := s.HandlePacket(tcpFrame(downFlow, 1, 100, 0, login, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	// Half a frame arrives on the old server.
	partial := frameBytes(0x01, 0x02, 0x03)[:5]
	if err := s.HandlePacket(tcpFrame(downFlow, 2, 100+uint32(len(login)), 0, partial, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	// A different endpoint announces itself via frame-down notify.
	other := core.FlowKey{
		Src: core.Endpoint{Addr: serverEnd.Addr, Port: 9001},
		Dst: clientEnd,
	}
	notify := notifyFrame(msgTypeFrameDown, frameDownServiceTag)
	if err := s.HandlePacket(tcpFrame(other, 3, 9000, 0, notify, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	if got := s.CurrentServer(); got != other {
		t.Fatalf("expected server switch to %s, got %s", other, got)
	}
	if len(rec.servers) != 2 {
		t.Fatalf("expected 2 server change notifications, got %d", len(rec.servers))
	}

	// The new stream starts clean right after the notify frame.
	f := frameBytes(0x77)
	if err := s.HandlePacket(tcpFrame(other, 4, 9000+uint32(len(notify)), 0, f, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.frames) != 1 || !bytes.Equal(rec.frames[0], f) {
		t.Fatalf("expected exactly the new flow's frame, got %d frames", len(rec.frames))
	}
}

func TestSnifferRelockSameServerIsNoop(t *testing.T) {
	s, rec := newTestSniffer()
	now := time.Now()

	login := loginReturnPayload()
	if err := s.HandlePacket(tcpFrame(downFlow, 1, 100, 0, login, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if err := s.HandlePacket(tcpFrame(downFlow, 2, 100, 0, login, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(rec.servers) != 1 {
		t.Fatalf("re-matching the locked server must not renotify, got %d", len(rec.servers))
	}
}

func TestSnifferStallUnlocksFlow(t *testing.T) {
	s, _ := newTestSniffer()
	start := time.Now()

	login := loginReturnPayload()
	if err := s.HandlePacket(tcpFrame(downFlow, 1, 100, 0, login, start)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if err := s.HandlePacket(tcpFrame(downFlow, 2, 100+uint32(len(login)), 0, frameBytes(0x01), start)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	s.Maintain(start.Add(10 * time.Second))
	if !s.CurrentServer().IsValid() {
		t.Fatal("flow must stay locked while traffic is recent")
	}

	s.Maintain(start.Add(40 * time.Second))
	if s.CurrentServer().IsValid() {
		t.Fatal("stalled flow must return to discovery")
	}
}

func TestSnifferIgnoresGarbage(t *testing.T) {
	s, rec := newTestSniffer()
	now := time.Now()

	// Unsupported link type, truncated IP, non-TCP protocol.
	if err := s.HandlePacket(core.RawFrame{Data: make([]byte, 60), Link: core.LinkType(99), Timestamp: now}); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if err := s.HandlePacket(rawFrame([]byte{0x45, 0x00}, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	udp := wrapIPv4(downFlow.Src, downFlow.Dst, 9, 0, false, make([]byte, 12))
	udp[9] = 17
	if err := s.HandlePacket(rawFrame(udp, now)); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	if len(rec.frames) != 0 || len(rec.servers) != 0 {
		t.Fatal("garbage input must have no observable effect")
	}
}
