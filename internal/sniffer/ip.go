package sniffer

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	tcpHeaderMinLen  = 20

	protocolTCP = 6
)

// ipv4Header carries the fields of an IPv4 header the pipeline needs:
// addressing for the flow key and the fragmentation triple.
type ipv4Header struct {
	src      [4]byte
	dst      [4]byte
	id       uint16
	protocol uint8

	moreFragments bool
	fragOffset    int // bytes, already multiplied by 8
}

func (h ipv4Header) fragmented() bool {
	return h.moreFragments || h.fragOffset > 0
}

// parseIPv4 decodes an IPv4 header and returns it with the datagram
// payload, clamped to the header's total length when the capture
// delivered trailing padding.
func parseIPv4(data []byte) (ipv4Header, []byte, error) {
	var h ipv4Header

	if len(data) < ipv4HeaderMinLen {
		return h, nil, core.ErrPacketTooShort
	}
	if data[0]>>4 != 4 {
		return h, nil, core.ErrNotIPv4
	}

	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return h, nil, core.ErrPacketTooShort
	}

	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen < headerLen || totalLen > len(data) {
		totalLen = len(data)
	}

	h.id = binary.BigEndian.Uint16(data[4:6])

	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	h.moreFragments = flagsOffset&0x2000 != 0
	h.fragOffset = int(flagsOffset&0x1FFF) * 8

	h.protocol = data[9]
	copy(h.src[:], data[12:16])
	copy(h.dst[:], data[16:20])

	return h, data[headerLen:totalLen], nil
}

// parseTCP decodes a TCP header from a (reassembled) IPv4 payload and
// builds the segment handed to the flow identifier and reassembler.
func parseTCP(h ipv4Header, data []byte, ts time.Time) (core.TCPSegment, error) {
	var seg core.TCPSegment

	if h.protocol != protocolTCP {
		return seg, core.ErrNotTCP
	}
	if len(data) < tcpHeaderMinLen {
		return seg, core.ErrPacketTooShort
	}

	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderMinLen || len(data) < headerLen {
		return seg, core.ErrPacketTooShort
	}

	seg.Flow = core.FlowKey{
		Src: core.Endpoint{
			Addr: netip.AddrFrom4(h.src),
			Port: binary.BigEndian.Uint16(data[0:2]),
		},
		Dst: core.Endpoint{
			Addr: netip.AddrFrom4(h.dst),
			Port: binary.BigEndian.Uint16(data[2:4]),
		},
	}
	seg.Seq = binary.BigEndian.Uint32(data[4:8])
	seg.Ack = binary.BigEndian.Uint32(data[8:12])
	seg.Flags = data[13] & 0x3F
	seg.Payload = data[headerLen:]
	seg.Timestamp = ts

	return seg, nil
}
