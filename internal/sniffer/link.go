// Package sniffer reconstructs the scene-server byte stream from raw
// captured frames: link-layer decode, IPv4 defragmentation, scene flow
// discovery, TCP reassembly and application frame splitting.
package sniffer

import (
	"encoding/binary"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

const (
	etherTypeIPv4 = 0x0800

	ethernetHeaderLen = 14
	nullHeaderLen     = 4
	sllHeaderLen      = 16

	// AF_INET in the BSD null/loopback pseudo-header.
	nullFamilyInet = 2
)

// decodeLink strips the link-layer header and returns the bytes of the
// IPv4 datagram. Non-IPv4 frames and unsupported link types report
// ok=false and are discarded by the caller.
func decodeLink(link core.LinkType, frame []byte) ([]byte, bool) {
	switch link {
	case core.LinkEthernet:
		if len(frame) <= ethernetHeaderLen {
			return nil, false
		}
		if binary.BigEndian.Uint16(frame[12:14]) != etherTypeIPv4 {
			return nil, false
		}
		return frame[ethernetHeaderLen:], true

	case core.LinkNull:
		// The protocol family is written in host byte order by the
		// capturing machine; the loopback captures this tool reads are
		// always local, so little-endian covers it.
		if len(frame) <= nullHeaderLen {
			return nil, false
		}
		if binary.LittleEndian.Uint32(frame[0:4]) != nullFamilyInet {
			return nil, false
		}
		return frame[nullHeaderLen:], true

	case core.LinkLinuxSLL:
		if len(frame) <= sllHeaderLen {
			return nil, false
		}
		if binary.BigEndian.Uint16(frame[14:16]) != etherTypeIPv4 {
			return nil, false
		}
		return frame[sllHeaderLen:], true

	default:
		return nil, false
	}
}
