// Package core defines shared types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// LinkType is the pcap data-link type of a capture handle.
type LinkType int

// Link types supported by the frame decoder. Values follow the pcap
// DLT_* numbering.
const (
	LinkNull     LinkType = 0   // BSD null/loopback
	LinkEthernet LinkType = 1   // DLT_EN10MB
	LinkLinuxSLL LinkType = 113 // Linux cooked capture
)

func (t LinkType) String() string {
	switch t {
	case LinkNull:
		return "null"
	case LinkEthernet:
		return "ethernet"
	case LinkLinuxSLL:
		return "linux-sll"
	default:
		return fmt.Sprintf("linktype(%d)", int(t))
	}
}

// Supported reports whether the frame decoder can derive IPv4 datagrams
// from frames of this link type.
func (t LinkType) Supported() bool {
	switch t {
	case LinkNull, LinkEthernet, LinkLinuxSLL:
		return true
	}
	return false
}

// RawFrame is one captured link-layer frame. Data is owned by the
// frame: every source copies out of its capture buffer, so frames may
// sit in the processing queue indefinitely.
type RawFrame struct {
	Data      []byte
	Timestamp time.Time
	Link      LinkType
}

// Endpoint identifies one side of a TCP connection.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) IsValid() bool { return e.Addr.IsValid() }

func (e Endpoint) String() string {
	if !e.IsValid() {
		return "<none>"
	}
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// FlowKey identifies a unidirectional TCP flow (src sends to dst).
type FlowKey struct {
	Src Endpoint
	Dst Endpoint
}

// Reverse returns the opposite direction of the flow.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{Src: k.Dst, Dst: k.Src}
}

func (k FlowKey) IsValid() bool { return k.Src.IsValid() && k.Dst.IsValid() }

func (k FlowKey) String() string {
	return k.Src.String() + " -> " + k.Dst.String()
}

// TCP header flag bits.
const (
	TCPFlagFIN = 0x01
	TCPFlagSYN = 0x02
	TCPFlagRST = 0x04
	TCPFlagPSH = 0x08
	TCPFlagACK = 0x10
)

// TCPSegment is a parsed TCP segment after IPv4 reassembly.
type TCPSegment struct {
	Flow      FlowKey
	Seq       uint32
	Ack       uint32
	Flags     uint8
	Payload   []byte
	Timestamp time.Time
}
