package sniffer

import (
	"bytes"
	"encoding/binary"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// Scene-server discovery. Before (and after) a flow is locked, every TCP
// segment with a payload is checked against three signatures that only
// the game's scene server produces. A match identifies the server→client
// direction of the combat stream and the sequence number to start
// reassembly from.

const (
	msgTypeFrameUp   = 0x0005
	msgTypeFrameDown = 0x0006

	// Nested notify records start after the frame header:
	// u32 length, u16 message type, u32 stream sequence.
	frameRecordsOffset = 10
)

var (
	// Service tag inside a FrameDown notify record, bytes [5:11) of the
	// record body.
	frameDownServiceTag = []byte{0x00, 0x63, 0x33, 0x53, 0x42, 0x00}

	// Service tag inside a FrameUp notify record.
	frameUpServiceTag = []byte{0x00, 0x06, 0x26, 0xad, 0x66, 0x00}

	// Fixed bytes of the 0x62-byte login return frame. Bytes 10-13 hold
	// a variable sequence field and are not compared.
	loginReturnHead = []byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01}
	loginReturnTail = []byte{0x00, 0x00, 0x00, 0x00, 0x0a, 0x4e}
)

// signatureMatch describes a located scene server.
type signatureMatch struct {
	name    string       // which signature fired, for logging
	flow    core.FlowKey // server→client direction to lock
	nextSeq uint32       // first server byte to expect
}

// matchSceneSignature checks one segment against all three signatures.
func matchSceneSignature(seg core.TCPSegment) (signatureMatch, bool) {
	if m, ok := matchFrameDown(seg); ok {
		return m, true
	}
	if m, ok := matchLoginReturn(seg); ok {
		return m, true
	}
	if m, ok := matchFrameUp(seg); ok {
		return m, true
	}
	return signatureMatch{}, false
}

// matchFrameDown fires on a server-sent FrameDown frame carrying a
// notify record for the scene service. The segment travels server→client,
// so its own direction is locked and reassembly continues right after it.
func matchFrameDown(seg core.TCPSegment) (signatureMatch, bool) {
	if !hasNotifyRecord(seg.Payload, msgTypeFrameDown, frameDownServiceTag) {
		return signatureMatch{}, false
	}
	return signatureMatch{
		name:    "frame-down notify",
		flow:    seg.Flow,
		nextSeq: seg.Seq + uint32(len(seg.Payload)),
	}, true
}

// matchLoginReturn fires on the fixed-size login return frame the scene
// server sends once after the client attaches.
func matchLoginReturn(seg core.TCPSegment) (signatureMatch, bool) {
	p := seg.Payload
	if len(p) != 0x62 {
		return signatureMatch{}, false
	}
	if !bytes.Equal(p[0:10], loginReturnHead) || !bytes.Equal(p[14:20], loginReturnTail) {
		return signatureMatch{}, false
	}
	return signatureMatch{
		name:    "login return",
		flow:    seg.Flow,
		nextSeq: seg.Seq + uint32(len(p)),
	}, true
}

// matchFrameUp fires on a client-sent FrameUp frame. The segment travels
// client→server, so the reverse direction is locked and the client's ack
// number is the next byte the server will send.
func matchFrameUp(seg core.TCPSegment) (signatureMatch, bool) {
	if !hasNotifyRecord(seg.Payload, msgTypeFrameUp, frameUpServiceTag) {
		return signatureMatch{}, false
	}
	return signatureMatch{
		name:    "frame-up notify",
		flow:    seg.Flow.Reverse(),
		nextSeq: seg.Ack,
	}, true
}

// hasNotifyRecord reports whether payload is a frame of the given message
// type containing a nested length-prefixed record whose body carries the
// service tag at bytes [5:11).
func hasNotifyRecord(payload []byte, msgType uint16, tag []byte) bool {
	if len(payload) <= frameRecordsOffset {
		return false
	}
	if binary.BigEndian.Uint16(payload[4:6]) != msgType {
		return false
	}

	records := payload[frameRecordsOffset:]
	for len(records) >= 4 {
		recLen := int(binary.BigEndian.Uint32(records[0:4]))
		if recLen < 4 || recLen > len(records) {
			return false
		}
		body := records[4:recLen]
		if len(body) >= 11 && bytes.Equal(body[5:11], tag) {
			return true
		}
		records = records[recLen:]
	}
	return false
}
