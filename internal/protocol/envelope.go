// Package protocol unwraps the game's application frames into service
// records and feeds decoded combat events to the statistics engine.
//
// A frame is [u32 length][u16 message type][u32 sequence][payload]. A
// server push frame carries nested records, each [u32 length][u8
// reserved][u32 record sequence][6-byte service id][record payload];
// payloads may be zstd-compressed, detected by magic. The leaf event
// codec behind each service id is pluggable: handlers are registered
// per service, so decode changes never touch the envelope walker.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
)

const (
	// Frame message types observed from the scene server.
	msgTypeReturn = 0x0003 // reply to a client call, no records
	msgTypeCall   = 0x0005 // client → server, never on the locked flow
	msgTypeNotify = 0x0006 // server push carrying service records

	frameHeaderLen  = 10
	recordHeaderLen = 11
)

// ServiceID identifies the producer of a record inside a notify frame.
type ServiceID [6]byte

// SceneService emits the combat notifications the meter consumes.
var SceneService = ServiceID{0x00, 0x63, 0x33, 0x53, 0x42, 0x00}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// RecordHandler consumes one decompressed record payload. Errors are
// logged and swallowed: a bad record never stops the stream.
type RecordHandler func(seq uint32, payload []byte) error

// Decoder walks application frames and dispatches service records.
type Decoder struct {
	zstd     *zstd.Decoder
	handlers map[ServiceID]RecordHandler
	log      log.Logger
}

// NewDecoder builds the frame decoder. Failure to initialise the zstd
// decompressor is a setup error and aborts startup.
func NewDecoder(logger log.Logger) (*Decoder, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise zstd decompressor: %w", err)
	}
	return &Decoder{
		zstd:     zr,
		handlers: make(map[ServiceID]RecordHandler),
		log:      logger,
	}, nil
}

// Handle registers the record handler for a service id, replacing any
// previous registration.
func (d *Decoder) Handle(service ServiceID, h RecordHandler) {
	d.handlers[service] = h
}

// OnFrame consumes one application frame from the splitter. Decode
// problems are logged and dropped; the return value is reserved for
// unrecoverable conditions and is always nil here.
func (d *Decoder) OnFrame(frame []byte) error {
	if len(frame) < frameHeaderLen {
		d.log.Debugf("discarding short frame (%d bytes)", len(frame))
		return nil
	}

	msgType := binary.BigEndian.Uint16(frame[4:6])
	switch msgType {
	case msgTypeNotify:
		d.walkRecords(frame[frameHeaderLen:])
	case msgTypeReturn, msgTypeCall:
		// No combat payload.
	default:
		d.log.Debugf("skipping frame with message type 0x%04x", msgType)
	}
	return nil
}

func (d *Decoder) walkRecords(buf []byte) {
	for len(buf) >= 4 {
		recLen := int(binary.BigEndian.Uint32(buf[0:4]))
		if recLen < 4 || recLen > len(buf) {
			d.log.Warnf("malformed record length %d with %d bytes left, dropping rest of frame", recLen, len(buf))
			return
		}
		body := buf[4:recLen]
		buf = buf[recLen:]

		if len(body) < recordHeaderLen {
			continue
		}
		var svc ServiceID
		copy(svc[:], body[5:recordHeaderLen])
		handler, ok := d.handlers[svc]
		if !ok {
			d.log.Debugf("no handler for service %x", svc[:])
			continue
		}

		seq := binary.BigEndian.Uint32(body[1:5])
		payload, err := d.inflate(body[recordHeaderLen:])
		if err != nil {
			d.log.Warnf("failed to decompress record for service %x: %v", svc[:], err)
			continue
		}
		if err := handler(seq, payload); err != nil {
			d.log.Warnf("record %d for service %x: %v", seq, svc[:], err)
		}
	}
}

// inflate transparently decompresses zstd payloads, passing everything
// else through untouched.
func (d *Decoder) inflate(payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, zstdMagic) {
		return payload, nil
	}
	return d.zstd.DecodeAll(payload, nil)
}
