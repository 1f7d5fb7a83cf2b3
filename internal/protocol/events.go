package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
)

// Combat event codec for the scene service. A record payload is a
// sequence of events, each [u16 body length][u16 event type][body].
// Unknown event types are skipped so newer servers stay readable.

const (
	evDamage      = 0x0001
	evHealing     = 0x0002
	evTakenDamage = 0x0003
	evName        = 0x0004
	evProfession  = 0x0005
	evFightPoint  = 0x0006
	evAttrKV      = 0x0007
	evLog         = 0x0008
	evEnemyName   = 0x0009
	evEnemyHP     = 0x000a
	evEnemyMaxHP  = 0x000b
	evEnemyGone   = 0x000c
)

// Hit flags on damage and healing events.
const (
	flagCrit       = 0x01
	flagLucky      = 0x02
	flagCauseLucky = 0x04
)

// NewCombatHandler returns the scene-service record handler feeding the
// given sink. Register it on the decoder for SceneService.
func NewCombatHandler(sink meter.Sink, logger log.Logger) RecordHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return func(seq uint32, payload []byte) error {
		return parseEvents(payload, sink, logger)
	}
}

func parseEvents(buf []byte, sink meter.Sink, logger log.Logger) error {
	for len(buf) >= 4 {
		bodyLen := int(binary.BigEndian.Uint16(buf[0:2]))
		evType := binary.BigEndian.Uint16(buf[2:4])
		if 4+bodyLen > len(buf) {
			return fmt.Errorf("event 0x%04x announces %d body bytes, %d available", evType, bodyLen, len(buf)-4)
		}
		body := buf[4 : 4+bodyLen]
		buf = buf[4+bodyLen:]

		if err := applyEvent(evType, body, sink, logger); err != nil {
			return err
		}
	}
	return nil
}

func applyEvent(evType uint16, body []byte, sink meter.Sink, logger log.Logger) error {
	r := fieldReader{buf: body}

	switch evType {
	case evDamage:
		uid, target := r.u64(), r.u64()
		skill := r.i64()
		flags := r.u8()
		value, hpLessen := r.i64(), r.i64()
		element := r.str()
		if r.err != nil {
			break
		}
		sink.AddDamage(uid, skill, element, value,
			flags&flagCrit != 0, flags&flagLucky != 0, flags&flagCauseLucky != 0, hpLessen, target)

	case evHealing:
		uid, target := r.u64(), r.u64()
		skill := r.i64()
		flags := r.u8()
		value := r.i64()
		element := r.str()
		if r.err != nil {
			break
		}
		sink.AddHealing(uid, skill, element, value,
			flags&flagCrit != 0, flags&flagLucky != 0, flags&flagCauseLucky != 0, target)

	case evTakenDamage:
		uid := r.u64()
		value := r.i64()
		dead := r.u8()
		if r.err != nil {
			break
		}
		sink.AddTakenDamage(uid, value, dead != 0)

	case evName:
		uid := r.u64()
		name := r.str()
		if r.err != nil {
			break
		}
		sink.SetName(uid, name)

	case evProfession:
		uid := r.u64()
		profession := r.str()
		if r.err != nil {
			break
		}
		sink.SetProfession(uid, profession)

	case evFightPoint:
		uid := r.u64()
		fp := r.i64()
		if r.err != nil {
			break
		}
		sink.SetFightPoint(uid, fp)

	case evAttrKV:
		uid := r.u64()
		key := r.str()
		value := r.i64()
		if r.err != nil {
			break
		}
		sink.SetAttrKV(uid, key, value)

	case evLog:
		line := r.str()
		if r.err != nil {
			break
		}
		sink.AddLog(line)

	case evEnemyName:
		id := r.u64()
		name := r.str()
		if r.err != nil {
			break
		}
		sink.SetEnemyName(id, name)

	case evEnemyHP:
		id := r.u64()
		hp := r.i64()
		if r.err != nil {
			break
		}
		sink.SetEnemyHP(id, hp)

	case evEnemyMaxHP:
		id := r.u64()
		maxHP := r.i64()
		if r.err != nil {
			break
		}
		sink.SetEnemyMaxHP(id, maxHP)

	case evEnemyGone:
		id := r.u64()
		if r.err != nil {
			break
		}
		sink.RemoveEnemy(id)

	default:
		logger.Debugf("skipping unknown event type 0x%04x (%d bytes)", evType, len(body))
	}

	if r.err != nil {
		return fmt.Errorf("event 0x%04x: %w", evType, r.err)
	}
	return nil
}

// fieldReader reads big-endian fields with sticky bounds checking:
// after the first short read every later read returns zero values and
// the error is reported once.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (r *fieldReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("truncated field at offset %d", r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *fieldReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *fieldReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *fieldReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *fieldReader) i64() int64 {
	return int64(r.u64())
}

func (r *fieldReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}
