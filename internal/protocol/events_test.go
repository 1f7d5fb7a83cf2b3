package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinkCall records one mutation delivered to the engine. Unused fields
// stay at their zero values so calls compare with assert.Equal.
type sinkCall struct {
	op         string
	uid        uint64
	target     uint64
	skill      int64
	value      int64
	hpLessen   int64
	text       string
	crit       bool
	lucky      bool
	causeLucky bool
	dead       bool
}

type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) AddDamage(uid uint64, skillID int64, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64) {
	s.calls = append(s.calls, sinkCall{op: "damage", uid: uid, skill: skillID, text: element, value: damage,
		crit: isCrit, lucky: isLucky, causeLucky: isCauseLucky, hpLessen: hpLessen, target: targetUID})
}

func (s *recordingSink) AddHealing(uid uint64, skillID int64, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64) {
	s.calls = append(s.calls, sinkCall{op: "healing", uid: uid, skill: skillID, text: element, value: healing,
		crit: isCrit, lucky: isLucky, causeLucky: isCauseLucky, target: targetUID})
}

func (s *recordingSink) AddTakenDamage(uid uint64, damage int64, isDead bool) {
	s.calls = append(s.calls, sinkCall{op: "taken", uid: uid, value: damage, dead: isDead})
}

func (s *recordingSink) SetName(uid uint64, name string) {
	s.calls = append(s.calls, sinkCall{op: "name", uid: uid, text: name})
}

func (s *recordingSink) SetProfession(uid uint64, profession string) {
	s.calls = append(s.calls, sinkCall{op: "profession", uid: uid, text: profession})
}

func (s *recordingSink) SetFightPoint(uid uint64, fightPoint int64) {
	s.calls = append(s.calls, sinkCall{op: "fightPoint", uid: uid, value: fightPoint})
}

func (s *recordingSink) SetAttrKV(uid uint64, key string, value int64) {
	s.calls = append(s.calls, sinkCall{op: "attr", uid: uid, text: key, value: value})
}

func (s *recordingSink) AddLog(line string) {
	s.calls = append(s.calls, sinkCall{op: "log", text: line})
}

func (s *recordingSink) SetEnemyName(id uint64, name string) {
	s.calls = append(s.calls, sinkCall{op: "enemyName", uid: id, text: name})
}

func (s *recordingSink) SetEnemyHP(id uint64, hp int64) {
	s.calls = append(s.calls, sinkCall{op: "enemyHP", uid: id, value: hp})
}

func (s *recordingSink) SetEnemyMaxHP(id uint64, maxHP int64) {
	s.calls = append(s.calls, sinkCall{op: "enemyMaxHP", uid: id, value: maxHP})
}

func (s *recordingSink) RemoveEnemy(id uint64) {
	s.calls = append(s.calls, sinkCall{op: "enemyGone", uid: id})
}

func be16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func be64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }
func bi64(v int64) []byte  { return be64(uint64(v)) }

func bstr(s string) []byte {
	return append(be16(uint16(len(s))), s...)
}

// event builds one wire event: [u16 body length][u16 type][body].
func event(evType uint16, fields ...[]byte) []byte {
	body := bytes.Join(fields, nil)
	out := be16(uint16(len(body)))
	out = append(out, be16(evType)...)
	return append(out, body...)
}

func parse(t *testing.T, payload []byte) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	h := NewCombatHandler(sink, nil)
	require.NoError(t, h(1, payload))
	return sink
}

func TestCombatHandlerDamageEvent(t *testing.T) {
	payload := event(evDamage,
		be64(114514), be64(75), bi64(1241),
		[]byte{flagCrit | flagCauseLucky},
		bi64(1000), bi64(880), bstr("frost"),
	)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, sinkCall{
		op: "damage", uid: 114514, target: 75, skill: 1241,
		value: 1000, hpLessen: 880, text: "frost",
		crit: true, causeLucky: true,
	}, sink.calls[0])
}

func TestCombatHandlerHealingEvent(t *testing.T) {
	payload := event(evHealing,
		be64(200), be64(114514), bi64(2307),
		[]byte{flagLucky},
		bi64(450), bstr("nature"),
	)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, sinkCall{
		op: "healing", uid: 200, target: 114514, skill: 2307,
		value: 450, text: "nature", lucky: true,
	}, sink.calls[0])
}

func TestCombatHandlerTakenDamage(t *testing.T) {
	payload := bytes.Join([][]byte{
		event(evTakenDamage, be64(114514), bi64(320), []byte{0x00}),
		event(evTakenDamage, be64(114514), bi64(9999), []byte{0x01}),
	}, nil)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, sinkCall{op: "taken", uid: 114514, value: 320}, sink.calls[0])
	assert.Equal(t, sinkCall{op: "taken", uid: 114514, value: 9999, dead: true}, sink.calls[1])
}

func TestCombatHandlerIdentityEvents(t *testing.T) {
	payload := bytes.Join([][]byte{
		event(evName, be64(114514), bstr("Astra")),
		event(evProfession, be64(114514), bstr("Frost Mage")),
		event(evFightPoint, be64(114514), bi64(21000)),
		event(evAttrKV, be64(114514), bstr("max_hp"), bi64(50000)),
		event(evLog, bstr("Astra hit Polar Dummy for 1000")),
	}, nil)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 5)
	assert.Equal(t, sinkCall{op: "name", uid: 114514, text: "Astra"}, sink.calls[0])
	assert.Equal(t, sinkCall{op: "profession", uid: 114514, text: "Frost Mage"}, sink.calls[1])
	assert.Equal(t, sinkCall{op: "fightPoint", uid: 114514, value: 21000}, sink.calls[2])
	assert.Equal(t, sinkCall{op: "attr", uid: 114514, text: "max_hp", value: 50000}, sink.calls[3])
	assert.Equal(t, sinkCall{op: "log", text: "Astra hit Polar Dummy for 1000"}, sink.calls[4])
}

func TestCombatHandlerEnemyEvents(t *testing.T) {
	payload := bytes.Join([][]byte{
		event(evEnemyName, be64(42), bstr("Polar Dummy")),
		event(evEnemyMaxHP, be64(42), bi64(8_000_000)),
		event(evEnemyHP, be64(42), bi64(7_500_000)),
		event(evEnemyGone, be64(42)),
	}, nil)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 4)
	assert.Equal(t, sinkCall{op: "enemyName", uid: 42, text: "Polar Dummy"}, sink.calls[0])
	assert.Equal(t, sinkCall{op: "enemyMaxHP", uid: 42, value: 8_000_000}, sink.calls[1])
	assert.Equal(t, sinkCall{op: "enemyHP", uid: 42, value: 7_500_000}, sink.calls[2])
	assert.Equal(t, sinkCall{op: "enemyGone", uid: 42}, sink.calls[3])
}

func TestCombatHandlerSkipsUnknownEventType(t *testing.T) {
	payload := bytes.Join([][]byte{
		event(evName, be64(1), bstr("A")),
		event(0x7777, []byte{0xAA, 0xBB}),
		event(evName, be64(2), bstr("B")),
	}, nil)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, uint64(1), sink.calls[0].uid)
	assert.Equal(t, uint64(2), sink.calls[1].uid)
}

func TestCombatHandlerIgnoresTrailingSlack(t *testing.T) {
	payload := append(event(evEnemyGone, be64(7)), 0x00, 0x01)
	sink := parse(t, payload)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, sinkCall{op: "enemyGone", uid: 7}, sink.calls[0])
}

func TestCombatHandlerTruncatedFieldFails(t *testing.T) {
	// Damage event cut off inside the value field.
	full := event(evDamage,
		be64(1), be64(2), bi64(3), []byte{0x00}, bi64(4), bi64(5), bstr("x"),
	)
	truncated := full[:4+8+8+8+1+3]
	// Re-stamp the body length so the walker accepts the event and the
	// field reader trips instead.
	binary.BigEndian.PutUint16(truncated[0:2], uint16(len(truncated)-4))

	sink := &recordingSink{}
	h := NewCombatHandler(sink, nil)
	err := h(1, truncated)

	require.Error(t, err)
	assert.Empty(t, sink.calls, "a truncated event must not reach the sink")
}

func TestCombatHandlerBadBodyLengthFails(t *testing.T) {
	payload := bytes.Join([][]byte{
		event(evEnemyGone, be64(7)),
		{0x00, 0xFF, 0x00, 0x0c}, // announces 255 body bytes, none follow
	}, nil)

	sink := &recordingSink{}
	h := NewCombatHandler(sink, nil)
	err := h(1, payload)

	require.Error(t, err)
	require.Len(t, sink.calls, 1, "events before the bad length are already applied")
	assert.Equal(t, sinkCall{op: "enemyGone", uid: 7}, sink.calls[0])
}

func TestCombatHandlerStringWithUTF8(t *testing.T) {
	payload := event(evName, be64(9), bstr("星辰共鸣"))
	sink := parse(t, payload)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "星辰共鸣", sink.calls[0].text)
}

// End to end: a zstd-compressed scene record inside a notify frame
// drives the engine sink, the path live capture exercises.
func TestDecoderCombatEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	d, err := NewDecoder(nil)
	require.NoError(t, err)
	d.Handle(SceneService, NewCombatHandler(sink, nil))

	payload := bytes.Join([][]byte{
		event(evName, be64(114514), bstr("Astra")),
		event(evDamage,
			be64(114514), be64(75), bi64(1241),
			[]byte{flagLucky},
			bi64(600), bi64(600), bstr("frost"),
		),
	}, nil)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	frame := notifyFrame(record(SceneService, 1, compressed))
	require.NoError(t, d.OnFrame(frame))

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "name", sink.calls[0].op)
	assert.Equal(t, sinkCall{
		op: "damage", uid: 114514, target: 75, skill: 1241,
		value: 600, hpLessen: 600, text: "frost", lucky: true,
	}, sink.calls[1])
}
