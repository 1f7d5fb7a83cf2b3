package meter

import "github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"

// Sink is the narrow mutation surface the event decoder drives.
// *Manager is the production implementation; decoder tests substitute a
// recording mock.
type Sink interface {
	AddDamage(uid uint64, skillID int64, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64)
	AddHealing(uid uint64, skillID int64, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64)
	AddTakenDamage(uid uint64, damage int64, isDead bool)
	SetName(uid uint64, name string)
	SetProfession(uid uint64, profession string)
	SetFightPoint(uid uint64, fightPoint int64)
	SetAttrKV(uid uint64, key string, value int64)
	AddLog(line string)
	SetEnemyName(id uint64, name string)
	SetEnemyHP(id uint64, hp int64)
	SetEnemyMaxHP(id uint64, maxHP int64)
	RemoveEnemy(id uint64)
}

// LoggingSink traces every event at debug level before forwarding it
// to the engine.
type LoggingSink struct {
	next Sink
	log  log.Logger
}

func NewLoggingSink(next Sink, logger log.Logger) *LoggingSink {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &LoggingSink{next: next, log: logger}
}

func (s *LoggingSink) AddDamage(uid uint64, skillID int64, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64) {
	s.log.Debugf("damage uid=%d skill=%d element=%s value=%d crit=%t lucky=%t hpLessen=%d target=%d",
		uid, skillID, element, damage, isCrit, isLucky, hpLessen, targetUID)
	s.next.AddDamage(uid, skillID, element, damage, isCrit, isLucky, isCauseLucky, hpLessen, targetUID)
}

func (s *LoggingSink) AddHealing(uid uint64, skillID int64, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64) {
	s.log.Debugf("healing uid=%d skill=%d element=%s value=%d crit=%t lucky=%t target=%d",
		uid, skillID, element, healing, isCrit, isLucky, targetUID)
	s.next.AddHealing(uid, skillID, element, healing, isCrit, isLucky, isCauseLucky, targetUID)
}

func (s *LoggingSink) AddTakenDamage(uid uint64, damage int64, isDead bool) {
	s.log.Debugf("taken damage uid=%d value=%d dead=%t", uid, damage, isDead)
	s.next.AddTakenDamage(uid, damage, isDead)
}

func (s *LoggingSink) SetName(uid uint64, name string) {
	s.log.Debugf("identity uid=%d name=%q", uid, name)
	s.next.SetName(uid, name)
}

func (s *LoggingSink) SetProfession(uid uint64, profession string) {
	s.log.Debugf("identity uid=%d profession=%q", uid, profession)
	s.next.SetProfession(uid, profession)
}

func (s *LoggingSink) SetFightPoint(uid uint64, fightPoint int64) {
	s.log.Debugf("identity uid=%d fightPoint=%d", uid, fightPoint)
	s.next.SetFightPoint(uid, fightPoint)
}

func (s *LoggingSink) SetAttrKV(uid uint64, key string, value int64) {
	s.log.Debugf("attr uid=%d %s=%d", uid, key, value)
	s.next.SetAttrKV(uid, key, value)
}

func (s *LoggingSink) AddLog(line string) {
	s.log.Debugf("fight log: %s", line)
	s.next.AddLog(line)
}

func (s *LoggingSink) SetEnemyName(id uint64, name string) {
	s.log.Debugf("enemy id=%d name=%q", id, name)
	s.next.SetEnemyName(id, name)
}

func (s *LoggingSink) SetEnemyHP(id uint64, hp int64) {
	s.log.Debugf("enemy id=%d hp=%d", id, hp)
	s.next.SetEnemyHP(id, hp)
}

func (s *LoggingSink) SetEnemyMaxHP(id uint64, maxHP int64) {
	s.log.Debugf("enemy id=%d maxHp=%d", id, maxHP)
	s.next.SetEnemyMaxHP(id, maxHP)
}

func (s *LoggingSink) RemoveEnemy(id uint64) {
	s.log.Debugf("enemy id=%d removed", id)
	s.next.RemoveEnemy(id)
}
