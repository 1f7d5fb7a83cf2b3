package meter

import (
	"strconv"
	"sync"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/config"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

// HistoryWriter persists one session snapshot to the history store.
type HistoryWriter interface {
	WriteSnapshot(snap SessionSnapshot) error
}

// FightLogger appends decoder log lines to the session's fight.log.
// Appends are serialised by the implementation, not by the engine, so
// statistics readers never wait on disk.
type FightLogger interface {
	Append(startMs int64, at time.Time, line string) error
}

const (
	// eliteDummyUID is the training-dummy target id the
	// onlyRecordEliteDummy setting narrows damage recording to.
	eliteDummyUID = 75

	// userTimeoutClear wipes the session when combat has been silent
	// this long and autoClearOnTimeout is enabled.
	userTimeoutClear = 15 * time.Second
)

type enemy struct {
	name  string
	hp    int64
	maxHP int64
}

// Options wires the Manager to its collaborators. Settings is required;
// Identity, History and FightLog may be nil, which disables the
// corresponding persistence.
type Options struct {
	Settings *config.SettingsStore
	Identity *IdentityCache
	History  HistoryWriter
	FightLog FightLogger
	Logger   log.Logger
	Version  string
	Now      func() time.Time
}

// Manager is the statistics engine. One mutex guards all session state;
// every public method is safe for concurrent use. Mutations arrive from
// the event decoder on the processing worker, reads from HTTP handlers
// and the broadcast ticker.
type Manager struct {
	mu       sync.Mutex
	log      log.Logger
	settings *config.SettingsStore
	identity *IdentityCache
	history  HistoryWriter
	fightLog FightLogger
	now      func() time.Time
	version  string

	users   map[uint64]*user
	enemies map[uint64]*enemy
	hpCache map[uint64]int64 // uid → last seen hp, survives clears, never persisted

	paused           bool
	startTime        int64 // session epoch, unix ms, names the history directory
	lastLogTime      int64 // unix ms of the latest combat event
	lastAutoSaveTime int64
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	m := &Manager{
		log:      logger,
		settings: opts.Settings,
		identity: opts.Identity,
		history:  opts.History,
		fightLog: opts.FightLog,
		now:      now,
		version:  version,
		users:    make(map[uint64]*user),
		enemies:  make(map[uint64]*enemy),
		hpCache:  make(map[uint64]int64),
	}
	m.startTime = m.nowMs()
	return m
}

func (m *Manager) nowMs() int64 { return m.now().UnixMilli() }

// gateLocked applies the entry checks shared by combat mutators: the
// pause flag first, then the idle-timeout clear.
func (m *Manager) gateLocked() bool {
	if m.paused {
		return false
	}
	m.checkTimeoutClearLocked()
	return true
}

func (m *Manager) checkTimeoutClearLocked() {
	if !m.settings.Get().AutoClearOnTimeout || m.lastLogTime == 0 || len(m.users) == 0 {
		return
	}
	if m.nowMs()-m.lastLogTime > userTimeoutClear.Milliseconds() {
		m.log.Infof("no combat activity for %s, clearing session", userTimeoutClear)
		m.clearAllLocked()
	}
}

// ensureUserLocked returns the session record for uid, creating it
// prefilled from the identity and hp caches.
func (m *Manager) ensureUserLocked(uid uint64) *user {
	if u, ok := m.users[uid]; ok {
		return u
	}
	u := newUser(uid)
	if m.identity != nil {
		if id, ok := m.identity.Get(uid); ok {
			u.name = id.Name
			u.profession = id.Profession
			u.fightPoint = id.FightPoint
			if id.MaxHP > 0 {
				u.attrs["max_hp"] = id.MaxHP
			}
		}
	}
	if hp, ok := m.hpCache[uid]; ok {
		u.attrs["hp"] = hp
	}
	m.users[uid] = u
	return u
}

func (m *Manager) ensureEnemyLocked(id uint64) *enemy {
	e, ok := m.enemies[id]
	if !ok {
		e = &enemy{}
		m.enemies[id] = e
	}
	return e
}

// AddDamage records one damage event dealt by uid. isCauseLucky marks
// damage enabled by a lucky proc rather than rolled lucky itself; it is
// part of the decoder contract but not aggregated separately.
func (m *Manager) AddDamage(uid uint64, skillID int64, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gateLocked() {
		return
	}
	if m.settings.Get().OnlyRecordEliteDummy && targetUID != eliteDummyUID {
		return
	}

	u := m.ensureUserLocked(uid)
	u.recordDamage(skillID, element, damage, isCrit, isLucky, hpLessen, m.nowMs())
	if sp, ok := subProfessionForSkill(skillID); ok {
		u.setSubProfession(sp)
	}
	m.lastLogTime = m.nowMs()
	metrics.EventsTotal.WithLabelValues("damage").Inc()
}

// AddHealing records one healing event performed by uid.
func (m *Manager) AddHealing(uid uint64, skillID int64, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gateLocked() {
		return
	}

	u := m.ensureUserLocked(uid)
	u.recordHealing(skillID, element, healing, isCrit, isLucky, m.nowMs())
	if sp, ok := subProfessionForSkill(skillID); ok {
		u.setSubProfession(sp)
	}
	m.lastLogTime = m.nowMs()
	metrics.EventsTotal.WithLabelValues("healing").Inc()
}

// AddTakenDamage records damage received by uid.
func (m *Manager) AddTakenDamage(uid uint64, damage int64, isDead bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gateLocked() {
		return
	}

	m.ensureUserLocked(uid).recordTakenDamage(damage, isDead)
	m.lastLogTime = m.nowMs()
	metrics.EventsTotal.WithLabelValues("taken").Inc()
}

func (m *Manager) SetName(uid uint64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || name == "" {
		return
	}
	m.ensureUserLocked(uid).name = name
	if m.identity != nil {
		m.identity.SetName(uid, name)
	}
}

func (m *Manager) SetProfession(uid uint64, profession string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || profession == "" {
		return
	}
	m.ensureUserLocked(uid).setProfession(profession)
	if m.identity != nil {
		m.identity.SetProfession(uid, profession)
	}
}

func (m *Manager) SetFightPoint(uid uint64, fightPoint int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.ensureUserLocked(uid).fightPoint = fightPoint
	if m.identity != nil {
		m.identity.SetFightPoint(uid, fightPoint)
	}
}

// SetAttrKV stores an open key/value attribute. "hp" additionally feeds
// the volatile hp cache, "max_hp" the persistent identity cache.
func (m *Manager) SetAttrKV(uid uint64, key string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}

	m.ensureUserLocked(uid).attrs[key] = value
	switch key {
	case "hp":
		m.hpCache[uid] = value
	case "max_hp":
		if m.identity != nil {
			m.identity.SetMaxHP(uid, value)
		}
	}
}

// AddLog appends a timestamped line to the session's fight.log. The
// append itself happens outside the engine mutex.
func (m *Manager) AddLog(line string) {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}
	m.checkTimeoutClearLocked()
	m.lastLogTime = m.nowMs()
	start := m.startTime
	at := m.now()
	fl := m.fightLog
	m.mu.Unlock()

	metrics.EventsTotal.WithLabelValues("log").Inc()
	if fl == nil {
		return
	}
	if err := fl.Append(start, at, line); err != nil {
		m.log.Errorf("failed to append fight log: %v", err)
	}
}

func (m *Manager) SetEnemyName(id uint64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || name == "" {
		return
	}
	m.ensureEnemyLocked(id).name = name
}

func (m *Manager) SetEnemyHP(id uint64, hp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.ensureEnemyLocked(id).hp = hp
}

func (m *Manager) SetEnemyMaxHP(id uint64, maxHP int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.ensureEnemyLocked(id).maxHP = maxHP
}

func (m *Manager) RemoveEnemy(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	delete(m.enemies, id)
}

// ClearAll snapshots the running session to history and starts a fresh
// one.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Info("statistics cleared")
	m.clearAllLocked()
}

func (m *Manager) clearAllLocked() {
	m.persistSessionLocked(false)
	m.users = make(map[uint64]*user)
	m.startTime = m.nowMs()
	m.lastLogTime = 0
	m.lastAutoSaveTime = 0
}

// ClearOnServerChange applies the server-switch policy: the enemy cache
// always empties; user statistics are cleared only when the setting is
// on and the outgoing session saw activity.
func (m *Manager) ClearOnServerChange() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enemies = make(map[uint64]*enemy)
	if m.settings.Get().AutoClearOnServerChange && m.lastLogTime != 0 && len(m.users) > 0 {
		m.log.Info("scene server changed, clearing session")
		m.clearAllLocked()
	}
}

// persistSessionLocked flushes the running session to the history
// store. Empty sessions are skipped. The write happens on a separate
// goroutine unless wait is set (shutdown path); the writer serialises
// concurrent snapshots internally.
func (m *Manager) persistSessionLocked(wait bool) {
	if m.history == nil || len(m.users) == 0 {
		return
	}
	snap := m.sessionSnapshotLocked()
	write := func() {
		if err := m.history.WriteSnapshot(snap); err != nil {
			m.log.Errorf("failed to write history snapshot %d: %v", snap.StartTime, err)
		}
	}
	if wait {
		write()
	} else {
		go write()
	}
}

func (m *Manager) sessionSnapshotLocked() SessionSnapshot {
	endMs := m.nowMs()
	snap := SessionSnapshot{
		StartTime: m.startTime,
		Users:     make(map[string]UserSummary, len(m.users)),
		Details:   make(map[string]SkillDetail, len(m.users)),
		Summary: SessionSummary{
			StartTime:    m.startTime,
			EndTime:      endMs,
			Duration:     endMs - m.startTime,
			UserCount:    len(m.users),
			Version:      m.version,
			MaxHPMonster: m.maxHPMonsterLocked(),
		},
	}
	for uid, u := range m.users {
		key := strconv.FormatUint(uid, 10)
		snap.Users[key] = u.summary()
		snap.Details[key] = u.skillDetail()
	}
	return snap
}

func (m *Manager) maxHPMonsterLocked() string {
	var best *enemy
	for _, e := range m.enemies {
		if e.name == "" {
			continue
		}
		if best == nil || e.maxHP > best.maxHP {
			best = e
		}
	}
	if best == nil {
		return ""
	}
	return best.name
}

// TickRealtime recomputes every user's sliding-window DPS/HPS. Driven
// by the 100 ms scheduler job.
func (m *Manager) TickRealtime() {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := m.nowMs()
	for _, u := range m.users {
		u.damage.updateRealtime(nowMs)
		u.healing.updateRealtime(nowMs)
	}
}

// AutoSave snapshots the session to history when combat activity
// arrived since the previous save. Driven by the 10 s scheduler job.
func (m *Manager) AutoSave() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.users) == 0 || m.lastLogTime < m.lastAutoSaveTime {
		return
	}
	m.lastAutoSaveTime = m.nowMs()
	m.persistSessionLocked(false)
}

// Snapshot returns a deep copy of the current user and enemy state.
func (m *Manager) Snapshot() DataSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := DataSnapshot{
		Users:   make(map[string]UserSummary, len(m.users)),
		Enemies: make(map[string]EnemySummary, len(m.enemies)),
	}
	for uid, u := range m.users {
		snap.Users[strconv.FormatUint(uid, 10)] = u.summary()
	}
	for id, e := range m.enemies {
		snap.Enemies[strconv.FormatUint(id, 10)] = EnemySummary{Name: e.name, HP: e.hp, MaxHP: e.maxHP}
	}
	return snap
}

// EnemySnapshot returns a deep copy of the enemy cache only.
func (m *Manager) EnemySnapshot() map[string]EnemySummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]EnemySummary, len(m.enemies))
	for id, e := range m.enemies {
		out[strconv.FormatUint(id, 10)] = EnemySummary{Name: e.name, HP: e.hp, MaxHP: e.maxHP}
	}
	return out
}

// SkillDetail returns the per-skill breakdown for one user.
func (m *Manager) SkillDetail(uid uint64) (SkillDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[uid]
	if !ok {
		return SkillDetail{}, core.ErrUserNotFound
	}
	return u.skillDetail(), nil
}

func (m *Manager) SetPaused(p bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused != p {
		m.log.Infof("statistics recording paused=%t", p)
	}
	m.paused = p
}

func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// SessionInfo reports the session epoch and population for /api/stats.
func (m *Manager) SessionInfo() (startMs int64, users int, paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime, len(m.users), m.paused
}

// Shutdown persists the running session and the identity cache
// synchronously.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.persistSessionLocked(true)
	m.mu.Unlock()

	if m.identity != nil {
		m.identity.Flush()
	}
}
