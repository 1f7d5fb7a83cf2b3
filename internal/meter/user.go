package meter

// skillKey identifies one sub-aggregate: the same skill id used for
// damage and for healing is tracked separately.
type skillKey struct {
	kind Kind
	id   int64
}

// user holds everything observed about one player uid in the current
// session. All access is serialised by the owning Manager.
type user struct {
	uid           uint64
	name          string
	profession    string
	subProfession string
	fightPoint    int64
	takenDamage   int64
	deadCount     int64
	attrs         map[string]int64

	damage  *statistic
	healing *statistic
	skills  map[skillKey]*statistic
}

func newUser(uid uint64) *user {
	return &user{
		uid:     uid,
		attrs:   make(map[string]int64),
		damage:  newStatistic(KindDamage, "", "", true),
		healing: newStatistic(KindHealing, "", "", true),
		skills:  make(map[skillKey]*statistic),
	}
}

func (u *user) recordDamage(skillID int64, element string, value int64, isCrit, isLucky bool, hpLessen, atMs int64) {
	u.damage.addRecord(value, isCrit, isLucky, hpLessen, atMs)
	u.skillStat(KindDamage, skillID, element).addRecord(value, isCrit, isLucky, hpLessen, atMs)
}

func (u *user) recordHealing(skillID int64, element string, value int64, isCrit, isLucky bool, atMs int64) {
	u.healing.addRecord(value, isCrit, isLucky, 0, atMs)
	u.skillStat(KindHealing, skillID, element).addRecord(value, isCrit, isLucky, 0, atMs)
}

func (u *user) recordTakenDamage(value int64, isDead bool) {
	u.takenDamage += value
	if isDead {
		u.deadCount++
	}
}

// skillStat returns the sub-aggregate for (kind, skillID), creating it
// on first use. Sub-aggregates never retain a realtime window.
func (u *user) skillStat(kind Kind, skillID int64, element string) *statistic {
	key := skillKey{kind: kind, id: skillID}
	s, ok := u.skills[key]
	if !ok {
		s = newStatistic(kind, element, SkillName(skillID), false)
		u.skills[key] = s
	}
	return s
}

// setProfession switches the primary profession. A new value invalidates
// any previously inferred sub-profession.
func (u *user) setProfession(p string) {
	if p == "" || p == u.profession {
		return
	}
	u.profession = p
	u.subProfession = ""
}

func (u *user) setSubProfession(sp string) {
	if sp != "" {
		u.subProfession = sp
	}
}

// displayProfession is the label shown to clients: the primary
// profession (or "Unknown") with the inferred sub-profession appended.
func (u *user) displayProfession() string {
	p := u.profession
	if p == "" {
		p = "Unknown"
	}
	if u.subProfession != "" {
		p += "-" + u.subProfession
	}
	return p
}
