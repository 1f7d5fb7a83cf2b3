package meter

import "strconv"

// The types below are the single on-wire schema: /api/data, the
// WebSocket broadcast and the history snapshot files all serialise
// these same shapes. They are deep copies; holding one never aliases
// engine state.

// DataSnapshot is the payload of GET /api/data and of the periodic
// WebSocket "data" broadcast.
type DataSnapshot struct {
	Users   map[string]UserSummary  `json:"user"`
	Enemies map[string]EnemySummary `json:"enemy"`
}

// UserSummary is one player's aggregate view.
type UserSummary struct {
	Name           string           `json:"name"`
	Profession     string           `json:"profession"`
	FightPoint     int64            `json:"fightPoint"`
	TotalDamage    Totals           `json:"total_damage"`
	TotalCount     Counts           `json:"total_count"`
	TotalHealing   Totals           `json:"total_healing"`
	HealingCount   Counts           `json:"healing_count"`
	TakenDamage    int64            `json:"taken_damage"`
	DeadCount      int64            `json:"dead_count"`
	RealtimeDPS    int64            `json:"realtime_dps"`
	RealtimeDPSMax int64            `json:"realtime_dps_max"`
	TotalDPS       float64          `json:"total_dps"`
	RealtimeHPS    int64            `json:"realtime_hps"`
	RealtimeHPSMax int64            `json:"realtime_hps_max"`
	TotalHPS       float64          `json:"total_hps"`
	Attrs          map[string]int64 `json:"attr"`
}

// EnemySummary is one enemy cache entry.
type EnemySummary struct {
	Name  string `json:"name"`
	HP    int64  `json:"hp"`
	MaxHP int64  `json:"max_hp"`
}

// SkillDetail is the per-user breakdown served by /api/skill/{uid} and
// written to the history users/<uid>.json files.
type SkillDetail struct {
	Name        string               `json:"name"`
	Profession  string               `json:"profession"`
	FightPoint  int64                `json:"fightPoint"`
	TakenDamage int64                `json:"taken_damage"`
	DeadCount   int64                `json:"dead_count"`
	Attrs       map[string]int64     `json:"attr"`
	Skills      map[string]SkillView `json:"skills"`
}

// SkillView is one sub-aggregate, keyed "<kind>:<skillId>" in
// SkillDetail.Skills.
type SkillView struct {
	ID             int64   `json:"id"`
	Kind           Kind    `json:"type"`
	Name           string  `json:"name"`
	Element        string  `json:"element"`
	Totals         Totals  `json:"stats"`
	Counts         Counts  `json:"counts"`
	TotalPerSecond float64 `json:"total_per_second"`
}

// SessionSummary is the history snapshot's summary.json document.
// MaxHPMonster names the enemy with the largest observed max hp.
type SessionSummary struct {
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	Duration     int64  `json:"duration"`
	UserCount    int    `json:"userCount"`
	Version      string `json:"version"`
	MaxHPMonster string `json:"maxHpMonster"`
}

// SessionSnapshot is one full session as flushed to ./logs/<startTime>/:
// Users becomes allUserData.json, Details the per-uid files under
// users/, Summary the summary.json document.
type SessionSnapshot struct {
	StartTime int64
	Users     map[string]UserSummary
	Details   map[string]SkillDetail
	Summary   SessionSummary
}

func skillViewKey(k skillKey) string {
	return string(k.kind) + ":" + strconv.FormatInt(k.id, 10)
}

func copyAttrs(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (u *user) summary() UserSummary {
	return UserSummary{
		Name:           u.name,
		Profession:     u.displayProfession(),
		FightPoint:     u.fightPoint,
		TotalDamage:    u.damage.totals,
		TotalCount:     u.damage.counts,
		TotalHealing:   u.healing.totals,
		HealingCount:   u.healing.counts,
		TakenDamage:    u.takenDamage,
		DeadCount:      u.deadCount,
		RealtimeDPS:    u.damage.realtimeValue,
		RealtimeDPSMax: u.damage.realtimeMax,
		TotalDPS:       u.damage.totalPerSecond(),
		RealtimeHPS:    u.healing.realtimeValue,
		RealtimeHPSMax: u.healing.realtimeMax,
		TotalHPS:       u.healing.totalPerSecond(),
		Attrs:          copyAttrs(u.attrs),
	}
}

func (u *user) skillDetail() SkillDetail {
	detail := SkillDetail{
		Name:        u.name,
		Profession:  u.displayProfession(),
		FightPoint:  u.fightPoint,
		TakenDamage: u.takenDamage,
		DeadCount:   u.deadCount,
		Attrs:       copyAttrs(u.attrs),
		Skills:      make(map[string]SkillView, len(u.skills)),
	}
	for key, s := range u.skills {
		detail.Skills[skillViewKey(key)] = SkillView{
			ID:             key.id,
			Kind:           s.kind,
			Name:           s.name,
			Element:        s.element,
			Totals:         s.totals,
			Counts:         s.counts,
			TotalPerSecond: s.totalPerSecond(),
		}
	}
	return detail
}
