// Package meter is the statistics engine: it aggregates decoded combat
// events into per-player damage and healing statistics with per-skill
// breakdowns, sliding-window realtime rates, an enemy cache and a
// persistent identity cache, and serves deep-copied snapshots to the
// HTTP/WebSocket surface.
package meter

import "math"

// Kind tags a statistic as damage or healing.
type Kind string

const (
	KindDamage  Kind = "damage"
	KindHealing Kind = "healing"
)

// realtimeWindowMs is the sliding window over recent event values used
// for instantaneous DPS/HPS. Entries older than this are evicted on
// every recompute.
const realtimeWindowMs = 1000

// Totals accumulates event values per hit class. Total covers the four
// exclusive classes; HPLessen is the effective hit-point loss and is
// only populated for damage.
type Totals struct {
	Normal    int64 `json:"normal"`
	Critical  int64 `json:"critical"`
	Lucky     int64 `json:"lucky"`
	CritLucky int64 `json:"crit_lucky"`
	HPLessen  int64 `json:"hpLessen"`
	Total     int64 `json:"total"`
}

// Counts tallies events. Critical and Lucky are independent flags, so a
// critical lucky hit increments both; Total counts every event once.
type Counts struct {
	Normal   int64 `json:"normal"`
	Critical int64 `json:"critical"`
	Lucky    int64 `json:"lucky"`
	Total    int64 `json:"total"`
}

type windowEntry struct {
	at    int64 // unix ms
	value int64
}

// statistic aggregates one stream of combat values: either a user's
// top-level damage or healing, or one skill's share of it. Skill-level
// instances do not retain a realtime window; only the top-level pair
// feeds the DPS/HPS display.
type statistic struct {
	kind    Kind
	element string
	name    string

	totals Totals
	counts Counts

	windowed      bool
	window        []windowEntry
	realtimeValue int64
	realtimeMax   int64

	firstAt int64 // unix ms of the first record
	lastAt  int64 // unix ms of the latest record
}

func newStatistic(kind Kind, element, name string, windowed bool) *statistic {
	return &statistic{
		kind:     kind,
		element:  element,
		name:     name,
		windowed: windowed,
	}
}

// addRecord folds one event into the aggregate. Exactly one totals
// bucket receives value; the counts flags are independent.
func (s *statistic) addRecord(value int64, isCrit, isLucky bool, hpLessen, atMs int64) {
	if s.counts.Total == 0 {
		s.firstAt = atMs
	}
	s.lastAt = atMs

	switch {
	case isCrit && isLucky:
		s.totals.CritLucky += value
	case isCrit:
		s.totals.Critical += value
	case isLucky:
		s.totals.Lucky += value
	default:
		s.totals.Normal += value
	}
	s.totals.Total += value
	s.totals.HPLessen += hpLessen

	if isCrit {
		s.counts.Critical++
	}
	if isLucky {
		s.counts.Lucky++
	}
	if !isCrit && !isLucky {
		s.counts.Normal++
	}
	s.counts.Total++

	if s.windowed {
		s.window = append(s.window, windowEntry{at: atMs, value: value})
	}
}

// updateRealtime evicts expired window entries and recomputes the
// instantaneous value and its running maximum. Returns the new value.
func (s *statistic) updateRealtime(nowMs int64) int64 {
	keep := s.window[:0]
	var sum int64
	for _, e := range s.window {
		if nowMs-e.at > realtimeWindowMs {
			continue
		}
		keep = append(keep, e)
		sum += e.value
	}
	s.window = keep
	s.realtimeValue = sum
	if sum > s.realtimeMax {
		s.realtimeMax = sum
	}
	return sum
}

// totalPerSecond is the session-average rate. Zero until two distinct
// record timestamps exist; never negative or non-finite.
func (s *statistic) totalPerSecond() float64 {
	if s.counts.Total == 0 || s.lastAt == s.firstAt {
		return 0
	}
	v := float64(s.totals.Total) * 1000 / float64(s.lastAt-s.firstAt)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
