package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
)

func sampleSnapshot(startMs int64) meter.SessionSnapshot {
	return meter.SessionSnapshot{
		StartTime: startMs,
		Users: map[string]meter.UserSummary{
			"114514": {
				Name:        "Aster",
				Profession:  "Unknown-Frostbeam",
				TotalDamage: meter.Totals{Normal: 1000, Total: 1000, HPLessen: 1000},
				TotalCount:  meter.Counts{Normal: 1, Total: 1},
				Attrs:       map[string]int64{"hp": 3210},
			},
		},
		Details: map[string]meter.SkillDetail{
			"114514": {
				Name:       "Aster",
				Profession: "Unknown-Frostbeam",
				Attrs:      map[string]int64{"hp": 3210},
				Skills: map[string]meter.SkillView{
					"damage:1241": {
						ID:     1241,
						Kind:   meter.KindDamage,
						Name:   "Frostbeam",
						Totals: meter.Totals{Normal: 1000, Total: 1000, HPLessen: 1000},
						Counts: meter.Counts{Normal: 1, Total: 1},
					},
				},
			},
		},
		Summary: meter.SessionSummary{
			StartTime:    startMs,
			EndTime:      startMs + 90_000,
			Duration:     90_000,
			UserCount:    1,
			Version:      "test",
			MaxHPMonster: "Polar Dummy",
		},
	}
}

func TestWriterLayout(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	const startMs = int64(1_755_000_000_000)

	require.NoError(t, w.WriteSnapshot(sampleSnapshot(startMs)))

	dir := filepath.Join(root, "1755000000000")
	for _, name := range []string{"allUserData.json", "summary.json", filepath.Join("users", "114514.json")} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var sum meter.SessionSummary
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, "Polar Dummy", sum.MaxHPMonster)
	assert.Equal(t, 1, sum.UserCount)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	r := NewReader(root)
	const startMs = int64(1_755_000_000_000)

	require.NoError(t, w.WriteSnapshot(sampleSnapshot(startMs)))

	raw, err := r.AllUserData("1755000000000")
	require.NoError(t, err)
	var users map[string]meter.UserSummary
	require.NoError(t, json.Unmarshal(raw, &users))
	assert.Equal(t, int64(1000), users["114514"].TotalDamage.Total)

	raw, err = r.SkillDetail("1755000000000", "114514")
	require.NoError(t, err)
	var detail meter.SkillDetail
	require.NoError(t, json.Unmarshal(raw, &detail))
	assert.Equal(t, "Frostbeam", detail.Skills["damage:1241"].Name)
}

func TestReaderList(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"1755000000500", "1755000000000", "junk", "12abc"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "9999999"), nil, 0o644)) // file, not dir

	list, err := NewReader(root).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"1755000000000", "1755000000500"}, list)
}

func TestReaderListMissingRoot(t *testing.T) {
	list, err := NewReader(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReaderMissingSession(t *testing.T) {
	r := NewReader(t.TempDir())

	_, err := r.Summary("1755000000000")
	assert.ErrorIs(t, err, core.ErrHistoryNotFound)

	_, err = r.SkillDetail("1755000000000", "1")
	assert.ErrorIs(t, err, core.ErrHistoryNotFound)

	_, err = r.FightLogPath("1755000000000")
	assert.ErrorIs(t, err, core.ErrHistoryNotFound)
}

func TestReaderRejectsTraversal(t *testing.T) {
	r := NewReader(t.TempDir())

	_, err := r.Summary("../etc")
	assert.ErrorIs(t, err, core.ErrHistoryNotFound)

	_, err = r.SkillDetail("1755000000000", "../../secret")
	assert.ErrorIs(t, err, core.ErrHistoryNotFound)
}

func TestFightLogAppend(t *testing.T) {
	root := t.TempDir()
	l := NewFightLog(root)
	at := time.Date(2026, 8, 25, 12, 30, 45, 123_000_000, time.UTC)

	require.NoError(t, l.Append(1_755_000_000_000, at, "Aster hits Polar Dummy for 1000"))
	require.NoError(t, l.Append(1_755_000_000_000, at.Add(time.Second), "Aster heals Briar for 600"))

	data, err := os.ReadFile(filepath.Join(root, "1755000000000", "fight.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"[2026-08-25 12:30:45.123] Aster hits Polar Dummy for 1000\n"+
			"[2026-08-25 12:30:46.123] Aster heals Briar for 600\n",
		string(data))

	path, err := NewReader(root).FightLogPath("1755000000000")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
