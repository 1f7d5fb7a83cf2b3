package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaultsOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := OpenSettings(path)
	require.NoError(t, err)

	got := store.Get()
	assert.True(t, got.AutoClearOnServerChange)
	assert.False(t, got.AutoClearOnTimeout)
	assert.False(t, got.OnlyRecordEliteDummy)

	// The file is created so the user can edit it by hand.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := OpenSettings(path)
	require.NoError(t, err)

	updated, err := store.Update(map[string]any{
		"autoClearOnTimeout":   true,
		"onlyRecordEliteDummy": true,
	})
	require.NoError(t, err)
	assert.True(t, updated.AutoClearOnTimeout)
	assert.True(t, updated.OnlyRecordEliteDummy)
	assert.True(t, updated.AutoClearOnServerChange, "untouched key keeps its value")

	// A second store reading the same file sees the persisted values.
	reopened, err := OpenSettings(path)
	require.NoError(t, err)
	assert.Equal(t, updated, reopened.Get())
}

func TestSettingsUnknownKeysPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	seed := `{"autoClearOnTimeout": true, "theme": "dark", "windowOpacity": 0.8}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	store, err := OpenSettings(path)
	require.NoError(t, err)
	assert.True(t, store.Get().AutoClearOnTimeout)

	_, err = store.Update(map[string]any{"autoClearOnTimeout": false})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))

	assert.Equal(t, "dark", onDisk["theme"])
	assert.Equal(t, 0.8, onDisk["windowOpacity"])
	assert.Equal(t, false, onDisk["autoClearOnTimeout"])
}

func TestSettingsAllIncludesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme": "light"}`), 0o644))

	store, err := OpenSettings(path)
	require.NoError(t, err)

	all := store.All()
	assert.Equal(t, "light", all["theme"])
	assert.Contains(t, all, "autoClearOnServerChange")
}

func TestSettingsCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := OpenSettings(path)
	require.NoError(t, err)
	assert.True(t, store.Get().AutoClearOnServerChange)
}
