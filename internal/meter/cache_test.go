package meter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	c, err := OpenIdentityCache(path, nil)
	require.NoError(t, err)
	c.SetName(114514, "Aster")
	c.SetProfession(114514, "Frost Mage")
	c.SetFightPoint(114514, 12000)
	c.SetMaxHP(114514, 98765)
	c.Flush()

	reopened, err := OpenIdentityCache(path, nil)
	require.NoError(t, err)
	id, ok := reopened.Get(114514)
	require.True(t, ok)
	assert.Equal(t, Identity{Name: "Aster", Profession: "Frost Mage", FightPoint: 12000, MaxHP: 98765}, id)
}

func TestIdentityCacheDebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	c, err := OpenIdentityCache(path, nil)
	require.NoError(t, err)
	c.delay = 20 * time.Millisecond

	c.SetName(1, "Aster")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "save is debounced, not immediate")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestIdentityCacheIgnoresNoopUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	c, err := OpenIdentityCache(path, nil)
	require.NoError(t, err)

	c.SetName(1, "")
	c.SetProfession(1, "")
	c.SetFightPoint(1, 0)
	c.SetMaxHP(1, -5)
	assert.Nil(t, c.timer, "no change, no scheduled save")

	c.SetName(1, "Aster")
	c.Flush()
	c.SetName(1, "Aster")
	assert.Nil(t, c.timer)
}

func TestIdentityCacheCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c, err := OpenIdentityCache(path, nil)
	require.NoError(t, err)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestIdentityCacheMissingFileStartsEmpty(t *testing.T) {
	c, err := OpenIdentityCache(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)
	_, ok := c.Get(1)
	assert.False(t, ok)
}
