package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkillNameLookup(t *testing.T) {
	assert.Equal(t, "Frostbeam", SkillName(1241))
	assert.Equal(t, "424242", SkillName(424242), "unknown ids fall back to the numeric id")
}

func TestSubProfessionInference(t *testing.T) {
	sp, ok := subProfessionForSkill(1241)
	assert.True(t, ok)
	assert.Equal(t, "Frostbeam", sp)

	_, ok = subProfessionForSkill(1704)
	assert.False(t, ok, "plain skills imply no sub-profession")
}
