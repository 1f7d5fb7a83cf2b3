package meter

import (
	_ "embed"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed skills.yaml
var skillTableRaw []byte

type skillTable struct {
	Names          map[int64]string `yaml:"names"`
	SubProfessions map[int64]string `yaml:"sub_professions"`
}

var skills = loadSkillTable()

func loadSkillTable() skillTable {
	var t skillTable
	if err := yaml.Unmarshal(skillTableRaw, &t); err != nil {
		panic("meter: embedded skill table: " + err.Error())
	}
	return t
}

// SkillName translates a skill id into its display name. Ids missing
// from the table render as the numeric id.
func SkillName(id int64) string {
	if name, ok := skills.Names[id]; ok {
		return name
	}
	return strconv.FormatInt(id, 10)
}

// subProfessionForSkill reports the sub-profession label implied by a
// skill id, if any.
func subProfessionForSkill(id int64) (string, bool) {
	sp, ok := skills.SubProfessions[id]
	return sp, ok
}
