package skill

import (
	"math"
	"sort"
)

// Skill groups bucket MMR into named tiers, spaced 0.4 standard deviations
// apart above the floor group.
const skillGroupSpacing = DefaultStdev * 0.4

var skillGroupNames = []string{
	"Scrub",
	"Cardboard I",
	"Cardboard II",
	"Cardboard III",
	"Cardboard Elite",
	"Plastic I",
	"Plastic II",
	"Plastic Elite",
	"Legendary Wood",
	"Legendary Wood Master",
	"Supreme Legendary Wood",
	"Garb Salad",
	"Master Garbian",
	"Master Garbian Elite",
	"Low-Key Dirty",
}

// SkillGroup is one bucket of the ordered threshold table. LowerBound is
// inclusive; the first group has no lower bound.
type SkillGroup struct {
	LowerBound float64
	Name       string
}

// Groups returns the ordered threshold table.
func Groups() []SkillGroup {
	groups := make([]SkillGroup, len(skillGroupNames))
	for i, name := range skillGroupNames {
		bound := skillGroupSpacing * float64(i)
		if i == 0 {
			bound = math.Inf(-1)
		}
		groups[i] = SkillGroup{LowerBound: bound, Name: name}
	}
	return groups
}

// GroupFor returns the name of the bucket containing mmr.
func GroupFor(mmr float64) string {
	groups := Groups()
	idx := sort.Search(len(groups), func(i int) bool {
		return groups[i].LowerBound > mmr
	})
	return groups[idx-1].Name
}
