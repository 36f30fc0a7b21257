package skill

// Impact score coefficients, fit against per-round averages in the style
// of HLTV's Rating 2.0. The weighting table is a configuration constant,
// not a per-request input.
const (
	impactKillCoeff   = 0.2778
	impactDeathCoeff  = 0.2559
	impactDamageCoeff = 0.00651
	impactKASCoeff    = 0.00633
	impactIntercept   = 0.18377
)

// RoundAverages are a player's per-round stat averages over some scope
// (season or overall). KASRate is the fraction of rounds with a kill,
// assist, or survival; DeathRate the fraction of rounds died; MVPRate the
// fraction of rounds awarded MVP.
type RoundAverages struct {
	Kills     float64
	DeathRate float64
	Damage    float64
	KASRate   float64
	MVPRate   float64
	Rounds    int
}

// Impact blends a player's per-round averages into a single score. Every
// rate component enters on its native 0-1 scale.
func Impact(avg RoundAverages) float64 {
	if avg.Rounds == 0 {
		return 0
	}
	return impactKillCoeff*avg.Kills -
		impactDeathCoeff*avg.DeathRate +
		impactDamageCoeff*avg.Damage +
		impactKASCoeff*avg.KASRate +
		impactIntercept
}
