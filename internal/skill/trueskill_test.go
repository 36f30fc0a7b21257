package skill

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateWinMovesMeansTowardOutcome(t *testing.T) {
	team1 := []Rating{NewRating(), NewRating()}
	team2 := []Rating{NewRating(), NewRating()}

	out1, out2 := Rate(team1, team2, Win)

	for i, r := range out1 {
		assert.Greater(t, r.Mean, team1[i].Mean, "winner mean must rise")
		assert.Less(t, r.Stdev, team1[i].Stdev, "uncertainty must shrink")
	}
	for i, r := range out2 {
		assert.Less(t, r.Mean, team2[i].Mean, "loser mean must fall")
		assert.Less(t, r.Stdev, team2[i].Stdev, "uncertainty must shrink")
	}
}

func TestRateIsPure(t *testing.T) {
	team1 := []Rating{{Mean: 1100, Stdev: 200}}
	team2 := []Rating{{Mean: 900, Stdev: 180}}

	a1, a2 := Rate(team1, team2, Win)
	b1, b2 := Rate(team1, team2, Win)

	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
	// Inputs untouched.
	assert.Equal(t, Rating{Mean: 1100, Stdev: 200}, team1[0])
	assert.Equal(t, Rating{Mean: 900, Stdev: 180}, team2[0])
}

func TestRateUpsetMovesMoreThanExpectedWin(t *testing.T) {
	strong := []Rating{{Mean: 1400, Stdev: 100}}
	weak := []Rating{{Mean: 600, Stdev: 100}}

	_, afterExpected := Rate(strong, weak, Win)
	expectedLoss := weak[0].Mean - afterExpected[0].Mean

	upset1, _ := Rate(weak, strong, Win)
	upsetGain := upset1[0].Mean - weak[0].Mean

	assert.Greater(t, upsetGain, expectedLoss*2, "an upset must move ratings far more than an expected result")
}

func TestRateDrawBetweenEqualTeamsIsSymmetric(t *testing.T) {
	team1 := []Rating{NewRating(), NewRating()}
	team2 := []Rating{NewRating(), NewRating()}

	out1, out2 := Rate(team1, team2, Draw)

	for i := range out1 {
		assert.InDelta(t, team1[i].Mean, out1[i].Mean, 1e-9, "equal-team draw must not move means")
		assert.InDelta(t, out1[i].Mean, out2[i].Mean, 1e-9)
		assert.Less(t, out1[i].Stdev, team1[i].Stdev, "a draw is still evidence")
	}
}

func TestRateDrawPullsUnevenTeamsTogether(t *testing.T) {
	strong := []Rating{{Mean: 1300, Stdev: 150}}
	weak := []Rating{{Mean: 700, Stdev: 150}}

	out1, out2 := Rate(strong, weak, Draw)

	assert.Less(t, out1[0].Mean, strong[0].Mean, "drawing against a weaker side is bad news")
	assert.Greater(t, out2[0].Mean, weak[0].Mean, "drawing against a stronger side is good news")
}

func TestRateExtremeMismatchStaysFinite(t *testing.T) {
	strong := []Rating{{Mean: 5000, Stdev: 50}}
	weak := []Rating{{Mean: 100, Stdev: 50}}

	// The guarded tail: the overwhelming favorite loses.
	out1, out2 := Rate(weak, strong, Win)
	for _, r := range append(out1, out2...) {
		require.False(t, math.IsNaN(r.Mean) || math.IsInf(r.Mean, 0))
		require.False(t, math.IsNaN(r.Stdev) || math.IsInf(r.Stdev, 0))
		require.Greater(t, r.Stdev, 0.0)
	}
}

func TestRatingsConvergeUnderRepeatedPlay(t *testing.T) {
	// Two players of hidden unequal strength; the stronger one wins 80%
	// of rounds. After many rounds the ratings should order them
	// correctly with low uncertainty.
	rng := rand.New(rand.NewSource(7))
	a, b := NewRating(), NewRating()

	for i := 0; i < 200; i++ {
		if rng.Float64() < 0.8 {
			as, bs := Rate([]Rating{a}, []Rating{b}, Win)
			a, b = as[0], bs[0]
		} else {
			bs, as := Rate([]Rating{b}, []Rating{a}, Win)
			a, b = as[0], bs[0]
		}
	}

	assert.Greater(t, a.Mean, b.Mean)
	assert.Less(t, a.Stdev, DefaultStdev/2)
	assert.Less(t, b.Stdev, DefaultStdev/2)
}

func TestPopulationMeanHoldsUnderRandomizedOutcomes(t *testing.T) {
	// Rating is zero-sum in expectation: with randomized rosters and
	// outcomes the population mean must stay near the prior, not drift.
	rng := rand.New(rand.NewSource(11))
	pop := make([]Rating, 8)
	for i := range pop {
		pop[i] = NewRating()
	}

	for round := 0; round < 500; round++ {
		perm := rng.Perm(len(pop))
		winners := make([]Rating, 4)
		losers := make([]Rating, 4)
		for i := 0; i < 4; i++ {
			winners[i] = pop[perm[i]]
			losers[i] = pop[perm[4+i]]
		}

		out1, out2 := Rate(winners, losers, Win)
		for i := 0; i < 4; i++ {
			pop[perm[i]] = out1[i]
			pop[perm[4+i]] = out2[i]
		}
	}

	mean := 0.0
	for _, r := range pop {
		mean += r.Mean
	}
	mean /= float64(len(pop))
	assert.InDelta(t, DefaultMean, mean, 50)
}

func TestMMRIsConservative(t *testing.T) {
	assert.Equal(t, 500, NewRating().MMR())
	assert.Equal(t, 1000, Rating{Mean: 1200, Stdev: 100}.MMR())
}

func TestWinProbability(t *testing.T) {
	equal1 := []Rating{NewRating(), NewRating()}
	equal2 := []Rating{NewRating(), NewRating()}
	assert.InDelta(t, 0.5, WinProbability(equal1, equal2), 1e-9)

	strong := []Rating{{Mean: 1400, Stdev: 100}}
	weak := []Rating{{Mean: 600, Stdev: 100}}
	p := WinProbability(strong, weak)
	assert.Greater(t, p, 0.8)
	assert.InDelta(t, 1.0, p+WinProbability(weak, strong), 1e-9, "probabilities of the two orderings must be complementary")
}

func TestQualityPeaksForEvenTeams(t *testing.T) {
	even := Quality([]Rating{NewRating()}, []Rating{NewRating()})
	uneven := Quality([]Rating{{Mean: 1400, Stdev: DefaultStdev}}, []Rating{{Mean: 600, Stdev: DefaultStdev}})

	assert.Greater(t, even, uneven)
	assert.Greater(t, even, 0.0)
	assert.LessOrEqual(t, even, 1.0)
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 50.0, Percentile(500, 500, 100), 1e-9)
	assert.Greater(t, Percentile(700, 500, 100), 97.0)
	assert.Less(t, Percentile(300, 500, 100), 3.0)
	assert.InDelta(t, 50.0, Percentile(900, 500, 0), 1e-9, "degenerate population falls back to the median")
}

func TestGroupFor(t *testing.T) {
	assert.Equal(t, "Scrub", GroupFor(-250))
	assert.Equal(t, "Scrub", GroupFor(0))
	assert.Equal(t, "Cardboard I", GroupFor(skillGroupSpacing))
	assert.Equal(t, "Low-Key Dirty", GroupFor(skillGroupSpacing*float64(len(skillGroupNames)-1)))
	assert.Equal(t, "Low-Key Dirty", GroupFor(1e9))
}
