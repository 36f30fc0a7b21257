// Package skill implements the two-team Bayesian skill model and its
// derived display metrics (MMR, percentile, skill groups, impact score).
package skill

import (
	"math"
)

// Model parameters. MMR is a conservative projection of the rating:
// round(mean - 2*stdev).
const (
	DefaultMean  = 1000.0
	DefaultStdev = DefaultMean / 4.0
	Beta         = DefaultStdev * 2.0
	Tau          = DefaultStdev / 100.0
	MMRStdevCost = 2.0
)

// Outcome is the result of a round from the first team's perspective.
type Outcome int

const (
	Win Outcome = iota
	Draw
)

// Rating is a player's skill belief. Mean and Stdev are always positive
// and finite.
type Rating struct {
	Mean  float64
	Stdev float64
}

// NewRating returns the fixed prior every player starts from.
func NewRating() Rating {
	return Rating{Mean: DefaultMean, Stdev: DefaultStdev}
}

// MMR is the conservative display number derived from the rating.
func (r Rating) MMR() int {
	return int(math.Round(r.Mean - MMRStdevCost*r.Stdev))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// vExceeds and wExceeds are the truncated-Gaussian mean/variance
// corrections for a strict win.
func vExceeds(t float64) float64 {
	denom := normCDF(t)
	if denom < 1e-15 {
		// Numerical guard far in the tail.
		return -t
	}
	return normPDF(t) / denom
}

func wExceeds(t float64) float64 {
	v := vExceeds(t)
	return v * (v + t)
}

// Rate applies one two-team update and returns the posterior ratings for
// team1 then team2 in input order. It is a pure function of its inputs.
// For Win, team1 is the winner; for Draw the order does not matter beyond
// which side's mean the (symmetric) correction is applied to.
func Rate(team1, team2 []Rating, outcome Outcome) ([]Rating, []Rating) {
	n := float64(len(team1) + len(team2))

	// Dynamics factor: variances age by tau^2 before each update so
	// ratings never freeze entirely.
	var1 := make([]float64, len(team1))
	var2 := make([]float64, len(team2))
	sumVar := 0.0
	sumMu1, sumMu2 := 0.0, 0.0
	for i, r := range team1 {
		var1[i] = r.Stdev*r.Stdev + Tau*Tau
		sumVar += var1[i]
		sumMu1 += r.Mean
	}
	for i, r := range team2 {
		var2[i] = r.Stdev*r.Stdev + Tau*Tau
		sumVar += var2[i]
		sumMu2 += r.Mean
	}

	c2 := sumVar + n*Beta*Beta
	c := math.Sqrt(c2)
	t := (sumMu1 - sumMu2) / c

	var v, w float64
	switch outcome {
	case Draw:
		// Zero-margin draw limits of the within-margin corrections.
		v = -t
		w = 1
	default:
		v = vExceeds(t)
		w = wExceeds(t)
	}

	update := func(mu, variance, sign float64) Rating {
		newMu := mu + sign*(variance/c)*v
		newVar := variance * (1 - (variance/c2)*w)
		if newVar < 1e-6 {
			newVar = 1e-6
		}
		return Rating{Mean: newMu, Stdev: math.Sqrt(newVar)}
	}

	out1 := make([]Rating, len(team1))
	out2 := make([]Rating, len(team2))
	for i, r := range team1 {
		out1[i] = update(r.Mean, var1[i], 1)
	}
	for i, r := range team2 {
		out2[i] = update(r.Mean, var2[i], -1)
	}
	return out1, out2
}

// WinProbability is the model's probability that team1 beats team2.
func WinProbability(team1, team2 []Rating) float64 {
	deltaMu := 0.0
	sumSigma2 := 0.0
	for _, r := range team1 {
		deltaMu += r.Mean
		sumSigma2 += r.Stdev * r.Stdev
	}
	for _, r := range team2 {
		deltaMu -= r.Mean
		sumSigma2 += r.Stdev * r.Stdev
	}
	n := float64(len(team1) + len(team2))
	denom := math.Sqrt(n*Beta*Beta + sumSigma2)
	return normCDF(deltaMu / denom)
}

// Quality is the model's draw probability for the pairing; it peaks when
// the teams are evenly matched and well known. For two one-player teams it
// reduces to the classic 1-vs-1 quality formula.
func Quality(team1, team2 []Rating) float64 {
	deltaMu := 0.0
	sumSigma2 := 0.0
	for _, r := range team1 {
		deltaMu += r.Mean
		sumSigma2 += r.Stdev * r.Stdev
	}
	for _, r := range team2 {
		deltaMu -= r.Mean
		sumSigma2 += r.Stdev * r.Stdev
	}
	n := float64(len(team1) + len(team2))
	c2 := n*Beta*Beta + sumSigma2
	return math.Sqrt(n*Beta*Beta/c2) * math.Exp(-deltaMu*deltaMu/(2*c2))
}

// Percentile places an MMR within a normally distributed population, in
// percent.
func Percentile(mmr float64, popMean, popStdev float64) float64 {
	if popStdev <= 0 {
		return 50.0
	}
	return 100.0 * normCDF((mmr-popMean)/popStdev)
}
