// Package matchmaking searches two-team partitions of a candidate pool for
// the most evenly matched splits. Small pools are searched exhaustively;
// larger ones fall back to bounded local search. The engine is read-only
// and safe to run concurrently with itself and with ingestion.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/skill"
)

// ErrInvalidInput rejects candidate pools that cannot be split into two
// equal teams.
var ErrInvalidInput = errors.New("invalid matchmaking input")

type Candidate struct {
	PlayerID    string
	DisplayName string
	Rating      skill.Rating
}

// Match is one suggested partition. Team1 is the favorite: its win
// probability is always >= Team2's. Probabilities sum to 1 minus the draw
// probability (Quality).
type Match struct {
	Team1               []Candidate
	Team2               []Candidate
	Quality             float64
	Team1WinProbability float64
	Team2WinProbability float64
	// Exact is false when the partition came from the heuristic search
	// above the exhaustive threshold; results are then best-effort.
	Exact bool
}

type Options struct {
	// Limit caps how many partitions are returned; 0 means the default.
	Limit int
	// Budget bounds heuristic search iterations; 0 means the default.
	Budget int
	// Seed fixes the heuristic search's randomness for reproducibility;
	// 0 leaves it unseeded deterministic too (seed 1).
	Seed int64
}

// Suggest returns the top partitions of the candidate pool ranked by
// quality descending, ties broken by smaller rating-mean gap.
func Suggest(ctx context.Context, candidates []Candidate, opts Options) ([]Match, error) {
	n := len(candidates)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 players, got %d", ErrInvalidInput, n)
	}
	if n%2 != 0 {
		return nil, fmt.Errorf("%w: odd player count %d cannot split into two equal teams", ErrInvalidInput, n)
	}

	if opts.Limit <= 0 {
		opts.Limit = constants.DefaultSuggestionLimit
	}
	if opts.Budget <= 0 {
		opts.Budget = constants.DefaultSearchBudget
	}

	pool := make([]Candidate, n)
	copy(pool, candidates)
	sort.Slice(pool, func(i, j int) bool { return pool[i].PlayerID < pool[j].PlayerID })

	var scored []scoredPartition
	exact := n <= constants.ExhaustiveSearchThreshold
	if exact {
		scored = exhaustive(pool)
	} else {
		var err error
		scored, err = localSearch(ctx, pool, opts)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].quality != scored[j].quality {
			return scored[i].quality > scored[j].quality
		}
		return scored[i].meanGap < scored[j].meanGap
	})
	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}

	matches := make([]Match, len(scored))
	for i, sp := range scored {
		matches[i] = sp.toMatch(pool, exact)
	}
	return matches, nil
}

// scoredPartition stores the indices of team1's members; team2 is the
// complement. Index 0 is always on team1, which deduplicates symmetric
// A/B-swapped partitions by construction.
type scoredPartition struct {
	team1   []int
	quality float64
	meanGap float64
}

func score(pool []Candidate, team1 []int) scoredPartition {
	inTeam1 := make([]bool, len(pool))
	for _, i := range team1 {
		inTeam1[i] = true
	}

	var r1, r2 []skill.Rating
	var sum1, sum2 float64
	for i, c := range pool {
		if inTeam1[i] {
			r1 = append(r1, c.Rating)
			sum1 += c.Rating.Mean
		} else {
			r2 = append(r2, c.Rating)
			sum2 += c.Rating.Mean
		}
	}

	return scoredPartition{
		team1:   team1,
		quality: skill.Quality(r1, r2),
		meanGap: math.Abs(sum1/float64(len(r1)) - sum2/float64(len(r2))),
	}
}

func (sp scoredPartition) toMatch(pool []Candidate, exact bool) Match {
	inTeam1 := make([]bool, len(pool))
	for _, i := range sp.team1 {
		inTeam1[i] = true
	}

	var team1, team2 []Candidate
	var r1, r2 []skill.Rating
	for i, c := range pool {
		if inTeam1[i] {
			team1 = append(team1, c)
			r1 = append(r1, c.Rating)
		} else {
			team2 = append(team2, c)
			r2 = append(r2, c.Rating)
		}
	}

	pWin := skill.WinProbability(r1, r2)
	if pWin < 0.5 {
		team1, team2 = team2, team1
		pWin = 1.0 - pWin
	}

	// Strongest players first within each team.
	byMMR := func(team []Candidate) {
		sort.Slice(team, func(i, j int) bool {
			return team[i].Rating.MMR() > team[j].Rating.MMR()
		})
	}
	byMMR(team1)
	byMMR(team2)

	pDraw := sp.quality
	return Match{
		Team1:               team1,
		Team2:               team2,
		Quality:             sp.quality,
		Team1WinProbability: pWin * (1 - pDraw),
		Team2WinProbability: (1 - pWin) * (1 - pDraw),
		Exact:               exact,
	}
}

// exhaustive enumerates every partition into two equal teams exactly once
// (index 0 pinned to team1).
func exhaustive(pool []Candidate) []scoredPartition {
	n := len(pool)
	teamSize := n / 2

	var result []scoredPartition
	team1 := make([]int, 0, teamSize)
	team1 = append(team1, 0)

	var recurse func(next int)
	recurse = func(next int) {
		if len(team1) == teamSize {
			chosen := make([]int, teamSize)
			copy(chosen, team1)
			result = append(result, score(pool, chosen))
			return
		}
		// Not enough indices left to fill the team.
		for i := next; n-i >= teamSize-len(team1); i++ {
			team1 = append(team1, i)
			recurse(i + 1)
			team1 = team1[:len(team1)-1]
		}
	}
	recurse(1)
	return result
}

// localSearch runs a simulated-annealing swap search over partitions under
// an iteration budget, collecting the best distinct partitions seen. A
// heuristic approximation: callers must treat results as best-effort.
func localSearch(ctx context.Context, pool []Candidate, opts Options) ([]scoredPartition, error) {
	n := len(pool)
	teamSize := n / 2
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	// Random initial assignment with index 0 pinned to team1.
	rest := rng.Perm(n - 1)
	current := make([]int, teamSize)
	current[0] = 0
	for i := 1; i < teamSize; i++ {
		current[i] = rest[i-1] + 1
	}
	sort.Ints(current)

	currentScore := score(pool, current)
	best := map[string]scoredPartition{partitionKey(current): currentScore}

	temperature := 0.05
	cooling := math.Pow(1e-3, 1.0/float64(opts.Budget))

	for iter := 0; iter < opts.Budget; iter++ {
		if iter%256 == 0 {
			select {
			case <-ctx.Done():
				return collect(best), nil
			default:
			}
		}

		// Swap one member of team1 (never the pinned index 0) with one of
		// team2.
		candidate := make([]int, teamSize)
		copy(candidate, current)
		swapOut := 1 + rng.Intn(teamSize-1)
		candidate[swapOut] = pickOutsider(current, n, rng)
		sort.Ints(candidate)

		candidateScore := score(pool, candidate)
		delta := candidateScore.quality - currentScore.quality
		if delta >= 0 || rng.Float64() < math.Exp(delta/temperature) {
			current = candidate
			currentScore = candidateScore
			best[partitionKey(current)] = currentScore
		}
		temperature *= cooling
	}

	return collect(best), nil
}

func pickOutsider(team1 []int, n int, rng *rand.Rand) int {
	inTeam := make(map[int]bool, len(team1))
	for _, i := range team1 {
		inTeam[i] = true
	}
	for {
		i := rng.Intn(n)
		if !inTeam[i] {
			return i
		}
	}
}

func partitionKey(team1 []int) string {
	key := make([]byte, 0, len(team1)*3)
	for _, i := range team1 {
		key = append(key, byte(i), ',')
	}
	return string(key)
}

func collect(best map[string]scoredPartition) []scoredPartition {
	result := make([]scoredPartition, 0, len(best))
	for _, sp := range best {
		result = append(result, sp)
	}
	return result
}
