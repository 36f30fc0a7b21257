package matchmaking

import (
	"context"
	"fmt"
	"testing"

	"csgo-tracker/internal/skill"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(means ...float64) []Candidate {
	candidates := make([]Candidate, len(means))
	for i, mean := range means {
		candidates[i] = Candidate{
			PlayerID:    fmt.Sprintf("player-%02d", i),
			DisplayName: fmt.Sprintf("Player %d", i),
			Rating:      skill.Rating{Mean: mean, Stdev: skill.DefaultStdev},
		}
	}
	return candidates
}

func TestSuggestRejectsTooFewPlayers(t *testing.T) {
	_, err := Suggest(context.Background(), pool(1000), Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Suggest(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSuggestRejectsOddPool(t *testing.T) {
	_, err := Suggest(context.Background(), pool(1000, 1000, 1000), Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSuggestTwoPlayersSinglePartition(t *testing.T) {
	matches, err := Suggest(context.Background(), pool(1200, 800), Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.True(t, m.Exact)
	require.Len(t, m.Team1, 1)
	require.Len(t, m.Team2, 1)
	assert.Equal(t, "player-00", m.Team1[0].PlayerID, "the stronger player is the favorite")
	assert.GreaterOrEqual(t, m.Team1WinProbability, m.Team2WinProbability)
}

func TestSuggestSixPlayersEnumeratesAllPartitions(t *testing.T) {
	// With 6 players, 1 is pinned to team1, so there are C(5,2) = 10
	// distinct partitions.
	matches, err := Suggest(context.Background(), pool(1300, 1200, 1100, 900, 800, 700), Options{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, matches, 10)

	for _, m := range matches {
		assert.True(t, m.Exact)
		assert.Len(t, m.Team1, 3)
		assert.Len(t, m.Team2, 3)
	}
}

func TestSuggestRanksByQuality(t *testing.T) {
	matches, err := Suggest(context.Background(), pool(1300, 1200, 1100, 900, 800, 700), Options{Limit: 100})
	require.NoError(t, err)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Quality, matches[i].Quality)
	}

	// The best split balances the sums: {1300, 900, 800} vs the rest.
	best := matches[0]
	var sum1, sum2 float64
	for _, c := range best.Team1 {
		sum1 += c.Rating.Mean
	}
	for _, c := range best.Team2 {
		sum2 += c.Rating.Mean
	}
	assert.InDelta(t, sum1, sum2, 1.0)
}

func TestSuggestProbabilitiesAccountForDraw(t *testing.T) {
	matches, err := Suggest(context.Background(), pool(1300, 1150, 1000, 950, 850, 750), Options{})
	require.NoError(t, err)

	for _, m := range matches {
		total := m.Team1WinProbability + m.Team2WinProbability + m.Quality
		assert.InDelta(t, 1.0, total, 1e-9)
		assert.GreaterOrEqual(t, m.Team1WinProbability, m.Team2WinProbability)
	}
}

func TestSuggestLimitCapsResults(t *testing.T) {
	matches, err := Suggest(context.Background(), pool(1300, 1200, 1100, 900, 800, 700), Options{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestSuggestLargePoolUsesHeuristicSearch(t *testing.T) {
	means := make([]float64, 14)
	for i := range means {
		means[i] = 700 + float64(i)*50
	}

	matches, err := Suggest(context.Background(), pool(means...), Options{Budget: 5000, Seed: 42})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		assert.False(t, m.Exact, "above the exhaustive threshold results are best-effort")
		assert.Len(t, m.Team1, 7)
		assert.Len(t, m.Team2, 7)
	}
}

func TestSuggestHeuristicIsDeterministicForSeed(t *testing.T) {
	means := make([]float64, 14)
	for i := range means {
		means[i] = 700 + float64(i)*50
	}

	a, err := Suggest(context.Background(), pool(means...), Options{Budget: 2000, Seed: 7})
	require.NoError(t, err)
	b, err := Suggest(context.Background(), pool(means...), Options{Budget: 2000, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSuggestInputOrderDoesNotMatter(t *testing.T) {
	forward := pool(1300, 1200, 1100, 900, 800, 700)
	reversed := make([]Candidate, len(forward))
	for i, c := range forward {
		reversed[len(forward)-1-i] = c
	}

	a, err := Suggest(context.Background(), forward, Options{})
	require.NoError(t, err)
	b, err := Suggest(context.Background(), reversed, Options{})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
