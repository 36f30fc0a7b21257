package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/matchmaking"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/skill"

	"github.com/rs/zerolog"
)

// ErrPlayerNotFound is returned for reads against an unknown player id.
var ErrPlayerNotFound = errors.New("player not found")

// RatingService is the read surface over derived skill state:
// leaderboards, profiles, history, and team suggestions.
type RatingService struct {
	players *repository.PlayerRepository
	seasons *repository.SeasonRepository
	ratings *repository.RatingRepository
	logger  zerolog.Logger
}

func NewRatingService(
	players *repository.PlayerRepository,
	seasons *repository.SeasonRepository,
	ratings *repository.RatingRepository,
	logger zerolog.Logger,
) *RatingService {
	return &RatingService{
		players: players,
		seasons: seasons,
		ratings: ratings,
		logger:  logger,
	}
}

// Seasons lists every season, oldest first.
func (s *RatingService) Seasons(ctx context.Context) ([]domain.Season, error) {
	return s.seasons.List(ctx)
}

// Leaderboard returns the ranked players of a season (0 = overall),
// enriched with skill group and population percentile.
func (s *RatingService) Leaderboard(ctx context.Context, seasonID int64) ([]domain.LeaderboardRow, error) {
	rows, err := s.ratings.Leaderboard(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	popMean, popStdev, err := s.ratings.PopulationStats(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		rows[i].SkillGroup = skill.GroupFor(float64(rows[i].MMR))
		rows[i].Percentile = skill.Percentile(float64(rows[i].MMR), popMean, popStdev)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MMR > rows[j].MMR
	})
	return rows, nil
}

// Profile is a player's rating card across every scope they are rated in.
type Profile struct {
	Player  domain.Player
	Ratings []ProfileRating
}

type ProfileRating struct {
	SeasonID   int64
	Mean       float64
	Stdev      float64
	MMR        int
	SkillGroup string
	Percentile float64
	Impact     float64
}

// Profile assembles a player's ratings, overall scope first.
func (s *RatingService) Profile(ctx context.Context, playerID string) (*Profile, error) {
	player, err := s.players.Get(ctx, playerID)
	if err == sql.ErrNoRows {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	seasons, err := s.seasons.List(ctx)
	if err != nil {
		return nil, err
	}

	profile := &Profile{Player: *player}
	scopes := make([]int64, 0, len(seasons)+1)
	scopes = append(scopes, domain.OverallSeasonID)
	for _, season := range seasons {
		scopes = append(scopes, season.SeasonID)
	}

	for _, seasonID := range scopes {
		sr, err := s.ratings.RatingFor(ctx, playerID, seasonID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		popMean, popStdev, err := s.ratings.PopulationStats(ctx, seasonID)
		if err != nil {
			return nil, err
		}
		profile.Ratings = append(profile.Ratings, ProfileRating{
			SeasonID:   seasonID,
			Mean:       sr.Mean,
			Stdev:      sr.Stdev,
			MMR:        sr.MMR,
			SkillGroup: skill.GroupFor(float64(sr.MMR)),
			Percentile: skill.Percentile(float64(sr.MMR), popMean, popStdev),
			Impact:     sr.Impact,
		})
	}
	return profile, nil
}

// History returns a player's rating trajectory in a scope, oldest first.
func (s *RatingService) History(ctx context.Context, playerID string, seasonID int64) ([]domain.SkillHistoryPoint, error) {
	if _, err := s.players.Get(ctx, playerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	return s.ratings.HistoryFor(ctx, playerID, seasonID)
}

// SuggestTeams runs matchmaking over the named players using their
// ratings in the given scope. Unrated players enter at the default prior.
func (s *RatingService) SuggestTeams(ctx context.Context, playerIDs []string, seasonID int64, opts matchmaking.Options) ([]matchmaking.Match, error) {
	ratings, err := s.ratings.RatingsFor(ctx, playerIDs, seasonID)
	if err != nil {
		return nil, err
	}

	candidates := make([]matchmaking.Candidate, 0, len(playerIDs))
	for _, id := range playerIDs {
		player, err := s.players.Get(ctx, id)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		rating := skill.NewRating()
		if sr, ok := ratings[id]; ok {
			rating = skill.Rating{Mean: sr.Mean, Stdev: sr.Stdev}
		}
		candidates = append(candidates, matchmaking.Candidate{
			PlayerID:    id,
			DisplayName: player.DisplayName,
			Rating:      rating,
		})
	}

	return matchmaking.Suggest(ctx, candidates, opts)
}
