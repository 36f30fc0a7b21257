package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/skill"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrRecalculation wraps any failure during a full replay; the previous
// rating set is left untouched when it is returned.
var ErrRecalculation = errors.New("recalculation failed")

// RecalcService rebuilds every rating from the committed rounds. Used
// after changing rating parameters, season boundaries, or to repair
// derived state; the event log and rounds are never touched.
type RecalcService struct {
	rounds  *repository.RoundRepository
	ratings *repository.RatingRepository
	lock    *ProcessingLock
	logger  zerolog.Logger
}

func NewRecalcService(
	rounds *repository.RoundRepository,
	ratings *repository.RatingRepository,
	lock *ProcessingLock,
	logger zerolog.Logger,
) *RecalcService {
	return &RecalcService{
		rounds:  rounds,
		ratings: ratings,
		lock:    lock,
		logger:  logger,
	}
}

// RecalculateAll replays every committed round in canonical order and
// atomically replaces the full rating set and history. Deterministic:
// the same rounds always produce the same ratings.
func (s *RecalcService) RecalculateAll(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rounds, err := s.rounds.ListAllOrdered(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecalculation, err)
	}

	ratings, history := replayRounds(rounds)

	if err := s.applyImpact(ctx, ratings); err != nil {
		return fmt.Errorf("%w: %v", ErrRecalculation, err)
	}

	if err := s.ratings.ReplaceAll(ctx, ratings, history); err != nil {
		return fmt.Errorf("%w: %v", ErrRecalculation, err)
	}

	s.logger.Info().
		Int("rounds", len(rounds)).
		Int("ratings", len(ratings)).
		Msg("full recalculation complete")
	return nil
}

// replayRounds folds the ordered rounds through the rating update in both
// per-season and overall scope, starting every player from the fixed
// prior. History ids are derived from (player, scope, round) so repeated
// replays of the same rounds yield identical sets.
func replayRounds(rounds []repository.RoundWithStats) ([]domain.SkillRating, []domain.SkillHistoryPoint) {
	scopes := make(map[int64]map[string]skill.Rating)
	lastPlayed := make(map[int64]map[string]time.Time)
	var history []domain.SkillHistoryPoint

	for i := range rounds {
		round := &rounds[i].Round
		stats := rounds[i].Stats
		if len(stats) == 0 {
			continue
		}

		for _, seasonID := range []int64{round.SeasonID, domain.OverallSeasonID} {
			current, ok := scopes[seasonID]
			if !ok {
				current = make(map[string]skill.Rating)
				scopes[seasonID] = current
				lastPlayed[seasonID] = make(map[string]time.Time)
			}

			roster := make(map[string]priorRating, len(stats))
			for _, stat := range stats {
				r, ok := current[stat.PlayerID]
				if !ok {
					r = skill.NewRating()
				}
				roster[stat.PlayerID] = priorRating{rating: r}
			}

			updated := applyRoundRatings(round, stats, roster)
			for _, stat := range stats {
				r := updated[stat.PlayerID]
				current[stat.PlayerID] = r
				lastPlayed[seasonID][stat.PlayerID] = round.EndedAt
				history = append(history, domain.SkillHistoryPoint{
					HistoryID: fmt.Sprintf("%s:%d:%s", stat.PlayerID, seasonID, round.RoundID),
					PlayerID:  stat.PlayerID,
					SeasonID:  seasonID,
					RoundID:   round.RoundID,
					Mean:      r.Mean,
					Stdev:     r.Stdev,
					CreatedAt: round.EndedAt,
				})
			}
		}
	}

	var ratings []domain.SkillRating
	for seasonID, players := range scopes {
		for playerID, r := range players {
			ratings = append(ratings, domain.SkillRating{
				PlayerID: playerID,
				SeasonID: seasonID,
				Mean:     r.Mean,
				Stdev:    r.Stdev,
				MMR:      r.MMR(),
				// Stamped from play time, not the wall clock, so
				// repeated replays reproduce identical rows.
				UpdatedAt: lastPlayed[seasonID][playerID],
			})
		}
	}
	sort.Slice(ratings, func(i, j int) bool {
		if ratings[i].SeasonID != ratings[j].SeasonID {
			return ratings[i].SeasonID < ratings[j].SeasonID
		}
		return ratings[i].PlayerID < ratings[j].PlayerID
	})
	return ratings, history
}

// applyImpact fills in the impact score for every rating row. The stat
// averages of the different scopes are independent aggregations, so they
// are fetched concurrently.
func (s *RecalcService) applyImpact(ctx context.Context, ratings []domain.SkillRating) error {
	seasonIDs := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, sr := range ratings {
		if !seen[sr.SeasonID] {
			seen[sr.SeasonID] = true
			seasonIDs = append(seasonIDs, sr.SeasonID)
		}
	}

	var mu sync.Mutex
	averages := make(map[int64]map[string]repository.RoundAverageRow, len(seasonIDs))
	g, gctx := errgroup.WithContext(ctx)
	for _, seasonID := range seasonIDs {
		g.Go(func() error {
			rows, err := s.rounds.StatAverages(gctx, seasonID)
			if err != nil {
				return err
			}
			mu.Lock()
			averages[seasonID] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range ratings {
		row, ok := averages[ratings[i].SeasonID][ratings[i].PlayerID]
		if !ok {
			continue
		}
		ratings[i].Impact = skill.Impact(skill.RoundAverages{
			Kills:     row.Kills,
			DeathRate: row.DeathRate,
			Damage:    row.Damage,
			KASRate:   row.KASRate,
			MVPRate:   row.MVPRate,
			Rounds:    row.Rounds,
		})
	}
	return nil
}
