package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/eventlog"
	"csgo-tracker/internal/gamestate"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/skill"

	"github.com/rs/zerolog"
)

// ProcessingLock serializes derived-state writers: the snapshot consumer
// and the recalculation orchestrator. Ingestion keeps appending to the
// event log while it is held; only round derivation is deferred.
type ProcessingLock struct {
	sync.Mutex
}

func NewProcessingLock() *ProcessingLock {
	return &ProcessingLock{}
}

// ProcessorService drains the event log through the snapshot differ and is
// the sole writer of rounds, players, and incremental rating updates.
type ProcessorService struct {
	log      *eventlog.Log
	players  *repository.PlayerRepository
	seasons  *repository.SeasonRepository
	rounds   *repository.RoundRepository
	ratings  *repository.RatingRepository
	progress *repository.ProgressRepository
	differ   *gamestate.Differ
	lock     *ProcessingLock
	logger   zerolog.Logger
}

func NewProcessorService(
	log *eventlog.Log,
	players *repository.PlayerRepository,
	seasons *repository.SeasonRepository,
	rounds *repository.RoundRepository,
	ratings *repository.RatingRepository,
	progress *repository.ProgressRepository,
	lock *ProcessingLock,
	logger zerolog.Logger,
) *ProcessorService {
	return &ProcessorService{
		log:      log,
		players:  players,
		seasons:  seasons,
		rounds:   rounds,
		ratings:  ratings,
		progress: progress,
		differ:   gamestate.NewDiffer(logger),
		lock:     lock,
		logger:   logger,
	}
}

// HandleSequence is the queue handler: it processes every unprocessed log
// record up to (at least) the notified sequence. Queue items carry only a
// sequence high-water mark, so a dropped or coalesced item is harmless —
// the next one re-covers its range, and restart replays from the durable
// progress marker.
func (s *ProcessorService) HandleSequence(ctx context.Context, seq int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	last, err := s.progress.LastProcessed(ctx)
	if err != nil {
		return err
	}
	if seq <= last {
		return nil
	}

	return s.log.ReadFrom(ctx, last+1, func(rec eventlog.Record) error {
		if err := s.processRecord(ctx, rec); err != nil {
			return fmt.Errorf("sequence %d: %w", rec.SequenceID, err)
		}
		return nil
	})
}

// Resume re-drains the log from the last durably processed sequence.
// Called once on startup before new snapshots are accepted.
func (s *ProcessorService) Resume(ctx context.Context) (int64, error) {
	head, err := s.log.LastSequence(ctx)
	if err != nil {
		return 0, err
	}
	if head == 0 {
		return 0, nil
	}
	s.logger.Info().Int64("head", head).Msg("resuming snapshot processing")
	return head, s.HandleSequence(ctx, head)
}

func (s *ProcessorService) processRecord(ctx context.Context, rec eventlog.Record) error {
	snap, err := gamestate.Parse(rec.Payload)
	if err != nil {
		if errors.Is(err, gamestate.ErrMalformedSnapshot) {
			// Recovered locally: skip the snapshot, keep consuming.
			s.logger.Warn().
				Err(err).
				Int64("sequence_id", rec.SequenceID).
				Msg("skipping malformed snapshot")
			return s.progress.SetLastProcessed(ctx, rec.SequenceID)
		}
		return err
	}

	players, event := s.differ.Observe(snap)
	if len(players) > 0 {
		if err := s.players.UpsertBatch(ctx, players); err != nil {
			return err
		}
	}
	if event == nil {
		return s.progress.SetLastProcessed(ctx, rec.SequenceID)
	}

	season, err := s.seasons.SeasonFor(ctx, event.StartedAt)
	if err != nil {
		return err
	}
	if !season.Contains(event.StartedAt) {
		s.logger.Debug().
			Str("round_id", event.RoundID).
			Int64("season_id", season.SeasonID).
			Time("started_at", event.StartedAt).
			Msg("round start outside the assigned season window")
	}

	round := &domain.Round{
		RoundID:     event.RoundID,
		SessionID:   event.SessionID,
		RoundIndex:  event.RoundIndex,
		SeasonID:    season.SeasonID,
		StartedAt:   event.StartedAt,
		EndedAt:     event.EndedAt,
		WinTeam:     event.WinTeam,
		MVPPlayerID: event.MVPPlayerID,
	}

	ratings, history, err := s.rateRound(ctx, round, event.Stats)
	if err != nil {
		return err
	}

	// One transaction for the round, its rating effects, and the
	// progress marker. The duplicate-skip path can then only ever fire
	// for rounds whose effects are fully applied.
	err = s.rounds.ApplyRound(ctx, repository.RoundApplication{
		Round:    round,
		Stats:    event.Stats,
		Ratings:  ratings,
		History:  history,
		Sequence: rec.SequenceID,
	})
	if errors.Is(err, repository.ErrDuplicateRound) {
		// Idempotent no-op on crash-recovery replay.
		return s.progress.SetLastProcessed(ctx, rec.SequenceID)
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("round_id", round.RoundID).
		Int64("season_id", round.SeasonID).
		Str("win_team", string(round.WinTeam)).
		Int("players", len(event.Stats)).
		Msg("round committed")
	return nil
}

// rateRound computes the incremental rating update for one round, in both
// the round's season scope and the overall scope.
func (s *ProcessorService) rateRound(ctx context.Context, round *domain.Round, stats []domain.RoundStat) ([]domain.SkillRating, []domain.SkillHistoryPoint, error) {
	var updated []domain.SkillRating
	var history []domain.SkillHistoryPoint

	for _, scope := range []int64{round.SeasonID, domain.OverallSeasonID} {
		ratings, points, err := s.rateScope(ctx, round, stats, scope)
		if err != nil {
			return nil, nil, err
		}
		updated = append(updated, ratings...)
		history = append(history, points...)
	}
	return updated, history, nil
}

func (s *ProcessorService) rateScope(ctx context.Context, round *domain.Round, stats []domain.RoundStat, seasonID int64) ([]domain.SkillRating, []domain.SkillHistoryPoint, error) {
	roster, err := s.rosterRatings(ctx, stats, seasonID)
	if err != nil {
		return nil, nil, err
	}

	updated := applyRoundRatings(round, stats, roster)

	ratings := make([]domain.SkillRating, 0, len(updated))
	history := make([]domain.SkillHistoryPoint, 0, len(updated))
	for _, stat := range stats {
		r := updated[stat.PlayerID]
		prior := roster[stat.PlayerID]
		ratings = append(ratings, domain.SkillRating{
			PlayerID:  stat.PlayerID,
			SeasonID:  seasonID,
			Mean:      r.Mean,
			Stdev:     r.Stdev,
			MMR:       r.MMR(),
			Impact:    prior.impact,
			UpdatedAt: round.EndedAt,
		})
		history = append(history, domain.SkillHistoryPoint{
			PlayerID:  stat.PlayerID,
			SeasonID:  seasonID,
			RoundID:   round.RoundID,
			Mean:      r.Mean,
			Stdev:     r.Stdev,
			CreatedAt: round.EndedAt,
		})
	}
	return ratings, history, nil
}

type priorRating struct {
	rating skill.Rating
	impact float64
}

func (s *ProcessorService) rosterRatings(ctx context.Context, stats []domain.RoundStat, seasonID int64) (map[string]priorRating, error) {
	roster := make(map[string]priorRating, len(stats))
	for _, stat := range stats {
		sr, err := s.ratings.RatingFor(ctx, stat.PlayerID, seasonID)
		if err == sql.ErrNoRows {
			roster[stat.PlayerID] = priorRating{rating: skill.NewRating()}
			continue
		}
		if err != nil {
			return nil, err
		}
		roster[stat.PlayerID] = priorRating{
			rating: skill.Rating{Mean: sr.Mean, Stdev: sr.Stdev},
			impact: sr.Impact,
		}
	}
	return roster, nil
}

// applyRoundRatings is the pure rating update for one round: from the
// roster's current ratings and the round outcome it returns each player's
// posterior rating. No hidden state beyond what is passed in.
func applyRoundRatings(round *domain.Round, stats []domain.RoundStat, roster map[string]priorRating) map[string]skill.Rating {
	var team1IDs, team2IDs []string
	var team1, team2 []skill.Rating

	// For a decided round team1 is the winner. Draws keep the T side as
	// team1; the draw update is symmetric.
	firstTeam := round.WinTeam
	if firstTeam == domain.TeamDraw {
		firstTeam = domain.TeamT
	}

	for _, stat := range stats {
		r := roster[stat.PlayerID].rating
		if stat.Team == firstTeam {
			team1IDs = append(team1IDs, stat.PlayerID)
			team1 = append(team1, r)
		} else {
			team2IDs = append(team2IDs, stat.PlayerID)
			team2 = append(team2, r)
		}
	}

	outcome := skill.Win
	if round.WinTeam == domain.TeamDraw {
		outcome = skill.Draw
	}

	new1, new2 := skill.Rate(team1, team2, outcome)

	updated := make(map[string]skill.Rating, len(stats))
	for i, id := range team1IDs {
		updated[id] = new1[i]
	}
	for i, id := range team2IDs {
		updated[id] = new2[i]
	}
	return updated
}
