package repository

import (
	"context"
	"fmt"
	"time"

	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type SeasonRepository struct {
	db     *database.SkillDB
	logger zerolog.Logger
}

func NewSeasonRepository(db *database.SkillDB, logger zerolog.Logger) *SeasonRepository {
	return &SeasonRepository{db: db, logger: logger}
}

// List returns every season ordered by start date.
func (r *SeasonRepository) List(ctx context.Context) ([]domain.Season, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT season_id, start_at, end_at FROM seasons ORDER BY start_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	defer rows.Close()

	var seasons []domain.Season
	for rows.Next() {
		var s domain.Season
		if err := rows.Scan(&s.SeasonID, &s.StartAt, &s.EndAt); err != nil {
			return nil, fmt.Errorf("failed to scan season: %w", err)
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

// SeasonFor resolves the season whose window contains ts: the latest season
// starting at or before ts. Timestamps predating every season fall into the
// earliest one, so stray clocks never lose a round.
func (r *SeasonRepository) SeasonFor(ctx context.Context, ts time.Time) (*domain.Season, error) {
	var s domain.Season
	err := r.db.QueryRowContext(ctx,
		`SELECT season_id, start_at, end_at
		 FROM seasons
		 WHERE start_at <= ?
		 ORDER BY start_at DESC
		 LIMIT 1`, ts.UTC()).
		Scan(&s.SeasonID, &s.StartAt, &s.EndAt)
	if err == nil {
		return &s, nil
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT season_id, start_at, end_at
		 FROM seasons
		 ORDER BY start_at
		 LIMIT 1`).
		Scan(&s.SeasonID, &s.StartAt, &s.EndAt)
	if err != nil {
		return nil, fmt.Errorf("no season configured for %s: %w", ts, err)
	}
	r.logger.Warn().
		Time("timestamp", ts).
		Int64("season_id", s.SeasonID).
		Msg("timestamp predates all seasons, using earliest")
	return &s, nil
}

// Create opens a new season. The previous open season is closed at the new
// start so seasons stay contiguous and non-overlapping.
func (r *SeasonRepository) Create(ctx context.Context, startAt time.Time) (*domain.Season, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE seasons SET end_at = ? WHERE end_at IS NULL AND start_at < ?`,
		startAt.UTC(), startAt.UTC()); err != nil {
		return nil, fmt.Errorf("failed to close open season: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO seasons (start_at, end_at) VALUES (?, NULL)`, startAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create season: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read season id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	start := startAt.UTC()
	r.logger.Info().Int64("season_id", id).Time("start_at", start).Msg("season created")
	return &domain.Season{SeasonID: id, StartAt: start}, nil
}
