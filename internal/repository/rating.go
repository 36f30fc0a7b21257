package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type RatingRepository struct {
	db     *database.SkillDB
	logger zerolog.Logger
}

func NewRatingRepository(db *database.SkillDB, logger zerolog.Logger) *RatingRepository {
	return &RatingRepository{db: db, logger: logger}
}

// RatingFor returns a player's rating in a season scope, or sql.ErrNoRows
// when the player has none yet.
func (r *RatingRepository) RatingFor(ctx context.Context, playerID string, seasonID int64) (*domain.SkillRating, error) {
	var sr domain.SkillRating
	err := r.db.QueryRowContext(ctx,
		`SELECT player_id, season_id, mean, stdev, mmr, impact, updated_at
		 FROM skills
		 WHERE player_id = ? AND season_id = ?`, playerID, seasonID).
		Scan(&sr.PlayerID, &sr.SeasonID, &sr.Mean, &sr.Stdev, &sr.MMR, &sr.Impact, &sr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating for %s: %w", playerID, err)
	}
	return &sr, nil
}

// RatingsFor fetches the ratings of several players in one scope. Players
// without a stored rating are absent from the result.
func (r *RatingRepository) RatingsFor(ctx context.Context, playerIDs []string, seasonID int64) (map[string]domain.SkillRating, error) {
	ratings := make(map[string]domain.SkillRating, len(playerIDs))
	for _, id := range playerIDs {
		sr, err := r.RatingFor(ctx, id, seasonID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		ratings[id] = *sr
	}
	return ratings, nil
}

const upsertSkillSQL = `
INSERT INTO skills (player_id, season_id, mean, stdev, mmr, impact, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (player_id, season_id) DO UPDATE SET
    mean = excluded.mean,
    stdev = excluded.stdev,
    mmr = excluded.mmr,
    impact = excluded.impact,
    updated_at = excluded.updated_at`

// upsertRatings writes rating rows inside an open transaction. UpdatedAt
// is taken from the rating itself when set, so replaying the same rounds
// reproduces identical rows regardless of the wall clock.
func upsertRatings(ctx context.Context, tx *sql.Tx, ratings []domain.SkillRating) error {
	for _, sr := range ratings {
		updatedAt := sr.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, upsertSkillSQL,
			sr.PlayerID, sr.SeasonID, sr.Mean, sr.Stdev, sr.MMR, sr.Impact,
			updatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to upsert skill %s/%d: %w", sr.PlayerID, sr.SeasonID, err)
		}
	}
	return nil
}

// ReplaceAll atomically swaps the entire rating set and writes the fresh
// full history produced by recalculation. Readers see the old set until
// commit; a failure leaves it untouched.
func (r *RatingRepository) ReplaceAll(ctx context.Context, ratings []domain.SkillRating, history []domain.SkillHistoryPoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skills`); err != nil {
		return fmt.Errorf("failed to clear skills: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skill_history`); err != nil {
		return fmt.Errorf("failed to clear skill history: %w", err)
	}

	for i := 0; i < len(ratings); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(ratings) {
			end = len(ratings)
		}
		if err := upsertRatings(ctx, tx, ratings[i:end]); err != nil {
			return err
		}
	}

	if err := insertHistory(ctx, tx, history); err != nil {
		return err
	}

	r.logger.Info().
		Int("ratings", len(ratings)).
		Int("history_points", len(history)).
		Msg("rating set replaced")
	return tx.Commit()
}

func insertHistory(ctx context.Context, tx *sql.Tx, history []domain.SkillHistoryPoint) error {
	for _, hp := range history {
		id := hp.HistoryID
		if id == "" {
			var err error
			id, err = gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}
		createdAt := hp.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO skill_history (history_id, player_id, season_id, round_id,
			                            mean, stdev, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, hp.PlayerID, hp.SeasonID, hp.RoundID, hp.Mean, hp.Stdev, createdAt); err != nil {
			return fmt.Errorf("failed to insert history point: %w", err)
		}
	}
	return nil
}

// HistoryFor returns a player's rating trajectory in a season scope,
// oldest first.
func (r *RatingRepository) HistoryFor(ctx context.Context, playerID string, seasonID int64) ([]domain.SkillHistoryPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT history_id, player_id, season_id, round_id, mean, stdev, created_at
		 FROM skill_history
		 WHERE player_id = ? AND season_id = ?
		 ORDER BY created_at, history_id`, playerID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", playerID, err)
	}
	defer rows.Close()

	var points []domain.SkillHistoryPoint
	for rows.Next() {
		var hp domain.SkillHistoryPoint
		if err := rows.Scan(&hp.HistoryID, &hp.PlayerID, &hp.SeasonID, &hp.RoundID,
			&hp.Mean, &hp.Stdev, &hp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		points = append(points, hp)
	}
	return points, rows.Err()
}

// PopulationStats returns the mean and standard deviation of MMR across a
// season's rated population.
func (r *RatingRepository) PopulationStats(ctx context.Context, seasonID int64) (mean, stdev float64, err error) {
	var avg, avgSq sql.NullFloat64
	err = r.db.QueryRowContext(ctx,
		`SELECT AVG(mmr * 1.0), AVG(mmr * mmr * 1.0)
		 FROM skills WHERE season_id = ?`, seasonID).
		Scan(&avg, &avgSq)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get population stats: %w", err)
	}
	if !avg.Valid {
		return 0, 0, nil
	}
	variance := avgSq.Float64 - avg.Float64*avg.Float64
	if variance < 0 {
		variance = 0
	}
	return avg.Float64, math.Sqrt(variance), nil
}

// Leaderboard returns every rated player in a season scope ordered by MMR
// descending, with win/loss round counts joined in.
func (r *RatingRepository) Leaderboard(ctx context.Context, seasonID int64) ([]domain.LeaderboardRow, error) {
	query := `
		SELECT s.player_id
		     , p.display_name
		     , s.mean
		     , s.stdev
		     , s.mmr
		     , s.impact
		     , COALESCE(SUM(CASE WHEN r.win_team = rs.team THEN 1 ELSE 0 END), 0)
		     , COALESCE(SUM(CASE WHEN r.win_team != rs.team AND r.win_team != 'draw' THEN 1 ELSE 0 END), 0)
		FROM skills s
		JOIN players p ON p.player_id = s.player_id
		LEFT JOIN round_stats rs ON rs.player_id = s.player_id
		LEFT JOIN rounds r ON r.round_id = rs.round_id
		     AND (? = 0 OR r.season_id = ?)
		WHERE s.season_id = ?
		GROUP BY s.player_id
		ORDER BY s.mmr DESC, p.display_name`

	rows, err := r.db.QueryContext(ctx, query, seasonID, seasonID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var result []domain.LeaderboardRow
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.PlayerID, &row.DisplayName, &row.Mean, &row.Stdev,
			&row.MMR, &row.Impact, &row.RoundsWon, &row.RoundsLost); err != nil {
			// A bad row must not abort the whole leaderboard read.
			r.logger.Warn().Err(err).Msg("skipping unreadable leaderboard row")
			continue
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
