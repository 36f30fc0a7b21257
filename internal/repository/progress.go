package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"csgo-tracker/internal/database"

	"github.com/rs/zerolog"
)

// ProgressRepository records how far into the event log the consumer has
// durably processed, so a restarted process resumes from the right
// sequence number.
type ProgressRepository struct {
	db     *database.SkillDB
	logger zerolog.Logger
}

func NewProgressRepository(db *database.SkillDB, logger zerolog.Logger) *ProgressRepository {
	return &ProgressRepository{db: db, logger: logger}
}

// LastProcessed returns the last durably processed sequence number, or 0
// when nothing has been processed yet.
func (r *ProgressRepository) LastProcessed(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_processed_sequence FROM game_state_progress WHERE progress_id = 1`).
		Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read progress: %w", err)
	}
	return seq, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// recordProgress marks a sequence as processed, either standalone or as
// part of a round application's transaction.
func recordProgress(ctx context.Context, ex execer, seq int64) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO game_state_progress (progress_id, last_processed_sequence, updated_at)
		 VALUES (1, ?, ?)
		 ON CONFLICT (progress_id) DO UPDATE SET
		     last_processed_sequence = excluded.last_processed_sequence,
		     updated_at = excluded.updated_at`,
		seq, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

// SetLastProcessed records a sequence number as processed. Called only
// after the snapshot's effects are fully committed, so replay after a
// crash re-delivers at-least-once.
func (r *ProgressRepository) SetLastProcessed(ctx context.Context, seq int64) error {
	if err := recordProgress(ctx, r.db, seq); err != nil {
		r.logger.Error().Err(err).Int64("sequence_id", seq).Msg("failed to record progress")
		return err
	}
	return nil
}
