package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *database.SkillDB
	logger zerolog.Logger
}

func NewPlayerRepository(db *database.SkillDB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: db, logger: logger}
}

const upsertPlayerSQL = `
INSERT INTO players (player_id, display_name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    display_name = excluded.display_name,
    updated_at = excluded.updated_at`

// Upsert creates a player on first observation and refreshes the display
// name on later ones. Players are never deleted.
func (r *PlayerRepository) Upsert(ctx context.Context, player *domain.Player) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, upsertPlayerSQL,
		player.PlayerID, player.DisplayName, now, now)
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", player.PlayerID).Msg("failed to upsert player")
		return fmt.Errorf("failed to upsert player %s: %w", player.PlayerID, err)
	}
	return nil
}

func (r *PlayerRepository) UpsertBatch(ctx context.Context, players []domain.Player) error {
	if len(players) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := 0; i < len(players); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(players) {
			end = len(players)
		}

		for _, player := range players[i:end] {
			if _, err := tx.ExecContext(ctx, upsertPlayerSQL,
				player.PlayerID, player.DisplayName, now, now); err != nil {
				return fmt.Errorf("failed to upsert player %s: %w", player.PlayerID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *PlayerRepository) Get(ctx context.Context, playerID string) (*domain.Player, error) {
	var p domain.Player
	err := r.db.QueryRowContext(ctx,
		`SELECT player_id, display_name, created_at, updated_at
		 FROM players WHERE player_id = ?`, playerID).
		Scan(&p.PlayerID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", playerID, err)
	}
	return &p, nil
}
