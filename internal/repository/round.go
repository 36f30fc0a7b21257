package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrDuplicateRound means an equivalent round (same session and round
// index) is already committed. Callers treat it as an idempotent no-op.
var ErrDuplicateRound = errors.New("round already committed")

type RoundRepository struct {
	db     *database.SkillDB
	logger zerolog.Logger
}

func NewRoundRepository(db *database.SkillDB, logger zerolog.Logger) *RoundRepository {
	return &RoundRepository{db: db, logger: logger}
}

// RoundApplication is everything one finalized round changes in the
// derived store: the round row with its stats, the resulting rating
// updates with their history points, and the consumer's progress marker.
type RoundApplication struct {
	Round   *domain.Round
	Stats   []domain.RoundStat
	Ratings []domain.SkillRating
	History []domain.SkillHistoryPoint

	// Sequence is the event log high-water mark to record as processed.
	// Zero means the caller tracks progress separately.
	Sequence int64
}

// ApplyRound commits a round application in one transaction: either the
// round, its rating effects, and the progress marker all land, or none
// do. A crash can never strand a committed round without its ratings.
// Re-ingesting the same physical round returns ErrDuplicateRound and
// leaves storage unchanged.
func (r *RoundRepository) ApplyRound(ctx context.Context, app RoundApplication) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	round := app.Round
	var mvp any
	if round.MVPPlayerID != "" {
		mvp = round.MVPPlayerID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rounds (round_id, session_id, round_index, season_id,
		                     started_at, ended_at, win_team, mvp_player_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.RoundID, round.SessionID, round.RoundIndex, round.SeasonID,
		round.StartedAt.UTC(), round.EndedAt.UTC(), string(round.WinTeam), mvp,
		time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug().
				Str("session_id", round.SessionID).
				Int("round_index", round.RoundIndex).
				Msg("round already committed")
			return ErrDuplicateRound
		}
		return fmt.Errorf("failed to insert round %s: %w", round.RoundID, err)
	}

	for _, stat := range app.Stats {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO round_stats (round_id, player_id, team, kills, deaths,
			                          assists, mvps, damage_dealt, survived)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			round.RoundID, stat.PlayerID, string(stat.Team), stat.Kills, stat.Deaths,
			stat.Assists, stat.MVPs, stat.DamageDealt, stat.Survived)
		if err != nil {
			return fmt.Errorf("failed to insert round stat %s/%s: %w",
				round.RoundID, stat.PlayerID, err)
		}
	}

	if err := upsertRatings(ctx, tx, app.Ratings); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, app.History); err != nil {
		return err
	}
	if app.Sequence > 0 {
		if err := recordProgress(ctx, tx, app.Sequence); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// RoundWithStats is a round plus its full roster, as replay input.
type RoundWithStats struct {
	Round domain.Round
	Stats []domain.RoundStat
}

// ListAllOrdered returns every round in replay order: seasons by start
// date, rounds by start time within a season.
func (r *RoundRepository) ListAllOrdered(ctx context.Context) ([]RoundWithStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.round_id, r.session_id, r.round_index, r.season_id,
		        r.started_at, r.ended_at, r.win_team, r.mvp_player_id, r.created_at
		 FROM rounds r
		 JOIN seasons s ON s.season_id = r.season_id
		 ORDER BY s.start_at, r.started_at, r.round_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []RoundWithStats
	index := make(map[string]int)
	for rows.Next() {
		var rd domain.Round
		var mvp *string
		var winTeam string
		if err := rows.Scan(&rd.RoundID, &rd.SessionID, &rd.RoundIndex, &rd.SeasonID,
			&rd.StartedAt, &rd.EndedAt, &winTeam, &mvp, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rd.WinTeam = domain.Team(winTeam)
		if mvp != nil {
			rd.MVPPlayerID = *mvp
		}
		index[rd.RoundID] = len(rounds)
		rounds = append(rounds, RoundWithStats{Round: rd})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statRows, err := r.db.QueryContext(ctx,
		`SELECT round_id, player_id, team, kills, deaths, assists, mvps,
		        damage_dealt, survived
		 FROM round_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to list round stats: %w", err)
	}
	defer statRows.Close()

	for statRows.Next() {
		var stat domain.RoundStat
		var team string
		if err := statRows.Scan(&stat.RoundID, &stat.PlayerID, &team, &stat.Kills,
			&stat.Deaths, &stat.Assists, &stat.MVPs, &stat.DamageDealt,
			&stat.Survived); err != nil {
			return nil, fmt.Errorf("failed to scan round stat: %w", err)
		}
		stat.Team = domain.Team(team)
		if i, ok := index[stat.RoundID]; ok {
			rounds[i].Stats = append(rounds[i].Stats, stat)
		}
	}
	return rounds, statRows.Err()
}

// StatAverages aggregates per-round averages per player for a season
// (OverallSeasonID aggregates every season). Feed for the impact score.
func (r *RoundRepository) StatAverages(ctx context.Context, seasonID int64) (map[string]RoundAverageRow, error) {
	query := `
		SELECT rs.player_id
		     , AVG(rs.kills * 1.0)
		     , AVG(CASE WHEN rs.survived THEN 0.0 ELSE 1.0 END)
		     , AVG(rs.damage_dealt * 1.0)
		     , AVG(CASE WHEN rs.kills > 0 OR rs.assists > 0 OR rs.survived THEN 1.0 ELSE 0.0 END)
		     , AVG(rs.mvps * 1.0)
		     , COUNT(*)
		FROM round_stats rs
		JOIN rounds r ON r.round_id = rs.round_id`
	args := []any{}
	if seasonID != domain.OverallSeasonID {
		query += ` WHERE r.season_id = ?`
		args = append(args, seasonID)
	}
	query += ` GROUP BY rs.player_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate round stats: %w", err)
	}
	defer rows.Close()

	averages := make(map[string]RoundAverageRow)
	for rows.Next() {
		var row RoundAverageRow
		if err := rows.Scan(&row.PlayerID, &row.Kills, &row.DeathRate, &row.Damage,
			&row.KASRate, &row.MVPRate, &row.Rounds); err != nil {
			return nil, fmt.Errorf("failed to scan stat averages: %w", err)
		}
		averages[row.PlayerID] = row
	}
	return averages, rows.Err()
}

type RoundAverageRow struct {
	PlayerID  string
	Kills     float64
	DeathRate float64
	Damage    float64
	KASRate   float64
	MVPRate   float64
	Rounds    int
}
