// Package eventlog is the durable append-only log of raw game-state
// snapshots. Records are never edited or removed; the log is the source of
// truth the derived skill store can always be rebuilt from.
package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"csgo-tracker/internal/database"

	"github.com/rs/zerolog"
)

// ErrLogWrite marks an unrecoverable storage failure while appending.
// Durability of the snapshot could not be guaranteed, so the ingestion
// request must fail; the whole request is safe to retry.
var ErrLogWrite = errors.New("event log write failed")

// Record is one raw snapshot as it was received, keyed by its
// monotonically increasing sequence number.
type Record struct {
	SequenceID int64
	ReceivedAt time.Time
	Payload    []byte
}

type Log struct {
	db     *database.GameDB
	logger zerolog.Logger
}

func New(db *database.GameDB, logger zerolog.Logger) *Log {
	return &Log{db: db, logger: logger}
}

// Append durably stores a raw snapshot payload and returns its sequence id.
// The insert has fsynced by the time Append returns (the game database runs
// synchronous=FULL), so callers may acknowledge receipt.
func (l *Log) Append(ctx context.Context, payload []byte) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO game_states (created_at, payload) VALUES (?, ?)`,
		time.Now().UTC(), string(payload))
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to append game state")
		return 0, fmt.Errorf("%w: %v", ErrLogWrite, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLogWrite, err)
	}

	l.logger.Debug().Int64("sequence_id", seq).Msg("game state appended")
	return seq, nil
}

// ReadFrom streams every record with sequence id >= from, in order,
// invoking fn per record. Iteration stops at the first fn error. The scan
// is finite as of call time and safe to re-run from any earlier sequence.
func (l *Log) ReadFrom(ctx context.Context, from int64, fn func(Record) error) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT game_state_id, created_at, payload
		 FROM game_states
		 WHERE game_state_id >= ?
		 ORDER BY game_state_id`,
		from)
	if err != nil {
		return fmt.Errorf("failed to read game states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.SequenceID, &rec.ReceivedAt, &payload); err != nil {
			return fmt.Errorf("failed to scan game state: %w", err)
		}
		rec.Payload = []byte(payload)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastSequence returns the highest sequence id in the log, or 0 when the
// log is empty.
func (l *Log) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(game_state_id) FROM game_states`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
