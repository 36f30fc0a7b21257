package database

import (
	"database/sql"
	"embed"
	"fmt"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/constants"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/game/*.sql migrations/skill/*.sql
var embedMigrations embed.FS

// GameDB holds the raw snapshot log. It is the durable source of truth:
// appends run with synchronous=FULL so an acknowledged write survives a
// crash.
type GameDB struct {
	*sql.DB
}

// SkillDB holds derived state (players, rounds, ratings). It is rebuildable
// from the game database via recalculation, so it keeps the lighter
// synchronous=NORMAL setting.
type SkillDB struct {
	*sql.DB
}

func NewGameDB(cfg *config.Config, logger zerolog.Logger) (*GameDB, error) {
	db, err := open(cfg.GameDBPath, "FULL", "migrations/game", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open game database: %w", err)
	}
	return &GameDB{db}, nil
}

func NewSkillDB(cfg *config.Config, logger zerolog.Logger) (*SkillDB, error) {
	db, err := open(cfg.SkillDBPath, "NORMAL", "migrations/skill", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open skill database: %w", err)
	}
	return &SkillDB{db}, nil
}

func open(path, synchronous, migrationDir string, logger zerolog.Logger) (*sql.DB, error) {
	logger.Info().Str("path", path).Msg("connecting to database")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(constants.DBMaxOpenConns)
	db.SetMaxIdleConns(constants.DBMaxIdleConns)
	db.SetConnMaxLifetime(constants.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(constants.DBMaxIdleTime)

	if err := optimizeSQLite(db, synchronous, logger); err != nil {
		logger.Error().Err(err).Msg("failed to optimize SQLite")
		return nil, fmt.Errorf("failed to optimize SQLite: %w", err)
	}
	if err := runMigrations(db, migrationDir, logger); err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", path).Msg("database connection established and optimized")
	return db, nil
}

func runMigrations(db *sql.DB, dir string, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	logger.Info().Str("dir", dir).Msg("migrations completed successfully")
	return nil
}

func optimizeSQLite(sqlDB *sql.DB, synchronous string, logger zerolog.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", synchronous},
		{"cache_size", "-64000"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
		{"temp_store", "MEMORY"},
		{"mmap_size", "268435456"}, // memory map 256MB for better performance https://sqlite.org/mmap.html
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := sqlDB.Exec(query); err != nil {
			logger.Warn().
				Err(err).
				Str("pragma", pragma.name).
				Str("value", pragma.value).
				Msg("failed to set pragma")
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		logger.Debug().
			Str("pragma", pragma.name).
			Str("value", pragma.value).
			Msg("SQLite pragma set")
	}

	return nil
}
