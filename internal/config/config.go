package config

import (
	"fmt"
	"os"
	"strconv"

	"csgo-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	GameDBPath    string
	SkillDBPath   string
	ServerPort    string
	LogLevel      string
	QueueCapacity int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		GameDBPath:    getEnv("GAME_DB_PATH", "data/games.db"),
		SkillDBPath:   getEnv("SKILL_DB_PATH", "data/skill.db"),
		ServerPort:    getEnv("SERVER_PORT", "9000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", constants.DefaultQueueCapacity),
	}

	if cfg.GameDBPath == cfg.SkillDBPath {
		return nil, fmt.Errorf("GAME_DB_PATH and SKILL_DB_PATH must differ")
	}
	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive")
	}

	logger.Info().
		Str("game_db_path", cfg.GameDBPath).
		Str("skill_db_path", cfg.SkillDBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("queue_capacity", cfg.QueueCapacity).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
