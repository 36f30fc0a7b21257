package main

import (
	"context"
	"os"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/logger"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/service"
)

// Recalculates every skill rating from the committed rounds and exits.
// Run it offline; a concurrently running server would race the rebuild
// for the derived-state writer lock, not corrupt it.
func main() {
	log := logger.New()

	cfg, err := config.Load(log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logger.ApplyLevel(cfg.LogLevel)

	skillDB, err := database.NewSkillDB(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open skill database")
		os.Exit(1)
	}
	defer skillDB.Close()

	rounds := repository.NewRoundRepository(skillDB, log)
	ratings := repository.NewRatingRepository(skillDB, log)
	recalc := service.NewRecalcService(rounds, ratings, service.NewProcessingLock(), log)

	if err := recalc.RecalculateAll(context.Background()); err != nil {
		log.Error().Err(err).Msg("recalculation failed")
		os.Exit(1)
	}

	log.Info().Msg("recalculation complete")
}
