package fx

import (
	"csgo-tracker/internal/config"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/eventlog"
	"csgo-tracker/internal/logger"
	"csgo-tracker/internal/queue"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/server"
	"csgo-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideQueue builds the snapshot queue with the processor as its single
// consumer. Items are event log sequence ids.
func ProvideQueue(cfg *config.Config, processor *service.ProcessorService, log zerolog.Logger) *queue.Queue[int64] {
	return queue.New[int64](cfg.QueueCapacity, processor.HandleSequence, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.NewGameDB),
	fx.Provide(database.NewSkillDB),
	fx.Provide(eventlog.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewSeasonRepository),
	fx.Provide(repository.NewRoundRepository),
	fx.Provide(repository.NewRatingRepository),
	fx.Provide(repository.NewProgressRepository),
	// svc
	fx.Provide(service.NewProcessingLock),
	fx.Provide(service.NewProcessorService),
	fx.Provide(ProvideQueue),
	fx.Provide(service.NewIngestService),
	fx.Provide(service.NewRatingService),
	fx.Provide(service.NewRecalcService),
	// server
	fx.Provide(server.NewTrackerServer),
)
