package main

import (
	"context"
	"fmt"
	"net/http"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/database"
	fxmodules "csgo-tracker/internal/fx"
	logpkg "csgo-tracker/internal/logger"
	"csgo-tracker/internal/middleware"
	"csgo-tracker/internal/queue"
	"csgo-tracker/internal/server"
	"csgo-tracker/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	trackerServer *server.TrackerServer,
	processor *service.ProcessorService,
	snapshotQueue *queue.Queue[int64],
	cfg *config.Config,
	gameDB *database.GameDB,
	skillDB *database.SkillDB,
	logger zerolog.Logger,
) {
	logpkg.ApplyLevel(cfg.LogLevel)

	mux := http.NewServeMux()
	trackerServer.Register(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := middleware.RequestID(logger)(c.Handler(mux))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Replay anything logged but not yet processed before
			// accepting new snapshots.
			if _, err := processor.Resume(ctx); err != nil {
				return fmt.Errorf("resume processing: %w", err)
			}
			snapshotQueue.Start()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			// Stop after the listener so no accepted request loses its
			// enqueue; drained items are processed before close.
			snapshotQueue.Stop()

			if err := skillDB.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing skill database")
			}
			if err := gameDB.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing game database")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
