package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/app"
	"github.com/sam-warren/cedhtools/internal/config"
	"github.com/sam-warren/cedhtools/internal/rollup"
)

const refresherRestartDelay = 30 * time.Second

func main() {
	fx.New(
		app.Module,
		fx.Invoke(closeDatabase),
		fx.Invoke(runRefresher),
		fx.Invoke(runServer),
	).Run()
}

// closeDatabase is registered first so the connection pool is closed after
// every other component has stopped
func closeDatabase(lc fx.Lifecycle, db *gorm.DB, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
}

// runRefresher serves persisted snapshots immediately and keeps rebuilding
// them in the background until shutdown
func runRefresher(lc fx.Lifecycle, refresher *rollup.Refresher, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := refresher.Warm(ctx); err != nil {
				// slices without a snapshot answer 503 until their first build
				logger.Warn().Err(err).Msg("some rollup slices could not be warmed")
			}

			go func() {
				defer close(done)
				for {
					func() {
						defer func() {
							if r := recover(); r != nil {
								logger.Error().Interface("panic", r).Dur("restart_in", refresherRestartDelay).Msg("PANIC in rollup refresher")
							}
						}()
						refresher.Start(ctx)
					}()

					select {
					case <-ctx.Done():
						return
					case <-time.After(refresherRestartDelay):
						logger.Info().Msg("rollup refresher restarting after panic recovery")
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				logger.Warn().Msg("rollup refresher did not stop before the shutdown deadline")
			}
			return nil
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
