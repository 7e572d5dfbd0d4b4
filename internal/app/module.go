// Package app wires the cedhtools components together with fx.
package app

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/sam-warren/cedhtools/internal/api"
	"github.com/sam-warren/cedhtools/internal/api/handlers"
	"github.com/sam-warren/cedhtools/internal/config"
	"github.com/sam-warren/cedhtools/internal/database"
	"github.com/sam-warren/cedhtools/internal/logger"
	"github.com/sam-warren/cedhtools/internal/printing"
	"github.com/sam-warren/cedhtools/internal/repository"
	"github.com/sam-warren/cedhtools/internal/rollup"
	"github.com/sam-warren/cedhtools/internal/services"
)

func ProvideRollupOptions(cfg *config.Config) (rollup.Options, error) {
	return cfg.RollupOptions()
}

func ProvideStore(opts rollup.Options) *rollup.Store {
	return rollup.NewStore(opts.Slices())
}

func ProvideSelector(printings *repository.PrintingRepository, cfg *config.Config) *printing.Selector {
	return printing.NewSelector(printings, cfg.PrintingPolicy())
}

func ProvideRefresher(
	store *rollup.Store,
	builder *rollup.Builder,
	source *repository.RollupSource,
	rollups *repository.RollupRepository,
	selector *printing.Selector,
	log zerolog.Logger,
	cfg *config.Config,
) *rollup.Refresher {
	return rollup.NewRefresher(store, builder, source, rollups, selector, log, cfg.RefresherConfig())
}

func ProvideMoxfieldService(cfg *config.Config, log zerolog.Logger) *services.MoxfieldService {
	return services.NewMoxfieldService(services.MoxfieldOptions{
		BaseURL:           cfg.Moxfield.BaseURL,
		UserAgent:         cfg.Moxfield.UserAgent,
		RequestsPerSecond: cfg.Moxfield.RequestsPerSecond,
		Timeout:           cfg.MoxfieldTimeout(),
		CacheTTL:          cfg.DeckCacheTTL(),
		CacheSize:         cfg.Moxfield.CacheSize,
	}, log)
}

func ProvideStatisticsService(
	store *rollup.Store,
	printings *repository.PrintingRepository,
	selector *printing.Selector,
	cfg *config.Config,
) (*services.StatisticsService, error) {
	window, err := cfg.DefaultWindow()
	if err != nil {
		return nil, err
	}
	return services.NewStatisticsService(store, printings, selector, window), nil
}

func ProvideDeckService(decks *repository.DeckRepository, printings *repository.PrintingRepository, moxfield *services.MoxfieldService) *services.DeckService {
	return services.NewDeckService(decks, printings, moxfield)
}

func ProvideStatisticsHandler(statistics *services.StatisticsService, decks *services.DeckService) *handlers.StatisticsHandler {
	return handlers.NewStatisticsHandler(statistics, decks)
}

func ProvideTotalsHandler(totals *repository.TotalsRepository) *handlers.TotalsHandler {
	return handlers.NewTotalsHandler(totals)
}

func ProvideRollupHandler(refresher *rollup.Refresher, rollups *repository.RollupRepository) *handlers.RollupHandler {
	return handlers.NewRollupHandler(refresher, rollups)
}

// Core provides everything except the HTTP layer
var Core = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(logger.New),
	fx.Provide(database.Open),
	// repos
	fx.Provide(repository.NewDeckRepository),
	fx.Provide(repository.NewStandingRepository),
	fx.Provide(repository.NewPrintingRepository),
	fx.Provide(repository.NewRollupRepository),
	fx.Provide(repository.NewRollupSource),
	fx.Provide(repository.NewTotalsRepository),
	// rollups
	fx.Provide(ProvideRollupOptions),
	fx.Provide(ProvideStore),
	fx.Provide(rollup.NewBuilder),
	fx.Provide(ProvideSelector),
	fx.Provide(ProvideRefresher),
	// svc
	fx.Provide(ProvideMoxfieldService),
	fx.Provide(ProvideDeckService),
	fx.Provide(ProvideStatisticsService),
)

var Module = fx.Options(
	Core,
	fx.Provide(ProvideStatisticsHandler),
	fx.Provide(ProvideTotalsHandler),
	fx.Provide(ProvideRollupHandler),
	fx.Provide(api.SetupRouter),
)
