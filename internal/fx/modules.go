package fx

import (
	"runtime"

	"sc2companion/internal/api"
	"sc2companion/internal/config"
	"sc2companion/internal/database"
	"sc2companion/internal/decoder"
	"sc2companion/internal/logger"
	"sc2companion/internal/repository"
	"sc2companion/internal/server"
	"sc2companion/internal/service"

	"go.uber.org/fx"
)

// One extractor instance per insertion slot: the decoder may hold
// thread-affinity state and cannot be shared.
func ProvideExtractorPool(factory decoder.Factory) (*decoder.Pool, error) {
	return decoder.NewPool(factory, service.Parallelism(runtime.NumCPU()))
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewReplayRepository),
	fx.Provide(repository.NewCacheStateRepository),
	// decoder boundary
	fx.Provide(decoder.NewFactory),
	fx.Provide(ProvideExtractorPool),
	// svc
	fx.Provide(service.NewIdentityResolver),
	fx.Provide(service.NewLogSink),
	fx.Provide(service.NewPipeline),
	fx.Provide(service.NewSyncService),
	// api client
	fx.Provide(api.NewLadderClient),
	// overlay server
	fx.Provide(server.NewOverlayServer),
)
