package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/prefab/internal/components"
	"github.com/zeusync/prefab/internal/config"
	"github.com/zeusync/prefab/internal/core/cook"
	"github.com/zeusync/prefab/internal/core/events/bus"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/registry"
)

// App is everything the command line tool needs.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Registry *registry.Registry
	Events   bus.EventBus
	Source   cook.Source
	Cooker   *cook.Cooker
}

var ProviderSet = wire.NewSet(
	config.Load,
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideRegistry,
	bus.New,
	ProvideSource,
	cook.NewCooker,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	return log.New(cfg.LogLevel, cfg.LogEncoding)
}

// ProvideRegistry builds the registry of the built-in component types.
func ProvideRegistry(logger log.Log) (*registry.Registry, error) {
	return components.Register(registry.NewBuilder(logger)).Build()
}

// ProvideSource reads prefabs from the configured source directory.
func ProvideSource(cfg *config.Config, reg *registry.Registry, logger log.Log) cook.Source {
	return cook.NewPollingSource(cook.NewDirLoader(cfg.SourceDir), reg, cfg.MaxPolls, logger)
}
