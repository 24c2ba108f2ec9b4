package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/amberrun/internal/campaign"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
}

// NewApp is the constructor for the main application. Reports such as
// status go to outW; logs and subprocess stderr go to logW. Subprocess
// stdout goes to outW. An invalid step registry is a programming error and
// panics.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.New().Load(modules...)
	logger.Debug("All step modules registered.", "count", len(modules), "kinds", reg.Kinds())

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logW:     logW,
		logger:   logger,
		registry: reg,
		config:   cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) loader() *hcl_adapter.Loader {
	return hcl_adapter.NewLoader(a.registry)
}

func (a *App) campaignOptions() []campaign.Option {
	return []campaign.Option{
		campaign.WithLogger(a.logger),
		campaign.WithOutput(a.outW, a.logW),
	}
}
