// Package app is the process-level composition root: it owns the Dependency
// Container's lifecycle and the handful of top-level concerns (startup
// banner, signal-driven shutdown) that sit above it.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/awehrman/peas/internal/common"
	"github.com/awehrman/peas/internal/container"
)

// App wraps the Dependency Container with the process-lifetime context the
// container's workers and maintenance sweeper run under.
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Container *container.Container

	cancel context.CancelFunc
}

// New builds every collaborator via container.New, starts the workers and
// maintenance sweeper, and returns a ready-to-serve App.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to assemble dependency container: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		cancel()
		_ = c.Close(context.Background())
		return nil, fmt.Errorf("failed to start dependency container: %w", err)
	}

	if logger != nil {
		logger.Info().Msg("Application started")
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Container: c,
		cancel:    cancel,
	}, nil
}

// Close stops every worker and the maintenance sweeper, then closes the
// underlying storage.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Logger != nil {
		a.Logger.Info().Msg("Flushing context logs")
	}
	common.Stop()

	if a.Container == nil {
		return nil
	}
	if err := a.Container.Close(context.Background()); err != nil {
		return fmt.Errorf("failed to close dependency container: %w", err)
	}
	return nil
}
