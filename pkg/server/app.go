package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// Component is a background part of the process (queue workers, consumers,
// scheduler, client pools). Start must not block.
type Component struct {
	Name  string
	Start func() error
	Stop  func(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *logger.Logger
	httpServer      *xhttp.Server
	components      []Component
	shutdownTimeout time.Duration
}

func New(lgr *logger.Logger, httpServer *xhttp.Server, shutdownTimeout time.Duration, components ...Component) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 20 * time.Second
	}
	return &App{logger: lgr, httpServer: httpServer, components: components, shutdownTimeout: shutdownTimeout}
}

// Add appends components started after the existing ones and stopped before them.
func (a *App) Add(components ...Component) {
	a.components = append(a.components, components...)
}

// Run starts components in order, then HTTP, and blocks until SIGINT/SIGTERM
// or a listener failure.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := 0
	for _, c := range a.components {
		if c.Start == nil {
			started++
			continue
		}
		if err := c.Start(); err != nil {
			a.logger.Error("component start failed", logger.String("component", c.Name), logger.Error(err))
			return multierr.Append(fmt.Errorf("start %s: %w", c.Name, err), a.stopComponents(started))
		}
		a.logger.Info("component started", logger.String("component", c.Name))
		started++
	}

	httpErr := a.httpServer.Start()
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err, ok := <-httpErr:
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
			a.logger.Error("http server failed", logger.Error(err))
		}
	}
	return multierr.Append(runErr, a.shutdown())
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var err error
	if e := a.httpServer.Stop(ctx); e != nil {
		err = multierr.Append(err, e)
	}
	err = multierr.Append(err, a.stopComponentsCtx(ctx, len(a.components)))
	if err != nil {
		a.logger.Warn("shutdown finished with errors", logger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) stopComponents(n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	return a.stopComponentsCtx(ctx, n)
}

// stopComponentsCtx stops the first n components in reverse order.
func (a *App) stopComponentsCtx(ctx context.Context, n int) error {
	var err error
	for i := n - 1; i >= 0; i-- {
		c := a.components[i]
		if c.Stop == nil {
			continue
		}
		if e := c.Stop(ctx); e != nil {
			a.logger.Warn("component stop failed", logger.String("component", c.Name), logger.Error(e))
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", c.Name, e))
		}
	}
	return err
}
