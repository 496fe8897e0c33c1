package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// GracefulShutdown runs registered release functions in LIFO order so
// process-lifetime handles close in the reverse of their acquisition.
type GracefulShutdown struct {
	mu         sync.Mutex
	shutdownFn []func() error
	timeout    time.Duration
	logger     *Logger
}

// NewGracefulShutdown creates a new graceful shutdown manager
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}
	return &GracefulShutdown{timeout: timeout, logger: logger}
}

// Register registers a shutdown function
func (g *GracefulShutdown) Register(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdownFn = append(g.shutdownFn, fn)
}

// Shutdown executes all registered shutdown functions, newest first.
// Each function runs exactly once regardless of which exit path
// triggered the shutdown.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	fns := g.shutdownFn
	g.shutdownFn = nil
	g.mu.Unlock()

	g.logger.Info("Starting graceful shutdown", Int("components", len(fns)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var firstErr error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				g.logger.Error("Shutdown function failed", Int("index", i), Err(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		g.logger.Info("Graceful shutdown complete")
		return err
	case <-shutdownCtx.Done():
		g.logger.Warn("Graceful shutdown timed out")
		return errors.New("shutdown timeout")
	}
}
