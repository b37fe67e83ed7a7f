package npd

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/metrics"
)

// ModuleRunner is one npd module (embedded_mqtt, history_logger, playcount,
// tempo, top_items or admin_http) as seen by the supervisor.
type ModuleRunner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor runs the daemon's modules side by side. The broadcast and query
// services share one broker, so a module that exits with an error takes the
// rest of the daemon down with it.
type Supervisor struct {
	Logger *zap.Logger
}

// Run starts every module and blocks until ctx is cancelled or a module
// fails. Either way the remaining modules are cancelled and awaited; the
// first module error is returned.
func (s Supervisor) Run(ctx context.Context, modules []ModuleRunner) error {
	if len(modules) == 0 {
		return fmt.Errorf("no modules enabled")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(modules))

	for _, module := range modules {
		m := module
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger := s.Logger.With(zap.String("module", m.Name))
			running := metrics.ModulesRunning.WithLabelValues(m.Name)
			running.Set(1)
			defer running.Set(0)

			logger.Info("starting module")
			if err := m.Run(runCtx); err != nil {
				logger.Error("module exited", zap.Error(err))
				errCh <- fmt.Errorf("%s: %w", m.Name, err)
				return
			}
			logger.Info("module stopped")
		}()
	}
	s.Logger.Info("modules started", zap.Int("count", len(modules)))

	var err error
	select {
	case <-ctx.Done():
		s.Logger.Info("shutdown requested")
	case err = <-errCh:
		s.Logger.Warn("stopping remaining modules", zap.Error(err))
	}

	cancel()
	wg.Wait()
	return err
}
