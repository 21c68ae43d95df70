package bootstrap

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Task is a long-running background loop, such as a push source or the
// rate limiter sweeper. Run should return when ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervise starts every task and returns a wait function that blocks until
// all of them have returned. A failing task is logged and does not stop
// the others.
func Supervise(ctx context.Context, logger *logging.Logger, tasks ...Task) (wait func() error) {
	if logger == nil {
		logger = logging.Default()
	}
	var g errgroup.Group
	for _, task := range tasks {
		if task.Run == nil {
			continue
		}
		g.Go(func() error {
			logger.Info("background task started", "task", task.Name)
			err := task.Run(ctx)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
				logger.Info("background task stopped", "task", task.Name)
				return nil
			default:
				logger.Error("background task failed", "task", task.Name, "error", err)
				return err
			}
		})
	}
	return g.Wait
}
