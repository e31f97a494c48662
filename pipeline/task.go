package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PeriodicTask represents a task that runs periodically with an optional initial delay
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func(ctx context.Context)
}

// run executes the periodic task in a loop, respecting the initial delay and context cancellation
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *zap.SugaredLogger) {
	if pt.initialDelay > 0 {
		logger.Debugf("[%s] Waiting for initial delay: %v", pt.name, pt.initialDelay)
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc(ctx)
		case <-ctx.Done():
			logger.Debugf("[%s] Stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Debugf("[%s] Stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		pt.runFunc(ctx)
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Infof("[%s] Started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc(ctx)
		case <-ctx.Done():
			logger.Infof("[%s] Stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Infof("[%s] Stopped due to stop signal", pt.name)
			return
		}
	}
}
