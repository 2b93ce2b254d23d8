package subscription

import (
	"context"
	"time"

	"gympro/internal/logger"
)

// Worker drives the billing period rollover: on a fixed interval it asks
// the service to apply due pending changes and expire cancelled
// subscriptions. The decision engine never runs here; it only ever sees
// the state this worker leaves behind.
type Worker struct {
	service  Service
	interval time.Duration
}

func NewWorker(service Service, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{service: service, interval: interval}
}

func (w *Worker) Start(ctx context.Context) {
	logger.Infof("Rollover worker started, interval %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Rollover worker stopped")
			return
		case <-ticker.C:
			if err := w.service.ApplyDueChanges(ctx); err != nil {
				logger.Errorf("Rollover pass failed: %v", err)
			}
		}
	}
}
