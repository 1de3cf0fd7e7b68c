package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fernwell/nurture/internal/queue"
)

// Collector refreshes queue gauges on an interval.
type Collector struct {
	metrics  *Metrics
	queue    queue.Queue
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector over the given queue
func NewCollector(m *Metrics, q queue.Queue, logger *slog.Logger, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		queue:    q,
		logger:   logger.With("component", "metrics"),
		interval: interval,
	}
}

// Start begins the background refresh loop
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	}()
}

// Stop stops the refresh loop
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Collector) refresh(ctx context.Context) {
	stats, err := c.queue.Stats(ctx)
	if err != nil {
		c.logger.Error("failed to read queue stats", "error", err)
		return
	}
	c.metrics.QueuePending.Set(float64(stats.Pending))
	c.metrics.QueueProcessing.Set(float64(stats.Processing))
	c.metrics.QueueFailed.Set(float64(stats.Failed))
}
