package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/config"
	"github.com/leejennwah/compliance-queue/internal/metrics"
	"github.com/leejennwah/compliance-queue/internal/store"
)

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the process-wide queue client. It is built on first use
// from the environment, with the global zap logger and metrics registered
// on the default Prometheus registry; later calls return the same client.
func Default() *Client {
	defaultOnce.Do(func() {
		cfg := config.Load()
		logger := zap.L().Named("queue")
		defaultClient = New(ConfigFrom(cfg.Queue),
			WithStore(store.Lazy(cfg.Redis, logger)),
			WithLogger(logger),
			WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
		)
	})
	return defaultClient
}
