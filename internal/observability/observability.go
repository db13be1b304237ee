package observability

import (
	"context"
	"sync"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/utilities"
)

var (
	cleanupWaitGroup sync.WaitGroup
)

// Configure sets up logging, tracing and metrics from the global
// configuration. Exporters shut down once ctx is cancelled.
func Configure(ctx context.Context, config *conf.GlobalConfiguration) error {
	if err := ConfigureLogging(&config.Logging); err != nil {
		return err
	}
	if err := ConfigureTracing(ctx, &config.Tracing); err != nil {
		return err
	}
	return ConfigureMetrics(ctx, &config.Metrics)
}

// WaitForCleanup waits until all observability long-running goroutines shut
// down cleanly or until the provided context signals done.
func WaitForCleanup(ctx context.Context) {
	utilities.WaitForCleanup(ctx, &cleanupWaitGroup)
}
