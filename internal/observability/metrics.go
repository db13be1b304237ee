package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	otelruntimemetrics "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/splatbot/nsoauth/internal/conf"
)

func Meter(instrumentationName string, opts ...metric.MeterOption) metric.Meter {
	return otel.Meter(instrumentationName, opts...)
}

func ObtainMetricCounter(name, desc string) metric.Int64Counter {
	counter, err := Meter("nsoauth").Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		panic(err)
	}
	return counter
}

func enableOpenTelemetryMetrics(ctx context.Context, mc *conf.MetricsConfig) error {
	var (
		exporter sdkmetric.Exporter
		err      error
	)

	switch mc.ExporterProtocol {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	case "http/protobuf":
		exporter, err = otlpmetrichttp.New(ctx)
	default:
		return fmt.Errorf("unsupported OpenTelemetry exporter protocol %q", mc.ExporterProtocol)
	}
	if err != nil {
		return err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)

	otel.SetMeterProvider(meterProvider)

	cleanupWaitGroup.Add(1)
	go func() {
		defer cleanupWaitGroup.Done()

		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		// a short-lived CLI run must push its final readings before exit
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("unable to gracefully shut down OpenTelemetry metric provider")
		} else {
			logrus.Debug("OpenTelemetry metric exporter shut down")
		}
	}()

	return nil
}

var (
	metricsOnce sync.Once
)

// ConfigureMetrics installs the global meter provider. Counters obtained
// before this call keep working since otel delegates the global provider.
func ConfigureMetrics(ctx context.Context, mc *conf.MetricsConfig) error {
	if ctx == nil {
		panic("context must not be nil")
	}

	var err error

	metricsOnce.Do(func() {
		if mc.Enabled && mc.Exporter == conf.OpenTelemetryMetrics {
			if err = enableOpenTelemetryMetrics(ctx, mc); err != nil {
				logrus.WithError(err).Error("unable to start OTLP metric exporter")
				return
			}

			if err := otelruntimemetrics.Start(otelruntimemetrics.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
				logrus.WithError(err).Error("unable to start OpenTelemetry Go runtime metrics collection")
			} else {
				logrus.Debug("Go runtime metrics collection started")
			}
		}
	})

	return err
}
