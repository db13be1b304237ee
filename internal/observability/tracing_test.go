package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/splatbot/nsoauth/internal/conf"
)

func TestOpenTelemetryResourceNamesService(t *testing.T) {
	res := openTelemetryResource("nsoauth-test")

	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "nsoauth-test", name.AsString())

	_, ok = res.Set().Value(attribute.Key("nsoauth.version"))
	assert.True(t, ok)
}

func TestEnableOpenTelemetryTracingRejectsUnknownProtocol(t *testing.T) {
	err := enableOpenTelemetryTracing(context.Background(), &conf.TracingConfig{
		Enabled:          true,
		Exporter:         conf.OpenTelemetryTracing,
		ExporterProtocol: "http/json",
		ServiceName:      "nsoauth",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported OpenTelemetry exporter protocol "http/json"`)
}

func TestConfigureTracingInstallsProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, ConfigureTracing(ctx, &conf.TracingConfig{
		Enabled:          true,
		Exporter:         conf.OpenTelemetryTracing,
		ExporterProtocol: "http/protobuf",
		ServiceName:      "nsoauth",
	}))

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	WaitForCleanup(waitCtx)
}
