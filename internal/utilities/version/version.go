// Package version reports the client versions a run presents upstream as
// metric gauges.
package version

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Record publishes major, minor and patch of ver as
// nsoauth_<component>_version_<part> gauges, observed on every collection.
// The web view version carries its revision as a prerelease suffix, which is
// attached as an attribute.
func Record(component, ver string) error {
	vi, err := parseSemver(ver)
	if err != nil {
		const msg = "version: unable to parse %s version %q: %w"
		return fmt.Errorf(msg, component, ver, err)
	}

	if err := recordGauges(component, vi, gaugeOtel); err != nil {
		const msg = "version: unable to record %s version %q: %w"
		return fmt.Errorf(msg, component, ver, err)
	}
	return nil
}

type gaugeFunc func(
	name string,
	options ...metric.Int64ObservableGaugeOption,
) (metric.Int64ObservableGauge, error)

func gaugeOtel(name string, options ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	return otel.Meter("nsoauth").Int64ObservableGauge(name, options...)
}

func recordGauge(
	component, part string,
	val uint64,
	revision string,
	fn gaugeFunc,
) error {
	if val > math.MaxInt64 {
		const msg = "part %q (%v) value > math.MaxInt64"
		return fmt.Errorf(msg, part, val)
	}

	var opts []metric.ObserveOption
	if revision != "" {
		opts = append(opts, metric.WithAttributes(attribute.String("revision", revision)))
	}

	name := fmt.Sprintf("nsoauth_%s_version_%s", component, part)
	desc := fmt.Sprintf("The %s %s version number presented upstream.", component, part)

	_, err := fn(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			obsrv.Observe(int64(val), opts...)
			return nil
		}),
	)
	if err != nil {
		const msg = "part %q (%v) otel error: %w"
		return fmt.Errorf(msg, part, val, err)
	}
	return nil
}

func recordGauges(component string, vi *versionInfo, fn gaugeFunc) error {
	return errors.Join(
		recordGauge(component, "major", vi.Major, vi.Revision, fn),
		recordGauge(component, "minor", vi.Minor, vi.Revision, fn),
		recordGauge(component, "patch", vi.Patch, vi.Revision, fn),
	)
}

type versionInfo struct {
	Original string
	Major    uint64
	Minor    uint64
	Patch    uint64
	Revision string
}

func parseSemver(ver string) (*versionInfo, error) {
	vi := &versionInfo{
		Original: ver,
	}

	sv, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(ver), "v"))
	if err != nil {
		return nil, err
	}

	vi.Major = sv.Major()
	vi.Minor = sv.Minor()
	vi.Patch = sv.Patch()
	vi.Revision = sv.Prerelease()
	return vi, nil
}
