package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultOverTime = time.Second

// Rate is an outbound request budget. A bare number is events per second,
// "N/duration" allows N events per duration with a burst of N.
type Rate struct {
	Events   float64       `json:"events,omitempty"`
	OverTime time.Duration `json:"over_time,omitempty"`
	burst    bool
}

// Decode is used by envconfig to parse the env-config string to a Rate value.
func (r *Rate) Decode(value string) error {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		r.burst = false
		r.Events = f
		r.OverTime = defaultOverTime
		return nil
	}
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return fmt.Errorf("rate: value does not match rate syntax %q", value)
	}

	// 52 because the uint needs to fit in a float64
	e, err := strconv.ParseUint(parts[0], 10, 52)
	if err != nil {
		return fmt.Errorf("rate: events part of rate value %q failed to parse as uint64: %w", value, err)
	}

	d, err := time.ParseDuration(parts[1])
	if err != nil {
		return fmt.Errorf("rate: over-time part of rate value %q failed to parse as duration: %w", value, err)
	}
	if d <= 0 {
		return fmt.Errorf("rate: over-time part of rate value %q must be positive", value)
	}

	r.burst = true
	r.Events = float64(e)
	r.OverTime = d
	return nil
}

// Enabled reports whether the rate limits anything.
func (r *Rate) Enabled() bool {
	return r.Events > 0
}

func (r *Rate) EventsPerSecond() float64 {
	if r.OverTime == 0 {
		return r.Events
	}
	return r.Events / r.OverTime.Seconds()
}

// Limit converts the rate for a token bucket limiter.
func (r *Rate) Limit() rate.Limit {
	if !r.Enabled() {
		return rate.Inf
	}
	return rate.Limit(r.EventsPerSecond())
}

// Burst is the bucket size: N for "N/duration" rates, otherwise 1.
func (r *Rate) Burst() int {
	if r.burst && r.Events >= 1 {
		return int(r.Events)
	}
	return 1
}

func (r *Rate) String() string {
	if !r.burst {
		return strconv.FormatFloat(r.Events, 'f', -1, 64)
	}
	return fmt.Sprintf("%d/%s", uint64(r.Events), r.OverTime.String())
}
