package cpu

import (
	"context"
	"fmt"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
)

// cpuPercent allows tests to stub the gopsutil call that reads /proc/stat.
var cpuPercent = gocpu.PercentWithContext

// Collector reports host-wide CPU utilization between consecutive calls.
type Collector struct{}

// NewCollector primes the CPU counters so the first Percent call measures the
// window since construction instead of the average since boot.
func NewCollector(ctx context.Context) (*Collector, error) {
	if _, err := cpuPercent(ctx, 0, false); err != nil {
		return nil, fmt.Errorf("priming cpu counters: %w", err)
	}
	return &Collector{}, nil
}

// Percent returns busy CPU time as a percentage of all CPU time since the previous call.
func (c *Collector) Percent(ctx context.Context) (float32, error) {
	percentages, err := cpuPercent(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu times: %w", err)
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("reading cpu times: no aggregate cpu line")
	}
	return clampPercent(percentages[0]), nil
}

func clampPercent(v float64) float32 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return float32(v)
}
