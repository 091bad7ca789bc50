package memory

import (
	"context"
	"fmt"

	gomem "github.com/shirou/gopsutil/v4/mem"
)

// virtualMemory allows tests to stub the gopsutil call that parses /proc/meminfo.
var virtualMemory = gomem.VirtualMemoryWithContext

// Collector reports the share of physical memory in use.
type Collector struct{}

// NewCollector returns a memory collector.
func NewCollector() *Collector {
	return &Collector{}
}

// UsedPercent returns (MemTotal - MemAvailable) / MemTotal as a percentage.
func (c *Collector) UsedPercent(ctx context.Context) (float32, error) {
	stat, err := virtualMemory(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	if stat == nil || stat.Total == 0 {
		return 0, nil
	}
	used := stat.Total - min(stat.Available, stat.Total)
	return float32(float64(used) / float64(stat.Total) * 100), nil
}
