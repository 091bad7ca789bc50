package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/srodi/spikewatch/pkg/collector/cpu"
	"github.com/srodi/spikewatch/pkg/collector/memory"
	"github.com/srodi/spikewatch/pkg/types"
)

// AcquisitionError reports that a metric source could not be read. No
// meaningful reading exists for the tick, so callers treat it as fatal.
type AcquisitionError struct {
	Metric string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquiring %s: %v", e.Metric, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

type cpuSource interface {
	Percent(ctx context.Context) (float32, error)
}

type memSource interface {
	UsedPercent(ctx context.Context) (float32, error)
}

// Sampler produces one timestamped CPU/RAM reading per call.
type Sampler struct {
	cpu cpuSource
	mem memSource
	now func() time.Time
}

// NewSampler wires the host CPU and memory collectors.
func NewSampler(ctx context.Context) (*Sampler, error) {
	cpuCollector, err := cpu.NewCollector(ctx)
	if err != nil {
		return nil, &AcquisitionError{Metric: "cpu", Err: err}
	}
	return &Sampler{cpu: cpuCollector, mem: memory.NewCollector(), now: time.Now}, nil
}

// Sample reads both metrics, stamped with the time before either read.
func (s *Sampler) Sample(ctx context.Context) (types.Reading, error) {
	ts := s.now()
	cpuPct, err := s.cpu.Percent(ctx)
	if err != nil {
		return types.Reading{}, &AcquisitionError{Metric: "cpu", Err: err}
	}
	ramPct, err := s.mem.UsedPercent(ctx)
	if err != nil {
		return types.Reading{}, &AcquisitionError{Metric: "ram", Err: err}
	}
	return types.Reading{Timestamp: ts, CPUPercent: cpuPct, RAMPercent: ramPct}, nil
}
