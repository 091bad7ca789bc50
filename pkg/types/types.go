package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMinSpikeDuration is the debounce window, in seconds, applied when none is configured.
const DefaultMinSpikeDuration uint64 = 3

// ResourceKind names a sampled resource that can spike.
type ResourceKind int

const (
	CPU ResourceKind = iota
	RAM
	// IO is reserved; no sampler produces IO readings yet.
	IO
)

// Kinds lists every resource in the order detectors and reports visit them.
var Kinds = []ResourceKind{CPU, RAM, IO}

func (k ResourceKind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case RAM:
		return "ram"
	case IO:
		return "io"
	default:
		return fmt.Sprintf("resource(%d)", int(k))
	}
}

// Label is the upper-case name used in human-readable output.
func (k ResourceKind) Label() string {
	switch k {
	case CPU:
		return "CPU"
	case RAM:
		return "RAM"
	case IO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// Unit is the suffix printed after values of this resource.
func (k ResourceKind) Unit() string {
	if k == IO {
		return "MB/s"
	}
	return "%"
}

// ParseResourceKind accepts "cpu", "ram" or "io".
func ParseResourceKind(s string) (ResourceKind, error) {
	switch s {
	case "cpu":
		return CPU, nil
	case "ram":
		return RAM, nil
	case "io":
		return IO, nil
	}
	return 0, fmt.Errorf("unknown resource %q (want cpu, ram or io)", s)
}

// MarshalText encodes k as its lower-case name.
func (k ResourceKind) MarshalText() ([]byte, error) {
	switch k {
	case CPU, RAM, IO:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("cannot marshal %s", k)
}

// UnmarshalText accepts the names ParseResourceKind accepts.
func (k *ResourceKind) UnmarshalText(b []byte) error {
	parsed, err := ParseResourceKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Reading is one sample of host utilization taken at Timestamp.
type Reading struct {
	Timestamp  time.Time
	CPUPercent float32
	RAMPercent float32
}

// Value returns the reading for kind; ok is false for resources the reading does not carry.
func (r Reading) Value(kind ResourceKind) (v float32, ok bool) {
	switch kind {
	case CPU:
		return r.CPUPercent, true
	case RAM:
		return r.RAMPercent, true
	}
	return 0, false
}

// Thresholds holds the per-resource spike thresholds. A nil threshold disables that resource.
type Thresholds struct {
	CPU *float32
	RAM *float32
	IO  *float32
	// MinSpikeDuration is the minimum spike length in seconds worth reporting.
	MinSpikeDuration uint64
}

// For returns the threshold configured for kind.
func (t Thresholds) For(kind ResourceKind) (float32, bool) {
	var p *float32
	switch kind {
	case CPU:
		p = t.CPU
	case RAM:
		p = t.RAM
	case IO:
		p = t.IO
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SpikeEvent is a closed spike. Its JSON form is the event log line format.
type SpikeEvent struct {
	Resource     ResourceKind `json:"resource"`
	TsStart      uint64       `json:"ts_start"`
	TsEnd        uint64       `json:"ts_end"`
	DurationSecs uint64       `json:"duration_secs"`
	Peak         float32      `json:"peak"`
	Threshold    float32      `json:"threshold"`
	// Top is reserved for per-process attribution and always empty.
	Top []string `json:"top"`
}

// MarshalJSON always encodes Top as an array, never null.
func (e SpikeEvent) MarshalJSON() ([]byte, error) {
	type line SpikeEvent
	l := line(e)
	if l.Top == nil {
		l.Top = []string{}
	}
	return json.Marshal(l)
}

// Float32 is a helper for building optional thresholds.
func Float32(v float32) *float32 { return &v }
