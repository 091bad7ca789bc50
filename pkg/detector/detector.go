// Package detector turns a stream of readings into closed spike events.
//
// Each resource kind runs its own two-state machine (idle, active). A spike
// opens on the first reading strictly above the threshold, tracks its peak
// while readings stay above, and closes on the first reading at or below the
// threshold. Closed spikes whose elapsed time, measured on the reading
// timestamps, is shorter than the minimum duration are discarded.
// Spikes still open when the detector is abandoned are never emitted.
package detector

import (
	"time"

	"github.com/srodi/spikewatch/pkg/types"
)

type spikeState struct {
	active bool
	start  time.Time
	peak   float32
}

// OpenSpike describes a spike that has started but not yet closed.
type OpenSpike struct {
	Resource  types.ResourceKind
	Start     time.Time
	Peak      float32
	Threshold float32
}

// Detector holds one state machine per resource kind. It is not safe for
// concurrent use; the run loop owns it.
type Detector struct {
	thresholds types.Thresholds
	states     map[types.ResourceKind]*spikeState
}

// New builds a detector for the given thresholds. Kinds without a threshold stay idle forever.
func New(thresholds types.Thresholds) *Detector {
	states := make(map[types.ResourceKind]*spikeState, len(types.Kinds))
	for _, kind := range types.Kinds {
		states[kind] = &spikeState{}
	}
	return &Detector{thresholds: thresholds, states: states}
}

// Observe feeds one reading to every enabled resource and returns the spikes
// that closed on it, in cpu, ram, io order.
func (d *Detector) Observe(r types.Reading) []types.SpikeEvent {
	var events []types.SpikeEvent
	for _, kind := range types.Kinds {
		threshold, ok := d.thresholds.For(kind)
		if !ok {
			continue
		}
		value, ok := r.Value(kind)
		if !ok {
			continue
		}
		if ev, closed := d.step(kind, value, threshold, r.Timestamp); closed {
			events = append(events, ev)
		}
	}
	return events
}

func (d *Detector) step(kind types.ResourceKind, value, threshold float32, now time.Time) (types.SpikeEvent, bool) {
	st := d.states[kind]
	over := value > threshold

	if !st.active {
		if over {
			*st = spikeState{active: true, start: now, peak: value}
		}
		return types.SpikeEvent{}, false
	}

	if over {
		if value > st.peak {
			st.peak = value
		}
		return types.SpikeEvent{}, false
	}

	start, peak := st.start, st.peak
	*st = spikeState{}

	elapsed := max(now.Sub(start), 0)
	if elapsed < time.Duration(d.thresholds.MinSpikeDuration)*time.Second {
		return types.SpikeEvent{}, false
	}

	tsStart := epochSeconds(start)
	tsEnd := epochSeconds(now)
	if tsEnd < tsStart {
		// wall clock stepped backwards while the spike was open
		tsEnd = tsStart
	}
	duration := tsEnd - tsStart

	return types.SpikeEvent{
		Resource:     kind,
		TsStart:      tsStart,
		TsEnd:        tsEnd,
		DurationSecs: duration,
		Peak:         peak,
		Threshold:    threshold,
		Top:          []string{},
	}, true
}

// Active lists the resources currently inside a spike.
func (d *Detector) Active() []types.ResourceKind {
	var kinds []types.ResourceKind
	for _, kind := range types.Kinds {
		if d.states[kind].active {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Open returns the spikes that would be lost if monitoring stopped now.
func (d *Detector) Open() []OpenSpike {
	var open []OpenSpike
	for _, kind := range types.Kinds {
		st := d.states[kind]
		if !st.active {
			continue
		}
		threshold, _ := d.thresholds.For(kind)
		open = append(open, OpenSpike{Resource: kind, Start: st.start, Peak: st.peak, Threshold: threshold})
	}
	return open
}

func epochSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
