package eventlog

import (
	"iter"

	"github.com/srodi/spikewatch/pkg/types"
)

// Filter selects events from a log. Nil fields do not filter.
type Filter struct {
	Resource *types.ResourceKind
	Since    *uint64 // keep ts_start >= Since
	Until    *uint64 // keep ts_start <= Until
	Limit    *int
}

// Match reports whether e passes the resource and time filters. Limit is not considered.
func (f Filter) Match(e types.SpikeEvent) bool {
	if f.Resource != nil && e.Resource != *f.Resource {
		return false
	}
	if f.Since != nil && e.TsStart < *f.Since {
		return false
	}
	if f.Until != nil && e.TsStart > *f.Until {
		return false
	}
	return true
}

// Query collects the events matching f in the order they were appended,
// stopping as soon as Limit matches are found.
func Query(events iter.Seq2[types.SpikeEvent, error], f Filter) ([]types.SpikeEvent, error) {
	var out []types.SpikeEvent
	if f.Limit != nil && *f.Limit <= 0 {
		return out, nil
	}
	for ev, err := range events {
		if err != nil {
			return out, err
		}
		if !f.Match(ev) {
			continue
		}
		out = append(out, ev)
		if f.Limit != nil && len(out) >= *f.Limit {
			break
		}
	}
	return out, nil
}
