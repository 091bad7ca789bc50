package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srodi/spikewatch/pkg/types"
)

func ptr[T any](v T) *T { return &v }

func mixedLog(t *testing.T) (string, []types.SpikeEvent) {
	events := []types.SpikeEvent{
		event(types.CPU, 100, 91),
		event(types.RAM, 200, 92),
		event(types.RAM, 300, 93),
		event(types.CPU, 400, 94),
		event(types.RAM, 500, 95),
	}
	path := filepath.Join(t.TempDir(), "spikes.jsonl")
	writeEvents(t, path, events...)
	return path, events
}

func TestQueryResourceLimitReturnsEarliest(t *testing.T) {
	path, events := mixedLog(t)
	got, err := Query(NewReader(path, nil).Events(), Filter{Resource: ptr(types.RAM), Limit: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, []types.SpikeEvent{events[1]}, got)
}

func TestQueryFilters(t *testing.T) {
	path, events := mixedLog(t)
	cases := []struct {
		name     string
		filter   Filter
		expected []types.SpikeEvent
	}{
		{"none", Filter{}, events},
		{"cpu", Filter{Resource: ptr(types.CPU)}, []types.SpikeEvent{events[0], events[3]}},
		{"since", Filter{Since: ptr(uint64(300))}, events[2:]},
		{"until", Filter{Until: ptr(uint64(200))}, events[:2]},
		{"window", Filter{Since: ptr(uint64(200)), Until: ptr(uint64(400)), Resource: ptr(types.RAM)}, events[1:3]},
		{"limitTwo", Filter{Limit: ptr(2)}, events[:2]},
		{"limitZero", Filter{Limit: ptr(0)}, nil},
		{"io", Filter{Resource: ptr(types.IO)}, nil},
	}
	for _, tc := range cases {
		got, err := Query(NewReader(path, nil).Events(), tc.filter)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.expected, got, tc.name)
	}
}

func TestQueryStopsReadingAtLimit(t *testing.T) {
	yielded := 0
	seq := func(yield func(types.SpikeEvent, error) bool) {
		for i := 0; i < 100; i++ {
			yielded++
			if !yield(event(types.CPU, uint64(i), 90), nil) {
				return
			}
		}
	}
	got, err := Query(seq, Filter{Limit: ptr(3)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 3, yielded)
}
