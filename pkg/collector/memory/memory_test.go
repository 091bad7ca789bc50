package memory

import (
	"context"
	"errors"
	"testing"

	gomem "github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/require"
)

func TestUsedPercentFromAvailable(t *testing.T) {
	t.Cleanup(func() { virtualMemory = gomem.VirtualMemoryWithContext })

	cases := []struct {
		name     string
		stat     *gomem.VirtualMemoryStat
		expected float32
	}{
		{"quarterUsed", &gomem.VirtualMemoryStat{Total: 1000, Available: 750}, 25},
		{"zeroTotal", &gomem.VirtualMemoryStat{}, 0},
		{"availableAboveTotal", &gomem.VirtualMemoryStat{Total: 100, Available: 200}, 0},
		{"nilStat", nil, 0},
	}
	for _, tc := range cases {
		virtualMemory = func(context.Context) (*gomem.VirtualMemoryStat, error) { return tc.stat, nil }
		got, err := NewCollector().UsedPercent(context.Background())
		require.NoError(t, err, tc.name)
		require.InDelta(t, tc.expected, got, 1e-4, tc.name)
	}
}

func TestUsedPercentError(t *testing.T) {
	t.Cleanup(func() { virtualMemory = gomem.VirtualMemoryWithContext })
	boom := errors.New("meminfo missing")
	virtualMemory = func(context.Context) (*gomem.VirtualMemoryStat, error) { return nil, boom }

	_, err := NewCollector().UsedPercent(context.Background())
	require.ErrorIs(t, err, boom)
}
