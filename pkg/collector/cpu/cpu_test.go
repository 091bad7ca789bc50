package cpu

import (
	"context"
	"errors"
	"testing"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/require"
)

func stubPercent(t *testing.T, fn func(context.Context, time.Duration, bool) ([]float64, error)) {
	t.Cleanup(func() { cpuPercent = gocpu.PercentWithContext })
	cpuPercent = fn
}

func TestPercentUsesAggregateAndClamps(t *testing.T) {
	values := [][]float64{{0}, {42.5}, {120}, {-3}}
	calls := 0
	stubPercent(t, func(_ context.Context, interval time.Duration, perCPU bool) ([]float64, error) {
		require.Zero(t, interval)
		require.False(t, perCPU)
		v := values[calls]
		calls++
		return v, nil
	})

	c, err := NewCollector(context.Background())
	require.NoError(t, err)

	got, err := c.Percent(context.Background())
	require.NoError(t, err)
	require.Equal(t, float32(42.5), got)

	got, err = c.Percent(context.Background())
	require.NoError(t, err)
	require.Equal(t, float32(100), got)

	got, err = c.Percent(context.Background())
	require.NoError(t, err)
	require.Equal(t, float32(0), got)
}

func TestPercentErrors(t *testing.T) {
	boom := errors.New("no /proc")
	stubPercent(t, func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, boom
	})
	_, err := NewCollector(context.Background())
	require.ErrorIs(t, err, boom)

	var c Collector
	_, err = c.Percent(context.Background())
	require.ErrorIs(t, err, boom)

	stubPercent(t, func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, nil
	})
	_, err = c.Percent(context.Background())
	require.ErrorContains(t, err, "no aggregate")
}
