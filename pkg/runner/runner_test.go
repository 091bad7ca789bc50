package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/spikewatch/pkg/collector"
	"github.com/srodi/spikewatch/pkg/detector"
	"github.com/srodi/spikewatch/pkg/types"
)

var epoch = time.Unix(1_731_853_000, 0)

// scriptedSampler returns one cpu value per call, one second apart.
type scriptedSampler struct {
	cpu   []float32
	calls int
	err   error
}

func (s *scriptedSampler) Sample(context.Context) (types.Reading, error) {
	if s.err != nil {
		return types.Reading{}, s.err
	}
	i := s.calls
	s.calls++
	v := s.cpu[i%len(s.cpu)]
	return types.Reading{Timestamp: epoch.Add(time.Duration(i) * time.Second), CPUPercent: v, RAMPercent: 10}, nil
}

type recordingReporter struct {
	ticks  []types.Reading
	active [][]types.ResourceKind
	spikes []types.SpikeEvent
	warns  []error
}

func (r *recordingReporter) Tick(reading types.Reading, active []types.ResourceKind) error {
	r.ticks = append(r.ticks, reading)
	r.active = append(r.active, active)
	return nil
}

func (r *recordingReporter) Spike(e types.SpikeEvent) error {
	r.spikes = append(r.spikes, e)
	return nil
}

func (r *recordingReporter) Warn(err error, _ string) { r.warns = append(r.warns, err) }

type memAppender struct {
	events []types.SpikeEvent
	err    error
}

func (a *memAppender) Append(e types.SpikeEvent) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

type countingObserver struct {
	readings, spikes, writeFailures int
}

func (o *countingObserver) ObserveReading(types.Reading, []types.ResourceKind) { o.readings++ }
func (o *countingObserver) ObserveSpike(types.SpikeEvent)                      { o.spikes++ }
func (o *countingObserver) LogWriteFailed()                                    { o.writeFailures++ }

type harness struct {
	sampler  *scriptedSampler
	reporter *recordingReporter
	appender *memAppender
	observer *countingObserver
	logs     *bytes.Buffer
	runner   *Runner
}

func newHarness(cpu []float32, minDuration uint64) *harness {
	h := &harness{
		sampler:  &scriptedSampler{cpu: cpu},
		reporter: &recordingReporter{},
		appender: &memAppender{},
		observer: &countingObserver{},
		logs:     &bytes.Buffer{},
	}
	h.runner = New(Config{
		Interval: time.Second,
		Sampler:  h.sampler,
		Detector: detector.New(types.Thresholds{CPU: types.Float32(80), MinSpikeDuration: minDuration}),
		Reporter: h.reporter,
		Appender: h.appender,
		Observer: h.observer,
		Logger:   zerolog.New(h.logs),
	})
	// virtual clock: every sleep advances time by the interval
	clock := epoch
	h.runner.now = func() time.Time { return clock }
	h.runner.sleep = func(ctx context.Context, d time.Duration) bool {
		if ctx.Err() != nil {
			return false
		}
		clock = clock.Add(d)
		return true
	}
	return h
}

func TestRunEmitsClosedSpike(t *testing.T) {
	h := newHarness([]float32{50, 80, 95, 92, 60}, 2)

	require.NoError(t, h.runner.Run(context.Background(), AfterSamples(5)))

	require.Len(t, h.reporter.ticks, 5)
	want := types.SpikeEvent{
		Resource:     types.CPU,
		TsStart:      1_731_853_002,
		TsEnd:        1_731_853_004,
		DurationSecs: 2,
		Peak:         95,
		Threshold:    80,
		Top:          []string{},
	}
	assert.Equal(t, []types.SpikeEvent{want}, h.reporter.spikes)
	assert.Equal(t, []types.SpikeEvent{want}, h.appender.events)
	assert.Equal(t, 5, h.observer.readings)
	assert.Equal(t, 1, h.observer.spikes)
	assert.Empty(t, h.reporter.warns)
}

func TestRunMarksActiveSpikeOnTick(t *testing.T) {
	h := newHarness([]float32{50, 95, 60}, 1)

	require.NoError(t, h.runner.Run(context.Background(), AfterSamples(3)))

	assert.Empty(t, h.reporter.active[0])
	assert.Equal(t, []types.ResourceKind{types.CPU}, h.reporter.active[1])
	assert.Empty(t, h.reporter.active[2])
}

func TestRunShortSpikeNotEmitted(t *testing.T) {
	h := newHarness([]float32{50, 80, 95, 92, 60}, 3)

	require.NoError(t, h.runner.Run(context.Background(), AfterSamples(5)))

	assert.Empty(t, h.reporter.spikes)
	assert.Empty(t, h.appender.events)
}

func TestRunAppendFailureIsNotFatal(t *testing.T) {
	h := newHarness([]float32{95, 95, 50, 95, 95, 50}, 1)
	h.appender.err = errors.New("disk full")

	require.NoError(t, h.runner.Run(context.Background(), AfterSamples(6)))

	assert.Len(t, h.reporter.ticks, 6)
	assert.Len(t, h.reporter.spikes, 2)
	assert.Len(t, h.reporter.warns, 2)
	assert.Equal(t, 2, h.observer.writeFailures)
}

func TestRunAcquisitionErrorIsFatal(t *testing.T) {
	h := newHarness([]float32{50}, 1)
	h.sampler.err = &collector.AcquisitionError{Metric: "cpu", Err: errors.New("no /proc/stat")}

	err := h.runner.Run(context.Background(), Forever())

	var acq *collector.AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Equal(t, "cpu", acq.Metric)
	assert.Empty(t, h.reporter.ticks)
}

func TestRunAfterDuration(t *testing.T) {
	h := newHarness([]float32{50}, 1)

	require.NoError(t, h.runner.Run(context.Background(), AfterDuration(3*time.Second)))

	assert.Len(t, h.reporter.ticks, 3)
}

func TestRunCancelledBeforeFirstTick(t *testing.T) {
	h := newHarness([]float32{50}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.runner.Run(ctx, Forever()))

	assert.Empty(t, h.reporter.ticks)
	assert.Zero(t, h.sampler.calls)
}

func TestRunCancelDuringSleepFinishesCleanly(t *testing.T) {
	h := newHarness([]float32{95}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	sleep := h.runner.sleep
	h.runner.sleep = func(ctx context.Context, d time.Duration) bool {
		if h.sampler.calls == 2 {
			cancel()
		}
		return sleep(ctx, d)
	}

	require.NoError(t, h.runner.Run(ctx, Forever()))

	assert.Len(t, h.reporter.ticks, 2)
	assert.Empty(t, h.reporter.spikes, "open spike must not be emitted on shutdown")
	assert.Contains(t, h.logs.String(), "spike still open at shutdown")
	assert.Contains(t, h.logs.String(), `"resource":"cpu"`)
}

func TestRunWithoutAppenderOrObserver(t *testing.T) {
	rep := &recordingReporter{}
	r := New(Config{
		Interval: time.Millisecond,
		Sampler:  &scriptedSampler{cpu: []float32{95, 95, 10}},
		Detector: detector.New(types.Thresholds{CPU: types.Float32(80), MinSpikeDuration: 1}),
		Reporter: rep,
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, r.Run(context.Background(), AfterSamples(3)))

	assert.Len(t, rep.spikes, 1)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}

func TestStopFuncs(t *testing.T) {
	assert.False(t, Forever()(Progress{Samples: 1 << 40, Elapsed: time.Hour}))
	assert.False(t, AfterSamples(2)(Progress{Samples: 1}))
	assert.True(t, AfterSamples(2)(Progress{Samples: 2}))
	assert.False(t, AfterDuration(time.Second)(Progress{Elapsed: 999 * time.Millisecond}))
	assert.True(t, AfterDuration(time.Second)(Progress{Elapsed: time.Second}))
}
