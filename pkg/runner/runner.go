// Package runner drives the sample, detect, report and log pipeline.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/srodi/spikewatch/pkg/detector"
	"github.com/srodi/spikewatch/pkg/types"
)

// Sampler produces one reading per call.
type Sampler interface {
	Sample(ctx context.Context) (types.Reading, error)
}

// Reporter renders ticks and closed spikes and receives non-fatal errors.
type Reporter interface {
	Tick(r types.Reading, active []types.ResourceKind) error
	Spike(e types.SpikeEvent) error
	Warn(err error, msg string)
}

// Appender persists closed spikes.
type Appender interface {
	Append(e types.SpikeEvent) error
}

// Observer is notified of loop activity, e.g. to export metrics.
type Observer interface {
	ObserveReading(r types.Reading, active []types.ResourceKind)
	ObserveSpike(e types.SpikeEvent)
	LogWriteFailed()
}

// Progress is what a StopFunc sees before each tick.
type Progress struct {
	Samples uint64
	Elapsed time.Duration
}

// StopFunc reports whether the loop should end before taking another sample.
type StopFunc func(Progress) bool

// Forever never stops; the loop ends only when its context is cancelled.
func Forever() StopFunc {
	return func(Progress) bool { return false }
}

// AfterSamples stops once n readings have been processed.
func AfterSamples(n uint64) StopFunc {
	return func(p Progress) bool { return p.Samples >= n }
}

// AfterDuration stops once d has elapsed since the loop started.
func AfterDuration(d time.Duration) StopFunc {
	return func(p Progress) bool { return p.Elapsed >= d }
}

// Config wires a Runner. Appender and Observer are optional.
type Config struct {
	Interval time.Duration
	Sampler  Sampler
	Detector *detector.Detector
	Reporter Reporter
	Appender Appender
	Observer Observer
	Logger   zerolog.Logger
}

// Runner runs ticks one at a time on the calling goroutine. Only the sleep
// between ticks is interruptible, so a tick is never half applied.
type Runner struct {
	cfg   Config
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New returns a runner for cfg.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg, now: time.Now, sleep: sleepCtx}
}

// Run loops until stop returns true, ctx is cancelled, or sampling fails.
// Cancellation is a clean exit and returns nil. The interval is slept after
// each tick's work, so slow ticks drift the schedule.
func (r *Runner) Run(ctx context.Context, stop StopFunc) error {
	start := r.now()
	var progress Progress
	defer r.logOpenSpikes()

	for {
		progress.Elapsed = r.now().Sub(start)
		if stop(progress) {
			return nil
		}
		if !r.sleep(ctx, r.cfg.Interval) {
			return nil
		}
		if err := r.tick(ctx); err != nil {
			return err
		}
		progress.Samples++
	}
}

func (r *Runner) tick(ctx context.Context) error {
	reading, err := r.cfg.Sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sampling: %w", err)
	}

	events := r.cfg.Detector.Observe(reading)
	active := r.cfg.Detector.Active()
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveReading(reading, active)
	}
	if err := r.cfg.Reporter.Tick(reading, active); err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("writing tick output")
	}

	for _, ev := range events {
		if r.cfg.Observer != nil {
			r.cfg.Observer.ObserveSpike(ev)
		}
		if err := r.cfg.Reporter.Spike(ev); err != nil {
			r.cfg.Logger.Warn().Err(err).Msg("writing spike output")
		}
		if r.cfg.Appender == nil {
			continue
		}
		if err := r.cfg.Appender.Append(ev); err != nil {
			if r.cfg.Observer != nil {
				r.cfg.Observer.LogWriteFailed()
			}
			r.cfg.Reporter.Warn(err, "spike event not logged")
		}
	}
	return nil
}

// logOpenSpikes notes spikes that never closed. They are dropped, not emitted.
func (r *Runner) logOpenSpikes() {
	for _, open := range r.cfg.Detector.Open() {
		r.cfg.Logger.Info().
			Stringer("resource", open.Resource).
			Int64("ts_start", open.Start.Unix()).
			Float32("peak", open.Peak).
			Float32("threshold", open.Threshold).
			Msg("spike still open at shutdown, not recorded")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
