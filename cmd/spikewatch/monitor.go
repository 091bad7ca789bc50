package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/srodi/spikewatch/pkg/config"
	"github.com/srodi/spikewatch/pkg/detector"
	"github.com/srodi/spikewatch/pkg/eventlog"
	"github.com/srodi/spikewatch/pkg/metrics"
	"github.com/srodi/spikewatch/pkg/report"
	"github.com/srodi/spikewatch/pkg/runner"
	"github.com/srodi/spikewatch/pkg/ui"
)

func newLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Monitor continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			g, err := config.LoadGlobal(v)
			if err != nil {
				return err
			}
			rt, err := config.LoadRuntime(v)
			if err != nil {
				return err
			}
			return monitor(cmd, g, rt, runner.Forever(), true)
		},
	}
	addRuntimeFlags(cmd)
	cmd.Flags().String(config.KeyMetricsAddr, "", "serve Prometheus metrics on this address, e.g. :9105")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Monitor for a fixed number of samples or seconds",
		Long: `batch runs the same pipeline as live but stops after --samples readings or
--duration-secs seconds. The two bounds are mutually exclusive; with neither,
10 samples are taken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			g, err := config.LoadGlobal(v)
			if err != nil {
				return err
			}
			b, err := config.LoadBatch(v)
			if err != nil {
				return err
			}
			stop := runner.AfterSamples(b.Samples)
			if b.Duration > 0 {
				stop = runner.AfterDuration(b.Duration)
			}
			return monitor(cmd, g, b.Runtime, stop, false)
		},
	}
	addRuntimeFlags(cmd)
	cmd.Flags().Uint64(config.KeyDurationSecs, 0, "stop after this many seconds")
	cmd.Flags().Uint64(config.KeySamples, 0, "stop after this many samples (default 10)")
	return cmd
}

// monitor wires sampler, detector, reporter, event log and metrics into a
// runner and blocks until stop fires or the process is interrupted.
func monitor(cmd *cobra.Command, g config.Global, rt config.Runtime, stop runner.StopFunc, interactive bool) error {
	out := cmd.OutOrStdout()
	color := useColor(out, g)
	logger := newLogger(cmd.ErrOrStderr(), rt.Output, g, useColor(cmd.ErrOrStderr(), g))
	for _, w := range rt.Warnings {
		logger.Warn().Msg(w)
	}
	if rt.Thresholds.CPU == nil && rt.Thresholds.RAM == nil {
		logger.Warn().Msg("no thresholds configured, readings are reported but no spike can be detected")
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep := report.New(out, rt.Output, color, logger)

	var appender runner.Appender
	if rt.LogFile != "" {
		w, err := eventlog.OpenWriter(rt.LogFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn().Err(err).Str("path", w.Path()).Msg("closing event log")
			}
		}()
		appender = w
	}

	sampler, err := newSampler(ctx)
	if err != nil {
		return fmt.Errorf("initializing collectors: %w", err)
	}

	var (
		observer runner.Observer
		recorder *metrics.Recorder
	)
	if interactive && rt.MetricsAddr != "" {
		recorder = metrics.NewRecorder()
		observer = recorder
	}

	if interactive && color && rt.Output == report.FormatText {
		fmt.Fprintln(out, ui.Banner(true))
	}

	logEvent := logger.Info().
		Dur("interval", rt.Interval).
		Uint64("min_spike_duration_secs", rt.Thresholds.MinSpikeDuration).
		Str("log_file", rt.LogFile)
	if th := rt.Thresholds.CPU; th != nil {
		logEvent = logEvent.Float32("cpu_threshold", *th)
	}
	if th := rt.Thresholds.RAM; th != nil {
		logEvent = logEvent.Float32("ram_threshold", *th)
	}
	logEvent.Msg("monitoring started")

	r := runner.New(runner.Config{
		Interval: rt.Interval,
		Sampler:  sampler,
		Detector: detector.New(rt.Thresholds),
		Reporter: rep,
		Appender: appender,
		Observer: observer,
		Logger:   logger,
	})

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return r.Run(gctx, stop)
	})
	if recorder != nil {
		grp.Go(func() error {
			logger.Info().Str("addr", rt.MetricsAddr).Msg("serving metrics")
			return metrics.Serve(gctx, rt.MetricsAddr, recorder.Handler())
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("monitoring stopped")
	return nil
}
