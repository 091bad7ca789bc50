package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/srodi/spikewatch/pkg/collector"
	"github.com/srodi/spikewatch/pkg/config"
	"github.com/srodi/spikewatch/pkg/report"
	"github.com/srodi/spikewatch/pkg/runner"
	"github.com/srodi/spikewatch/pkg/types"
)

const flagConfig = "config"

// configSearchDirs lists where spikewatch.yaml is looked up when --config is not given.
var configSearchDirs = func() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "spikewatch")}
}

// newSampler is replaced in tests so commands run without touching the host.
var newSampler = func(ctx context.Context) (runner.Sampler, error) {
	return collector.NewSampler(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spikewatch",
		Short: "Detect, report and record sustained CPU and RAM spikes",
		Long: `spikewatch samples host CPU and RAM utilization at a fixed interval and
reports every period during which a resource stayed above its threshold for
at least the minimum spike duration. Closed spikes can be appended to a
JSON lines log and queried later with "spikewatch logs".`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(flagConfig, "", "YAML config file (default: <user config dir>/spikewatch/spikewatch.yaml)")
	pf.String(config.KeyLogLevel, "info", "log level: trace, debug, info, warn or error")
	pf.Bool(config.KeyNoColor, false, "disable colored output")

	root.AddCommand(newLiveCmd(), newBatchCmd(), newLogsCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "spikewatch %s\n", Version)
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
		},
	}
}

// addRuntimeFlags registers the flags shared by live and batch.
func addRuntimeFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Int64(config.KeyIntervalMS, config.DefaultIntervalMS, "sampling interval in milliseconds")
	fs.Float64(config.KeyCPUThreshold, 0, "CPU spike threshold in percent (unset: CPU is not monitored)")
	fs.Float64(config.KeyRAMThreshold, 0, "RAM spike threshold in percent (unset: RAM is not monitored)")
	fs.Uint64(config.KeyMinSpikeDuration, types.DefaultMinSpikeDuration, "minimum seconds above threshold before a spike is reported")
	fs.String(config.KeyOutput, string(report.FormatText), "output format: text or json")
	fs.String(config.KeyLogFile, "", "append closed spikes to this JSON lines file")
}

// loadViper layers the command's flags over env, config file and defaults.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	file, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	v, err := config.New(file, configSearchDirs()...)
	if err != nil {
		return nil, err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case flagConfig, "help", "version":
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("binding --%s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return v, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// useColor is true only for a terminal and only when --no-color is not set.
func useColor(w io.Writer, g config.Global) bool {
	if g.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newLogger logs to w, which is stderr outside of tests. JSON output gets JSON
// logs so both streams stay machine readable.
func newLogger(w io.Writer, format report.Format, g config.Global, color bool) zerolog.Logger {
	var logger zerolog.Logger
	if format == report.FormatJSON {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: !color, TimeFormat: time.TimeOnly})
	}
	return logger.Level(g.LogLevel).With().Timestamp().Logger()
}
