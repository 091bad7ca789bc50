package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srodi/spikewatch/pkg/config"
	"github.com/srodi/spikewatch/pkg/eventlog"
	"github.com/srodi/spikewatch/pkg/report"
	"github.com/srodi/spikewatch/pkg/types"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query a spike event log",
		Long: `logs prints the events of a log written by live or batch, oldest first.
Malformed lines are skipped with a warning. With --follow, events appended
after the existing ones are printed as they arrive.`,
		Args: cobra.NoArgs,
		RunE: runLogs,
	}
	fs := cmd.Flags()
	fs.String(config.KeyLogFile, "", "event log to read (required)")
	fs.String(config.KeyResource, "", "only show events for cpu, ram or io")
	fs.Uint64(config.KeySince, 0, "only show events starting at or after this epoch second")
	fs.Uint64(config.KeyUntil, 0, "only show events starting at or before this epoch second")
	fs.Int(config.KeyLimit, 0, "print at most this many events")
	fs.String(config.KeyOutput, string(report.FormatText), "output format: text or json")
	fs.Bool(config.KeyFollow, false, "keep printing events as they are appended")
	return cmd
}

func runLogs(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	g, err := config.LoadGlobal(v)
	if err != nil {
		return err
	}
	l, err := config.LoadLogs(v)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), l.Output, g, useColor(cmd.ErrOrStderr(), g))
	for _, w := range l.Warnings {
		logger.Warn().Msg(w)
	}
	rep := report.New(cmd.OutOrStdout(), l.Output, useColor(cmd.OutOrStdout(), g), logger)
	warn := func(pe *eventlog.ParseError) {
		rep.Warn(pe, "skipping malformed log line")
	}

	if !l.Follow {
		events, err := eventlog.Query(eventlog.NewReader(l.Path, warn).Events(), l.Filter)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := rep.Record(e); err != nil {
				return err
			}
		}
		return nil
	}

	limit := -1
	if l.Filter.Limit != nil {
		limit = *l.Filter.Limit
	}
	if limit == 0 {
		return nil
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var recordErr error
	printed := 0
	err = eventlog.Follow(ctx, l.Path, warn, func(e types.SpikeEvent) bool {
		if !l.Filter.Match(e) {
			return true
		}
		if recordErr = rep.Record(e); recordErr != nil {
			return false
		}
		printed++
		return limit < 0 || printed < limit
	})
	if err != nil {
		return err
	}
	return recordErr
}
