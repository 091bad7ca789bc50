// Package config resolves spikewatch settings from flags, SPIKEWATCH_*
// environment variables, an optional YAML file and defaults, in that order.
//
// Keys are the long flag names, so `--cpu-threshold`, SPIKEWATCH_CPU_THRESHOLD
// and `cpu-threshold:` in the file all address the same setting.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/srodi/spikewatch/pkg/eventlog"
	"github.com/srodi/spikewatch/pkg/report"
	"github.com/srodi/spikewatch/pkg/types"
)

const (
	EnvPrefix = "SPIKEWATCH"
	// FileName is the config file looked up in search directories, without extension.
	FileName = "spikewatch"

	DefaultIntervalMS   = 1000
	DefaultBatchSamples = 10
)

const (
	KeyLogLevel         = "log-level"
	KeyNoColor          = "no-color"
	KeyIntervalMS       = "interval-ms"
	KeyCPUThreshold     = "cpu-threshold"
	KeyRAMThreshold     = "ram-threshold"
	KeyMinSpikeDuration = "min-spike-duration-secs"
	KeyOutput           = "output"
	KeyLogFile          = "log-file"
	KeyMetricsAddr      = "metrics-addr"
	KeyDurationSecs     = "duration-secs"
	KeySamples          = "samples"
	KeyResource         = "resource"
	KeySince            = "since"
	KeyUntil            = "until"
	KeyLimit            = "limit"
	KeyFollow           = "follow"
)

// Error is a configuration problem detected before any sampling starts.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(key, format string, args ...any) *Error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}

// New returns a viper instance with env binding and defaults applied. An
// explicit file must exist; otherwise the first spikewatch.yaml found in
// searchDirs is read, and finding none is not an error.
func New(file string, searchDirs ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, zerolog.LevelInfoValue)
	v.SetDefault(KeyIntervalMS, DefaultIntervalMS)
	v.SetDefault(KeyMinSpikeDuration, types.DefaultMinSpikeDuration)
	v.SetDefault(KeyOutput, string(report.FormatText))

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Key: "config", Err: fmt.Errorf("reading %s: %w", file, err)}
		}
		return v, nil
	}
	if len(searchDirs) == 0 {
		return v, nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, dir := range searchDirs {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, &Error{Key: "config", Err: err}
	}
	return v, nil
}

// Global holds the settings shared by every command.
type Global struct {
	LogLevel zerolog.Level
	NoColor  bool
}

// LoadGlobal reads the log level and color settings.
func LoadGlobal(v *viper.Viper) (Global, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(v.GetString(KeyLogLevel)))
	if err != nil {
		return Global{}, &Error{Key: KeyLogLevel, Err: err}
	}
	return Global{LogLevel: lvl, NoColor: v.GetBool(KeyNoColor)}, nil
}

// Runtime is the configuration of a sampling run (live or batch).
type Runtime struct {
	Interval    time.Duration
	Thresholds  types.Thresholds
	Output      report.Format
	LogFile     string
	MetricsAddr string
	// Warnings are non-fatal problems, e.g. an unknown output format that
	// fell back to text.
	Warnings []string
}

// LoadRuntime reads and validates the settings shared by live and batch.
func LoadRuntime(v *viper.Viper) (Runtime, error) {
	var rt Runtime

	ms := v.GetInt64(KeyIntervalMS)
	if ms <= 0 {
		return Runtime{}, invalid(KeyIntervalMS, "must be positive, got %d", ms)
	}
	rt.Interval = time.Duration(ms) * time.Millisecond

	minDur := v.GetInt64(KeyMinSpikeDuration)
	if minDur < 0 {
		return Runtime{}, invalid(KeyMinSpikeDuration, "must not be negative, got %d", minDur)
	}
	rt.Thresholds.MinSpikeDuration = uint64(minDur)

	var err error
	if rt.Thresholds.CPU, err = threshold(v, KeyCPUThreshold); err != nil {
		return Runtime{}, err
	}
	if rt.Thresholds.RAM, err = threshold(v, KeyRAMThreshold); err != nil {
		return Runtime{}, err
	}

	rt.Output, rt.Warnings = output(v, rt.Warnings)
	rt.LogFile = v.GetString(KeyLogFile)
	rt.MetricsAddr = v.GetString(KeyMetricsAddr)
	return rt, nil
}

// threshold returns nil when the resource is not monitored.
func threshold(v *viper.Viper, key string) (*float32, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	f := v.GetFloat64(key)
	if math.IsNaN(f) || f < 0 || f > 100 {
		return nil, invalid(key, "must be a percentage between 0 and 100, got %v", v.Get(key))
	}
	return types.Float32(float32(f)), nil
}

func output(v *viper.Viper, warnings []string) (report.Format, []string) {
	raw := v.GetString(KeyOutput)
	f, err := report.ParseFormat(raw)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("unknown output %q, using text", raw))
	}
	return f, warnings
}

// Batch is a bounded run. Exactly one of Samples and Duration is non-zero.
type Batch struct {
	Runtime
	Samples  uint64
	Duration time.Duration
}

// LoadBatch reads a bounded run. With neither bound set it takes DefaultBatchSamples samples.
func LoadBatch(v *viper.Viper) (Batch, error) {
	rt, err := LoadRuntime(v)
	if err != nil {
		return Batch{}, err
	}
	b := Batch{Runtime: rt}

	hasDuration, hasSamples := v.IsSet(KeyDurationSecs), v.IsSet(KeySamples)
	switch {
	case hasDuration && hasSamples:
		return Batch{}, invalid(KeyDurationSecs, "cannot be combined with --%s", KeySamples)
	case hasDuration:
		secs := v.GetInt64(KeyDurationSecs)
		if secs < 0 {
			return Batch{}, invalid(KeyDurationSecs, "must not be negative, got %d", secs)
		}
		b.Duration = time.Duration(secs) * time.Second
	case hasSamples:
		n := v.GetInt64(KeySamples)
		if n < 0 {
			return Batch{}, invalid(KeySamples, "must not be negative, got %d", n)
		}
		b.Samples = uint64(n)
	default:
		b.Samples = DefaultBatchSamples
	}
	return b, nil
}

// Logs configures reading back an event log.
type Logs struct {
	Path     string
	Filter   eventlog.Filter
	Output   report.Format
	Follow   bool
	Warnings []string
}

// LoadLogs reads a logs query. An unknown resource filter is dropped with a warning.
func LoadLogs(v *viper.Viper) (Logs, error) {
	l := Logs{Path: v.GetString(KeyLogFile), Follow: v.GetBool(KeyFollow)}
	if l.Path == "" {
		return Logs{}, invalid(KeyLogFile, "required")
	}

	if raw := v.GetString(KeyResource); raw != "" {
		kind, err := types.ParseResourceKind(raw)
		if err != nil {
			l.Warnings = append(l.Warnings, fmt.Sprintf("ignoring resource filter: %v", err))
		} else {
			l.Filter.Resource = &kind
		}
	}

	var err error
	if l.Filter.Since, err = epoch(v, KeySince); err != nil {
		return Logs{}, err
	}
	if l.Filter.Until, err = epoch(v, KeyUntil); err != nil {
		return Logs{}, err
	}
	if v.IsSet(KeyLimit) {
		n := v.GetInt(KeyLimit)
		if n < 0 {
			return Logs{}, invalid(KeyLimit, "must not be negative, got %d", n)
		}
		l.Filter.Limit = &n
	}

	l.Output, l.Warnings = output(v, l.Warnings)
	return l, nil
}

func epoch(v *viper.Viper, key string) (*uint64, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	n := v.GetInt64(key)
	if n < 0 {
		return nil, invalid(key, "must be epoch seconds, got %d", n)
	}
	u := uint64(n)
	return &u, nil
}

// Dump writes every effective setting as YAML.
func Dump(v *viper.Viper, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v.AllSettings()); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return enc.Close()
}
