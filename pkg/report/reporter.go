// Package report renders readings and spike events for people (text) and
// for programs (JSON lines).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"

	"github.com/srodi/spikewatch/pkg/types"
)

// Format selects how the reporter renders output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	}
	return FormatText, fmt.Errorf("unknown output format %q (want text or json)", s)
}

// tickLine is the JSON record printed once per sample. Active is never omitted
// so every tick line has the same fields.
type tickLine struct {
	Ts     int64                `json:"ts"`
	CPU    float32              `json:"cpu"`
	RAM    float32              `json:"ram"`
	Active []types.ResourceKind `json:"active"`
}

// Reporter writes per-tick status and spike notifications to out and
// surfaces non-fatal errors through its logger. It keeps no detection state.
type Reporter struct {
	out    io.Writer
	format Format
	log    zerolog.Logger

	timestamp lipgloss.Style
	labels    map[types.ResourceKind]lipgloss.Style
	alert     lipgloss.Style
}

// New builds a reporter. When color is false no escape sequences are emitted.
func New(out io.Writer, format Format, color bool, logger zerolog.Logger) *Reporter {
	renderer := lipgloss.NewRenderer(out)
	if color {
		renderer.SetColorProfile(termenv.ANSI256)
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &Reporter{
		out:       out,
		format:    format,
		log:       logger,
		timestamp: renderer.NewStyle().Faint(true),
		labels: map[types.ResourceKind]lipgloss.Style{
			types.CPU: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
			types.RAM: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("121")),
			types.IO:  renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("177")),
		},
		alert: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// Tick prints the current reading. Resources listed in active are marked as spiking.
func (r *Reporter) Tick(reading types.Reading, active []types.ResourceKind) error {
	if r.format == FormatJSON {
		if active == nil {
			active = []types.ResourceKind{}
		}
		return r.writeJSON(tickLine{
			Ts:     reading.Timestamp.Unix(),
			CPU:    round1(reading.CPUPercent),
			RAM:    round1(reading.RAMPercent),
			Active: active,
		})
	}

	isActive := make(map[types.ResourceKind]bool, len(active))
	for _, kind := range active {
		isActive[kind] = true
	}
	parts := make([]string, 0, 2)
	for _, kind := range []types.ResourceKind{types.CPU, types.RAM} {
		value, _ := reading.Value(kind)
		if isActive[kind] {
			parts = append(parts, r.alert.Render(fmt.Sprintf("%s: %.1f%s (spike)", kind.Label(), value, kind.Unit())))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %.1f%s", r.labels[kind].Render(kind.Label()), value, kind.Unit()))
	}
	_, err := fmt.Fprintf(r.out, "%s %s\n",
		r.timestamp.Render(fmt.Sprintf("[%d]", reading.Timestamp.Unix())),
		strings.Join(parts, " | "))
	return err
}

// Spike announces a spike that just closed.
func (r *Reporter) Spike(e types.SpikeEvent) error {
	if r.format == FormatJSON {
		return r.writeJSON(e)
	}
	_, err := fmt.Fprintln(r.out, r.alert.Render(">>> "+describe(e)))
	return err
}

// Record prints an event read back from the log.
func (r *Reporter) Record(e types.SpikeEvent) error {
	if r.format == FormatJSON {
		return r.writeJSON(e)
	}
	_, err := fmt.Fprintf(r.out, "%s %s\n", r.labels[e.Resource].Render("[LOG]"), describe(e))
	return err
}

// Warn reports a non-fatal error on the reporter's error channel.
func (r *Reporter) Warn(err error, msg string) {
	r.log.Warn().Err(err).Msg(msg)
}

func (r *Reporter) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = r.out.Write(b)
	return err
}

func describe(e types.SpikeEvent) string {
	unit := e.Resource.Unit()
	return fmt.Sprintf("%s spike: start=%d end=%d duration=%ds peak=%.2f%s (threshold=%.2f%s)",
		e.Resource.Label(), e.TsStart, e.TsEnd, e.DurationSecs, e.Peak, unit, e.Threshold, unit)
}

func round1(v float32) float32 {
	return float32(int64(v*10+0.5)) / 10
}
