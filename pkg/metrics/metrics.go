// Package metrics exposes monitoring state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srodi/spikewatch/pkg/types"
)

// Recorder keeps its collectors on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	samples     prometheus.Counter
	percent     *prometheus.GaugeVec
	active      *prometheus.GaugeVec
	spikes      *prometheus.CounterVec
	writeErrors prometheus.Counter
}

// NewRecorder registers the spikewatch collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spikewatch_samples_total",
			Help: "Readings taken since start.",
		}),
		percent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spikewatch_resource_percent",
			Help: "Last sampled utilization per resource.",
		}, []string{"resource"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spikewatch_spike_active",
			Help: "1 while a resource is above its threshold, 0 otherwise.",
		}, []string{"resource"}),
		spikes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spikewatch_spikes_total",
			Help: "Spikes that closed and met the minimum duration.",
		}, []string{"resource"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spikewatch_log_write_errors_total",
			Help: "Failed appends to the event log.",
		}),
	}
	r.registry.MustRegister(r.samples, r.percent, r.active, r.spikes, r.writeErrors)
	return r
}

// ObserveReading records one tick.
func (r *Recorder) ObserveReading(reading types.Reading, active []types.ResourceKind) {
	r.samples.Inc()
	r.percent.WithLabelValues(types.CPU.String()).Set(float64(reading.CPUPercent))
	r.percent.WithLabelValues(types.RAM.String()).Set(float64(reading.RAMPercent))

	isActive := make(map[types.ResourceKind]bool, len(active))
	for _, kind := range active {
		isActive[kind] = true
	}
	for _, kind := range types.Kinds {
		v := 0.0
		if isActive[kind] {
			v = 1
		}
		r.active.WithLabelValues(kind.String()).Set(v)
	}
}

// ObserveSpike counts a closed spike.
func (r *Recorder) ObserveSpike(e types.SpikeEvent) {
	r.spikes.WithLabelValues(e.Resource.String()).Inc()
}

// LogWriteFailed counts a failed event log append.
func (r *Recorder) LogWriteFailed() {
	r.writeErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
