package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/oteladapters"
	"github.com/AntonStoeckl/library-lending-simulation/promadapters"
)

const (
	keyMetricsAddr = "metrics-addr"
	keyTelemetry   = "telemetry"

	instrumentationName = "librarysim"
	metricsNamespace    = "librarysim"
	readHeaderTimeout   = 5 * time.Second
)

// observability holds the optional metrics endpoint and in-process OpenTelemetry providers of one run.
type observability struct {
	logger    *slog.Logger
	options   []circulation.Option
	inProcess *oteladapters.InProcessTelemetry
	server    *http.Server
}

func (a *app) newObservability(logger *slog.Logger) (*observability, error) {
	o := &observability{logger: logger}
	var metrics []circulation.MetricsCollector

	if addr := a.v.GetString(keyMetricsAddr); addr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		if err := o.serveMetrics(addr, registry); err != nil {
			return nil, err
		}

		metrics = append(metrics, promadapters.NewMetricsCollector(registry, promadapters.WithNamespace(metricsNamespace)))
	}

	if a.v.GetBool(keyTelemetry) {
		o.inProcess = oteladapters.NewInProcessTelemetry(instrumentationName)
		metrics = append(metrics, o.inProcess.Metrics())
		o.options = append(o.options,
			circulation.WithTracing(o.inProcess.Tracing()),
			circulation.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())),
		)
	}

	switch len(metrics) {
	case 0:
	case 1:
		o.options = append(o.options, circulation.WithMetrics(metrics[0]))
	default:
		o.options = append(o.options, circulation.WithMetrics(metricsFanout(metrics)))
	}

	return o, nil
}

func (o *observability) serveMetrics(addr string, registry *prometheus.Registry) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	o.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if serveErr := o.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			o.logger.Error("metrics endpoint failed", "error", serveErr.Error())
		}
	}()

	o.logger.Info("serving metrics", "addr", listener.Addr().String())

	return nil
}

// writeDigest prints what the in-process OpenTelemetry providers recorded, if enabled.
func (o *observability) writeDigest(ctx context.Context, w io.Writer) error {
	if o.inProcess == nil {
		return nil
	}

	digest, err := o.inProcess.Digest(ctx)
	if err != nil {
		return err
	}

	_, err = digest.WriteTo(w)

	return err
}

func (o *observability) shutdown(ctx context.Context) error {
	var err error

	if o.server != nil {
		err = errors.Join(err, o.server.Shutdown(ctx))
	}

	if o.inProcess != nil {
		err = errors.Join(err, o.inProcess.Shutdown(ctx))
	}

	return err
}

// metricsFanout records to several collectors.
type metricsFanout []circulation.MetricsCollector

func (f metricsFanout) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	for _, collector := range f {
		collector.RecordDuration(metric, duration, labels)
	}
}

func (f metricsFanout) IncrementCounter(metric string, labels map[string]string) {
	for _, collector := range f {
		collector.IncrementCounter(metric, labels)
	}
}

func (f metricsFanout) RecordValue(metric string, value float64, labels map[string]string) {
	for _, collector := range f {
		collector.RecordValue(metric, value, labels)
	}
}
