// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics exports NIOS exchange and LMS6002D tuning statistics to
// Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/devices/lms6002d"
	"periph.io/x/bladerf/nios"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics implements nios.Observer and lms6002d.TuneObserver.
type Metrics struct {
	Exchanges *prometheus.CounterVec   // labels: class, target, op, result
	Latency   *prometheus.HistogramVec // labels: class
	Tunes     *prometheus.CounterVec   // labels: module, result
	VCOCAP    *prometheus.GaugeVec     // labels: module
}

// New registers and returns the metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bladerf_nios_exchanges_total",
			Help: "NIOS packets exchanged with the FPGA.",
		}, []string{"class", "target", "op", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bladerf_nios_exchange_seconds",
			Help:    "NIOS request to response latency.",
			Buckets: prometheus.ExponentialBuckets(50e-6, 2, 12),
		}, []string{"class"}),
		Tunes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bladerf_tune_total",
			Help: "LMS6002D PLL tunings.",
		}, []string{"module", "result"}),
		VCOCAP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bladerf_vcocap",
			Help: "Last VCOCAP code selected by a successful tuning.",
		}, []string{"module"}),
	}
	reg.MustRegister(m.Exchanges, m.Latency, m.Tunes, m.VCOCAP)
	return m
}

// ObserveExchange implements nios.Observer.
func (m *Metrics) ObserveExchange(c nios.Class, target uint8, write bool, d time.Duration, err error) {
	op := "read"
	if write {
		op = "write"
	}
	m.Exchanges.WithLabelValues(c.String(), strconv.Itoa(int(target)), op, result(err)).Inc()
	m.Latency.WithLabelValues(c.String()).Observe(d.Seconds())
}

// ObserveTune implements lms6002d.TuneObserver.
func (m *Metrics) ObserveTune(mod bladerf.Module, vcocap uint8, err error) {
	m.Tunes.WithLabelValues(mod.String(), result(err)).Inc()
	if err == nil {
		m.VCOCAP.WithLabelValues(mod.String()).Set(float64(vcocap))
	}
}

// result maps an error to a bounded label value.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, bladerf.ErrTransport):
		return "transport"
	case errors.Is(err, bladerf.ErrProtocol):
		return "protocol"
	case errors.Is(err, bladerf.ErrOperationFailed):
		return "failed"
	case errors.Is(err, bladerf.ErrConvergence):
		return "convergence"
	case errors.Is(err, bladerf.ErrRange):
		return "range"
	default:
		return "error"
	}
}

var _ nios.Observer = &Metrics{}
var _ lms6002d.TuneObserver = &Metrics{}
