/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the worker engine's operational counters over
// Prometheus, the flush step spec.md §5's shutdown ordering names last.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultDurationBuckets mirrors the bucket layout the teacher's
// prometheus package defaults to for request-duration histograms.
var DefaultDurationBuckets = []float64{0.1, 0.3, 1.2, 5, 10}

// Registry holds every collector one worker engine reports, registered
// against its own prometheus.Registry rather than the global default so
// multiple engines in one process never collide.
type Registry struct {
	reg *prometheus.Registry

	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	connectionsActive    prometheus.Gauge
	backpressureRejected prometheus.Counter
	websocketUpgrades    prometheus.Counter
	staticFilesServed    prometheus.Counter
}

// New builds a Registry with every collector namespaced under namespace
// (e.g. "aerohttp"), registering them immediately.
func New(namespace string) (*Registry, error) {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests dispatched to a handler.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds.",
			Buckets:   DefaultDurationBuckets,
		}, []string{"method"}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently being served.",
		}),
		backpressureRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_rejected_total",
			Help:      "Connections refused because the backpressure permit pool was exhausted.",
		}),
		websocketUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_upgrades_total",
			Help:      "WebSocket upgrades accepted.",
		}),
		staticFilesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "static_files_served_total",
			Help:      "Requests served directly from the static-file short-circuit.",
		}),
	}

	collectors := []prometheus.Collector{
		r.requestsTotal, r.requestDuration, r.connectionsActive,
		r.backpressureRejected, r.websocketUpgrades, r.staticFilesServed,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, ErrorRegisterFailed.Error(err)
		}
	}

	return r, nil
}

// Handler exposes the registry's collectors in the Prometheus exposition
// format, mountable on any net/http server (e.g. an admin side-channel
// worker.Worker separate from the data-plane ones).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed dispatch.
func (r *Registry) ObserveRequest(method string, status int, d time.Duration) {
	r.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ConnectionOpened increments the active-connections gauge.
func (r *Registry) ConnectionOpened() {
	r.connectionsActive.Inc()
}

// ConnectionClosed decrements the active-connections gauge.
func (r *Registry) ConnectionClosed() {
	r.connectionsActive.Dec()
}

// BackpressureRejected records one connection refused for lack of a
// permit.
func (r *Registry) BackpressureRejected() {
	r.backpressureRejected.Inc()
}

// WebSocketUpgraded records one accepted WebSocket upgrade.
func (r *Registry) WebSocketUpgraded() {
	r.websocketUpgrades.Inc()
}

// StaticFileServed records one request resolved by the static-file
// short-circuit.
func (r *Registry) StaticFileServed() {
	r.staticFilesServed.Inc()
}
