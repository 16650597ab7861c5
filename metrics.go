package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics counts what happened to events, acquisitions and invocations.
type metrics struct {
	events       *prometheus.CounterVec
	acquisitions *prometheus.CounterVec
	invocations  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stereowaker_events_total",
				Help: "Connection events seen, by kind and how they were handled",
			},
			[]string{"kind", "result"},
		),
		acquisitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stereowaker_acquisitions_total",
				Help: "Profile handle acquisitions, by result",
			},
			[]string{"result"},
		),
		invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stereowaker_invocations_total",
				Help: "Follower operations, by action and result",
			},
			[]string{"action", "result"},
		),
	}
}

func (m *metrics) event(kind EventKind, result string) {
	label := "unknown"
	if kind == EventConnected || kind == EventDisconnected {
		label = kind.String()
	}
	m.events.WithLabelValues(label, result).Inc()
}

func (m *metrics) acquisition(result string) {
	m.acquisitions.WithLabelValues(result).Inc()
}

func (m *metrics) invocation(action Action, result string) {
	m.invocations.WithLabelValues(action.String(), result).Inc()
}

// serveMetrics exposes the registry over HTTP until the server is closed.
func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorf("metrics server: %v", err)
		}
	}()
	infof("serving metrics on %s", addr)
	return srv
}
