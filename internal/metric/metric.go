// Package metric exposes prometheus counters for the command pipeline,
// packaged as service hooks.
package metric

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tablekv/internal/logger"
	"tablekv/internal/types"
)

// Metrics bundles the pipeline counters.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Responses *prometheus.CounterVec
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tablekv_requests_total",
			Help: "Requests received, by command variant.",
		}, []string{"command"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tablekv_responses_total",
			Help: "Responses produced by the pipeline, by status code.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Requests, m.Responses)
	return m
}

// ReceivedHook counts requests; register as an OnReceived hook.
func (m *Metrics) ReceivedHook() func(*types.CommandRequest) {
	return func(req *types.CommandRequest) {
		m.Requests.WithLabelValues(req.CommandName()).Inc()
	}
}

// SentHook counts responses; register as an OnAfterSend hook.
func (m *Metrics) SentHook() func(*types.CommandResponse) {
	return func(resp *types.CommandResponse) {
		m.Responses.WithLabelValues(strconv.FormatUint(uint64(resp.Status), 10)).Inc()
	}
}

// Serve exposes /metrics on addr until the process exits.
func Serve(addr string, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed: %v", err)
	}
}
