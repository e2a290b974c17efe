// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Optional Prometheus instrumentation for a coordinator. A coordinator
// built without metrics pays no metrics cost; newCoordinatorMetrics(reg, role)
// registers the counters and gauges with reg, and the unexported withMetrics
// option attaches them to a coordinator. No exported constructor in this
// package passes withMetrics, so clients and servers run without metrics.

package mcp

import "github.com/prometheus/client_golang/prometheus"

// coordinatorMetrics holds the counters and gauges one Coordinator reports.
// A nil *coordinatorMetrics (the default) makes every recording method a
// no-op.
type coordinatorMetrics struct {
	requestsSent     prometheus.Counter
	requestsReceived prometheus.Counter
	responsesSent    prometheus.Counter
	requestsTimedOut prometheus.Counter
	inFlightInbound  prometheus.Gauge
	inFlightOutbound prometheus.Gauge
}

// newCoordinatorMetrics registers a fresh set of collectors, labeled with
// role ("client" or "server"), against reg.
func newCoordinatorMetrics(reg prometheus.Registerer, role string) *coordinatorMetrics {
	labels := prometheus.Labels{"role": role}
	m := &coordinatorMetrics{
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_coordinator_requests_sent_total",
			Help:        "Outbound MCP requests sent.",
			ConstLabels: labels,
		}),
		requestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_coordinator_requests_received_total",
			Help:        "Inbound MCP requests received.",
			ConstLabels: labels,
		}),
		responsesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_coordinator_responses_sent_total",
			Help:        "Responses sent for inbound requests.",
			ConstLabels: labels,
		}),
		requestsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcp_coordinator_requests_timed_out_total",
			Help:        "Outbound requests that hit their timeout before a reply.",
			ConstLabels: labels,
		}),
		inFlightInbound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mcp_coordinator_inbound_in_flight",
			Help:        "Inbound request handler tasks currently running.",
			ConstLabels: labels,
		}),
		inFlightOutbound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mcp_coordinator_outbound_in_flight",
			Help:        "Outbound requests currently awaiting a reply.",
			ConstLabels: labels,
		}),
	}
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			// A collector with the same name is already registered (e.g. a
			// second coordinator sharing a registry); fall back to its
			// existing instance so recordings still land somewhere.
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector
			}
		}
		return c
	}
	m.requestsSent = register(m.requestsSent).(prometheus.Counter)
	m.requestsReceived = register(m.requestsReceived).(prometheus.Counter)
	m.responsesSent = register(m.responsesSent).(prometheus.Counter)
	m.requestsTimedOut = register(m.requestsTimedOut).(prometheus.Counter)
	m.inFlightInbound = register(m.inFlightInbound).(prometheus.Gauge)
	m.inFlightOutbound = register(m.inFlightOutbound).(prometheus.Gauge)
	return m
}

func (m *coordinatorMetrics) sentRequest() {
	if m == nil {
		return
	}
	m.requestsSent.Inc()
	m.inFlightOutbound.Inc()
}

func (m *coordinatorMetrics) finishedOutbound() {
	if m == nil {
		return
	}
	m.inFlightOutbound.Dec()
}

func (m *coordinatorMetrics) timedOut() {
	if m == nil {
		return
	}
	m.requestsTimedOut.Inc()
}

func (m *coordinatorMetrics) receivedRequest() {
	if m == nil {
		return
	}
	m.requestsReceived.Inc()
	m.inFlightInbound.Inc()
}

func (m *coordinatorMetrics) sentResponse() {
	if m == nil {
		return
	}
	m.responsesSent.Inc()
	m.inFlightInbound.Dec()
}
