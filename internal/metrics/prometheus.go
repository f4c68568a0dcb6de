// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes flow table and engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all flowcore Prometheus metrics
type Metrics struct {
	// Flow table
	FlowsCreated      prometheus.Counter
	FlowsRecycled     prometheus.Counter
	FlowsClosed       prometheus.Counter
	FlowsPruned       prometheus.Counter
	ActiveFlows       prometheus.Gauge
	PooledFlows       prometheus.Gauge
	CheckoutConflicts prometheus.Counter
	TableFull         prometheus.Counter
	InitFailures      *prometheus.CounterVec

	// Engine
	PacketsProcessed prometheus.Counter
	DecodeErrors     prometheus.Counter
	Verdicts         *prometheus.CounterVec
	HandlerEvents    *prometheus.CounterVec
	DataRejects      *prometheus.CounterVec
}

// NewMetrics creates the collectors. Nothing is registered until Register.
func NewMetrics() *Metrics {
	return &Metrics{
		FlowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_flows_created_total",
			Help: "Total number of flow records allocated fresh",
		}),
		FlowsRecycled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_flows_recycled_total",
			Help: "Total number of flow records reused from the pool",
		}),
		FlowsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_flows_closed_total",
			Help: "Total number of flows ended by their session",
		}),
		FlowsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_flows_pruned_total",
			Help: "Total number of idle flows removed on expiry",
		}),
		ActiveFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowcore_flows_active",
			Help: "Number of keys currently occupying a flow record",
		}),
		PooledFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowcore_flows_pooled",
			Help: "Number of idle flow records waiting for reuse",
		}),
		CheckoutConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_checkout_conflicts_total",
			Help: "Total number of checkouts refused because the flow was leased",
		}),
		TableFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_table_full_total",
			Help: "Total number of new flows refused at capacity",
		}),
		InitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcore_init_failures_total",
			Help: "Total number of session factory failures",
		}, []string{"pkt_type"}),

		PacketsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_packets_processed_total",
			Help: "Total number of packets run through the engine",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcore_decode_errors_total",
			Help: "Total number of frames the engine could not decode",
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcore_verdicts_total",
			Help: "Total number of packets by flow state after inspection",
		}, []string{"state"}),
		HandlerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcore_handler_events_total",
			Help: "Total number of flow data handler dispatches",
		}, []string{"event"}),
		DataRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcore_flow_data_rejects_total",
			Help: "Total number of duplicate flow data attachments refused",
		}, []string{"inspector"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FlowsCreated, m.FlowsRecycled, m.FlowsClosed, m.FlowsPruned,
		m.ActiveFlows, m.PooledFlows, m.CheckoutConflicts, m.TableFull, m.InitFailures,
		m.PacketsProcessed, m.DecodeErrors, m.Verdicts, m.HandlerEvents, m.DataRejects,
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Register registers every metric with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}
