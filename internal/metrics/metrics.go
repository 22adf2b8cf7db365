// Package metrics holds the Prometheus collectors shared by the discovery
// and allocation packages. Collectors register with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rendercast"

var (
	PortsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ports",
		Name:      "allocated_total",
		Help:      "Total number of ports handed out by the allocator.",
	})

	PortsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ports",
		Name:      "locked_total",
		Help:      "Total number of explicit port requests rejected by the lock window.",
	})

	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "descriptor",
		Name:      "fetch_attempts_total",
		Help:      "Device description fetch attempts, by outcome.",
	}, []string{"outcome"})

	DevicesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "devices",
		Name:      "delivered_total",
		Help:      "Devices surfaced to subscribers, by reason (new or upgrade).",
	}, []string{"reason"})

	DevicesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "devices",
		Name:      "known",
		Help:      "Number of entries in the device registry.",
	})
)

// Fetch outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeNoDevice = "no_device"
)

func init() {
	// Make the labelled series visible at zero.
	for _, o := range []string{OutcomeSuccess, OutcomeNotFound, OutcomeError, OutcomeNoDevice} {
		FetchAttempts.WithLabelValues(o)
	}
	DevicesDelivered.WithLabelValues("new")
	DevicesDelivered.WithLabelValues("upgrade")
}
