package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_queued_total",
		Help: "Events accepted for delivery.",
	}, []string{"target"})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_delivered_total",
		Help: "Events delivered to the target.",
	}, []string{"target"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_dropped_total",
		Help: "Events dropped by the fallback, by reason.",
	}, []string{"target", "reason"})

	breakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_breaker_opens_total",
		Help: "Times the circuit breaker opened for a target.",
	}, []string{"target"})
)
