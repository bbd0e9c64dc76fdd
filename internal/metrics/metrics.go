// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpvbridge_lines_read_total",
		Help: "Raw records read from the sensor feed.",
	})
	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpvbridge_parse_failures_total",
		Help: "Records dropped because they could not be decoded.",
	})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpvbridge_events_published_total",
		Help: "Enriched events handed to the broadcast endpoint.",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpvbridge_reconnects_total",
		Help: "Sensor transport reconnect attempts.",
	})
	ContactLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpvbridge_contact_events_total",
		Help: "Contact-lock state changes reported by the sensor.",
	}, []string{"state"})
)

var (
	subscriberGaugeOnce sync.Once
	droppedCounterOnce  sync.Once
)

// RegisterSubscriberGauge exposes the live subscriber count. Safe to call
// more than once; only the first registration sticks.
func RegisterSubscriberGauge(count func() int) {
	subscriberGaugeOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fpvbridge_subscribers",
			Help: "Currently connected broadcast subscribers.",
		}, func() float64 { return float64(count()) })
	})
}

// RegisterDroppedCounter exposes the broadcast pool's running drop count.
// Safe to call more than once; only the first registration sticks.
func RegisterDroppedCounter(dropped func() uint64) {
	droppedCounterOnce.Do(func() {
		promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "fpvbridge_dropped_messages_total",
			Help: "Messages dropped because a subscriber buffer was full.",
		}, func() float64 { return float64(dropped()) })
	})
}
