package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for the scheduling core:
// backend calls, wizard slot fetches and bookings, calendar placement and
// push events.
type SchedulingMetrics struct {
	backendLatency *prometheus.HistogramVec
	slotFetches    *prometheus.CounterVec
	bookings       *prometheus.CounterVec
	placementDrops *prometheus.CounterVec
	pushEvents     *prometheus.CounterVec
	feedRefreshes  *prometheus.CounterVec
	activeWizards  prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of clinic backend API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slot_fetches_total",
			Help:      "Slot fetches by outcome (applied, stale, error)",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		placementDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "placement_dropped_total",
			Help:      "Appointments left off the calendar grid, by reason",
		}, []string{"reason"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "push",
			Name:      "events_total",
			Help:      "Push notifications received",
		}, []string{"source", "event_type"}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "dashboard",
			Name:      "feed_loads_total",
			Help:      "Appointment feed loads by origin (cache, backend, error)",
		}, []string{"origin"}),
		activeWizards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "active_sessions",
			Help:      "Booking wizard sessions held by the gateway",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendLatency, m.slotFetches, m.bookings, m.placementDrops, m.pushEvents, m.feedRefreshes, m.activeWizards)
	return m
}

func (m *SchedulingMetrics) ObserveBackendCall(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(op, outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveSlotFetch(outcome string) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

// ObservePlacementDrops adds the per-reason counts of one placement pass.
func (m *SchedulingMetrics) ObservePlacementDrops(dropped map[string]int) {
	if m == nil {
		return
	}
	for reason, n := range dropped {
		if n > 0 {
			m.placementDrops.WithLabelValues(reason).Add(float64(n))
		}
	}
}

func (m *SchedulingMetrics) ObservePushEvent(source, eventType string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(source, eventType).Inc()
}

func (m *SchedulingMetrics) ObserveFeedLoad(origin string) {
	if m == nil {
		return
	}
	m.feedRefreshes.WithLabelValues(origin).Inc()
}

func (m *SchedulingMetrics) SetActiveWizards(n int) {
	if m == nil {
		return
	}
	m.activeWizards.Set(float64(n))
}
