package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesCreated counts appended messages by sender.
	messagesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_messages_total",
			Help: "Messages appended to session logs, by sender.",
		},
		[]string{"sender"},
	)

	// repliesScheduled counts synthetic replies put on the queue.
	repliesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "widget_replies_scheduled_total",
			Help: "Synthetic bot replies scheduled.",
		},
	)

	// pageVisits counts page-visit notifications by outcome
	// (appended, duplicate).
	pageVisits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_page_visits_total",
			Help: "Page visits seen by the visitor tracker, by outcome.",
		},
		[]string{"result"},
	)

	// hostMessages counts cross-frame envelopes by outcome
	// (accepted, unknown, origin_rejected).
	hostMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_host_messages_total",
			Help: "Cross-frame host messages, by outcome.",
		},
		[]string{"result"},
	)

	// geoLookups counts country resolutions by outcome (ok, error).
	geoLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_geo_lookups_total",
			Help: "Country resolutions attempted, by outcome.",
		},
		[]string{"result"},
	)

	// storageWriteFailures counts failed persists by storage key.
	storageWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_storage_write_failures_total",
			Help: "Failed writes to durable storage, by key.",
		},
		[]string{"key"},
	)

	// sessionsActive gauges the sessions held in memory.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_sessions_active",
			Help: "Sessions currently loaded in memory.",
		},
	)

	// eventsDropped counts events a slow subscriber missed.
	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "widget_events_dropped_total",
			Help: "Session events dropped because a subscriber was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		messagesCreated,
		repliesScheduled,
		pageVisits,
		hostMessages,
		geoLookups,
		storageWriteFailures,
		sessionsActive,
		eventsDropped,
	)
}
