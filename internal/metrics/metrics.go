package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_messages_uploaded_total",
			Help: "Messages stored from device uploads, by kind",
		},
		[]string{"kind"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_commands_total",
			Help: "Mailbox command lifecycle counter",
		},
		[]string{"event"}, // issued|overwritten|delivered|acked; queue delivery is counted at ack
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_polls_total",
			Help: "Device command polls by result",
		},
		[]string{"result"}, // command|empty
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_exports_total",
			Help: "Export file operations",
		},
		[]string{"op"}, // upload|latest|parsed
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_events_published_total",
			Help: "Relay events published to Kafka by result",
		},
		[]string{"result"}, // ok|error|dropped
	)

	ArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrelay_archived_total",
			Help: "Rows written to the ClickHouse archive by table",
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once per process.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			MessagesUploaded,
			CommandsTotal,
			PollsTotal,
			ExportsTotal,
			EventsPublished,
			ArchivedTotal,
		)
	})
}
