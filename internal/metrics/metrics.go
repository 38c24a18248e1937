package metrics

import "github.com/prometheus/client_golang/prometheus"

var CallsPlaced = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "calls_placed_total",
		Help: "Outbound call placements by outcome",
	},
	[]string{"outcome"},
)

var WebhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "call_webhook_events_total",
		Help: "Provider webhook deliveries by kind",
	},
	[]string{"kind"},
)

var Broadcasts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "push_broadcasts_total",
		Help: "Events published to the broadcast dispatcher",
	},
)

var MessagesSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Outbound SMS sends by outcome",
	},
	[]string{"outcome"},
)

var Observers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "push_observers",
		Help: "Currently connected push observers",
	},
)

func init() {
	prometheus.MustRegister(CallsPlaced)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(Broadcasts)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(Observers)
}
