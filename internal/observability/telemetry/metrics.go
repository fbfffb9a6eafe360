package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_charging_sessions",
		Help: "Number of charging sessions currently open",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh across finished sessions",
	})

	StripeWebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by outcome",
	}, []string{"result"})

	// Infrastructure metrics
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "OCPP frames by action and direction",
	}, []string{"action", "direction"})

	OCPPRemoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_remote_calls_total",
		Help: "Backend-initiated OCPP calls by action and outcome",
	}, []string{"action", "outcome"})

	OCPPConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_ocpp_connected_stations",
		Help: "Charge points with a live WebSocket transport",
	})
)
