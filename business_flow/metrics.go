package businessflow

import (
	"github.com/amirphl/marketplace-settlement/app/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway calls partitioned by operation and result
	gatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_gateway_calls_total",
			Help: "Total number of payment gateway calls",
		},
		[]string{"op", "result"},
	)

	// Webhook deliveries partitioned by ledger action and what was done with them
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_webhook_events_total",
			Help: "Total number of gateway webhook events received",
		},
		[]string{"action", "outcome"},
	)

	// Refunds partitioned by full or partial
	refundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_refunds_total",
			Help: "Total number of split payment refunds applied",
		},
		[]string{"kind"},
	)

	// Commission rule resolutions partitioned by the matched scope, "none" on a miss
	ruleResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_rule_resolutions_total",
			Help: "Total number of commission rule resolutions",
		},
		[]string{"scope"},
	)
)

func observeGatewayCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if gerr, ok := services.AsGatewayError(err); ok {
			result = string(gerr.Kind)
		}
	}
	gatewayCallsTotal.WithLabelValues(op, result).Inc()
}
