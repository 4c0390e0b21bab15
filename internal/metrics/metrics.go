package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessapi_beta_redemptions_total",
			Help: "Beta code validation attempts by outcome",
		},
		[]string{"outcome"}, // success | INVALID_CODE | CODE_EXPIRED | ...
	)

	SignupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessapi_wave_signups_total",
			Help: "Wave signup attempts by wave and outcome",
		},
		[]string{"wave", "outcome"},
	)

	RateLimitDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessapi_ratelimit_denials_total",
			Help: "Requests denied by the rate limiter, by rule",
		},
		[]string{"rule"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		RedemptionsTotal,
		SignupsTotal,
		RateLimitDenialsTotal,
	)
}
