package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// Exchanges against the backend, by outcome (success, no_session,
	// no_assertion, failed).
	TokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_exchanges_total",
			Help: "Total number of identity-assertion exchanges against the backend",
		},
		[]string{"outcome"},
	)

	// Cache lookups by tier (memory, persisted) and result (hit, miss, expired).
	TokenCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_cache_lookups_total",
			Help: "Total number of token cache lookups",
		},
		[]string{"tier", "result"},
	)

	SessionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_checks_total",
			Help: "Total number of session controller auth checks",
		},
		[]string{"result"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(TokenExchanges, TokenCacheLookups, SessionChecks)
}
