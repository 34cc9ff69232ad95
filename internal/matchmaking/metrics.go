package matchmaking

import "expvar"

var (
	metricEnqueued      = expvar.NewInt("matchmaking_enqueued_total")
	metricDequeued      = expvar.NewInt("matchmaking_dequeued_total")
	metricExpired       = expvar.NewInt("matchmaking_expired_total")
	metricMatches       = expvar.NewInt("matchmaking_matches_total")
	metricMatchFailures = expvar.NewInt("matchmaking_match_failures_total")
)
