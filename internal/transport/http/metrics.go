package httptransport

import "expvar"

var (
	metricRegisterTotal = expvar.NewInt("http_register_total")

	metricActionSubmitTotal  = expvar.NewInt("http_action_submit_total")
	metricActionSubmitErrors = expvar.NewInt("http_action_submit_errors_total")

	metricSSEConnectionsTotal  = expvar.NewInt("sse_connections_total")
	metricSSEConnectionsActive = expvar.NewInt("sse_connections_active")
)
