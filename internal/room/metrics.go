package room

import "expvar"

var (
	metricRoomsCreated     = expvar.NewInt("rooms_created_total")
	metricRoomsStarted     = expvar.NewInt("rooms_started_total")
	metricRoomsSettled     = expvar.NewInt("rooms_settled_total")
	metricRoomsCancelled   = expvar.NewInt("rooms_cancelled_total")
	metricRoomsClosed      = expvar.NewInt("rooms_closed_total")
	metricRoomsLive        = expvar.NewInt("rooms_live")
	metricSettleFailures   = expvar.NewInt("room_settle_failures_total")
	metricActionsSubmitted = expvar.NewInt("room_actions_submitted_total")
	metricActionsRejected  = expvar.NewInt("room_actions_rejected_total")
)
