package broadcast

import "expvar"

var (
	metricPublishedTotal    = expvar.NewInt("broadcast_published_total")
	metricSubscriberDropped = expvar.NewInt("broadcast_subscriber_dropped_total")
	metricRoomStreamsActive = expvar.NewInt("broadcast_room_streams_active")

	metricRedisQueueLen     = expvar.NewInt("broadcast_redis_queue_len")
	metricRedisSentTotal    = expvar.NewInt("broadcast_redis_sent_total")
	metricRedisFailedTotal  = expvar.NewInt("broadcast_redis_failed_total")
	metricRedisDroppedTotal = expvar.NewInt("broadcast_redis_dropped_total")
)
