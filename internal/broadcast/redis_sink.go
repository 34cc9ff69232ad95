package broadcast

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisChannelPrefix = "arena:room:"
	lobbyChannel       = "arena:lobby"
	defaultStateTTL    = 10 * time.Minute
)

var ErrNoSnapshot = errors.New("no room snapshot")

// Envelope is the JSON published on Redis channels.
type Envelope struct {
	RoomID   string `json:"room_id,omitempty"`
	Event    string `json:"event"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

type sinkJob struct {
	roomID string
	event  string
	body   []byte
	drop   bool
}

type RedisSinkConfig struct {
	// QueueSize bounds each worker lane.
	QueueSize int
	Workers   int
	StateTTL  time.Duration
}

// RedisSink mirrors events to Redis pub/sub and keeps the latest game
// snapshot per room under arena:room:<id>:state. Each room hashes to one
// lane served by one worker, so a room's events keep their publish order.
// A full lane drops.
type RedisSink struct {
	client  *redis.Client
	cfg     RedisSinkConfig
	lanes   []chan sinkJob
	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

func NewRedisSink(client *redis.Client, cfg RedisSinkConfig) *RedisSink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	lanes := make([]chan sinkJob, cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan sinkJob, cfg.QueueSize)
	}
	return &RedisSink{
		client: client,
		cfg:    cfg,
		lanes:  lanes,
	}
}

func RoomChannel(roomID string) string { return redisChannelPrefix + roomID }

func StateKey(roomID string) string { return redisChannelPrefix + roomID + ":state" }

// Start launches the workers. They stop once ctx is done and the queue is drained.
func (s *RedisSink) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, lane := range s.lanes {
		s.wg.Add(1)
		go s.worker(ctx, lane)
	}
}

// Wait blocks until every worker has returned.
func (s *RedisSink) Wait() { s.wg.Wait() }

func (s *RedisSink) Publish(roomID, event string, payload any) {
	body, err := json.Marshal(Envelope{
		RoomID:   roomID,
		Event:    event,
		ServerTS: time.Now().UnixMilli(),
		Data:     payload,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("redis sink encode failed")
		metricRedisDroppedTotal.Add(1)
		return
	}
	s.enqueue(sinkJob{roomID: roomID, event: event, body: body})
}

// CloseRoom drops the cached snapshot.
func (s *RedisSink) CloseRoom(roomID string) {
	s.enqueue(sinkJob{roomID: roomID, drop: true})
}

func (s *RedisSink) lane(roomID string) chan sinkJob {
	if len(s.lanes) == 1 {
		return s.lanes[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return s.lanes[h.Sum32()%uint32(len(s.lanes))]
}

func (s *RedisSink) queueLen() int64 {
	var n int
	for _, lane := range s.lanes {
		n += len(lane)
	}
	return int64(n)
}

func (s *RedisSink) enqueue(job sinkJob) {
	select {
	case s.lane(job.roomID) <- job:
		metricRedisQueueLen.Set(s.queueLen())
	default:
		metricRedisDroppedTotal.Add(1)
	}
}

func (s *RedisSink) worker(ctx context.Context, lane chan sinkJob) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.drain(lane)
			return
		case job := <-lane:
			metricRedisQueueLen.Set(s.queueLen())
			s.process(ctx, job)
		}
	}
}

func (s *RedisSink) drain(lane chan sinkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case job := <-lane:
			s.process(ctx, job)
		default:
			return
		}
	}
}

func (s *RedisSink) process(ctx context.Context, job sinkJob) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), time.Second)
		defer cancel()
	}
	if job.drop {
		if err := s.client.Del(ctx, StateKey(job.roomID)).Err(); err != nil {
			metricRedisFailedTotal.Add(1)
		}
		return
	}
	channel := lobbyChannel
	if job.roomID != "" {
		channel = RoomChannel(job.roomID)
	}
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, channel, job.body)
	if job.roomID != "" && isSnapshotEvent(job.event) {
		pipe.Set(ctx, StateKey(job.roomID), job.body, s.cfg.StateTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metricRedisFailedTotal.Add(1)
		log.Warn().Err(err).Str("room_id", job.roomID).Str("event", job.event).Msg("redis sink publish failed")
		return
	}
	metricRedisSentTotal.Add(1)
}

func isSnapshotEvent(event string) bool {
	switch event {
	case "game:started", "game:tick", "game:ended":
		return true
	}
	return false
}

// LastSnapshot reads the cached envelope of a room's latest game event.
func (s *RedisSink) LastSnapshot(ctx context.Context, roomID string) (json.RawMessage, error) {
	raw, err := s.client.Get(ctx, StateKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
