package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"agent-arena/internal/broadcast"

	"github.com/rs/zerolog/log"
)

var errCircuitOpen = errors.New("circuit_open")

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Notifier is a broadcast.Publisher that turns room milestones into webhook
// posts. Delivery is asynchronous; a full queue drops the message.
type Notifier struct {
	cfg      Config
	adapters map[string]Adapter
	queue    chan job
	retryQ   *retryQueue
	done     chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	started    bool
	gameByRoom map[string]string
	breakers   map[string]breakerState
}

var _ broadcast.Publisher = (*Notifier)(nil)

func New(cfg Config) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpen <= 0 {
		cfg.CircuitOpen = 30 * time.Second
	}
	client := newHTTPClient(cfg.RequestTimeout)
	n := &Notifier{
		cfg: cfg,
		adapters: map[string]Adapter{
			"discord": &discordAdapter{client: client},
			"webhook": &webhookAdapter{client: client},
		},
		queue:      make(chan job, cfg.QueueSize),
		done:       make(chan struct{}),
		gameByRoom: map[string]string{},
		breakers:   map[string]breakerState{},
	}
	n.retryQ = newRetryQueue(n.queue, n.done)
	return n
}

// Start launches the workers. They exit when ctx is done; pending retries
// are abandoned.
func (n *Notifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		close(n.done)
	}()
	log.Info().Int("targets", len(n.cfg.Targets)).Int("workers", n.cfg.Workers).Msg("notifier started")
}

func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) Publish(roomID, event string, payload any) {
	if !n.cfg.Enabled || len(n.cfg.Targets) == 0 || roomID == "" {
		return
	}
	ev, ok := normalize(roomID, event, payload, time.Now().UnixMilli())
	if !ok {
		return
	}
	n.mu.Lock()
	if ev.GameType != "" {
		n.gameByRoom[roomID] = ev.GameType
	} else {
		ev.GameType = n.gameByRoom[roomID]
	}
	n.mu.Unlock()

	msg, ok := format(ev)
	if !ok {
		return
	}
	for _, t := range matchTargets(n.cfg.Targets, ev) {
		n.enqueue(job{target: t, msg: msg})
	}
}

func (n *Notifier) CloseRoom(roomID string) {
	n.mu.Lock()
	delete(n.gameByRoom, roomID)
	n.mu.Unlock()
}

func (n *Notifier) enqueue(j job) bool {
	select {
	case n.queue <- j:
		metricQueuedTotal.Add(1)
		metricQueueLen.Set(int64(len(n.queue)))
		return true
	default:
		metricDroppedTotal.Add(1)
		return false
	}
}

func (n *Notifier) worker(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-n.queue:
			metricQueueLen.Set(int64(len(n.queue)))
			n.process(ctx, j)
		}
	}
}

func (n *Notifier) process(ctx context.Context, j job) {
	adapter := n.adapters[j.target.Platform]
	if adapter == nil {
		metricDroppedTotal.Add(1)
		return
	}
	key := j.target.key()
	if err := n.beforeSend(key, time.Now()); err != nil {
		metricCircuitOpenTotal.Add(1)
		n.retryOrDrop(j, err)
		return
	}
	if err := adapter.Send(ctx, j.target.Endpoint, j.target.Secret, j.msg); err != nil {
		metricFailedTotal.Add(1)
		n.afterFailure(key, time.Now())
		n.retryOrDrop(j, err)
		return
	}
	metricSentTotal.Add(1)
	n.afterSuccess(key)
}

// retryOrDrop schedules attempt k after RetryBase * 2^(k-1).
func (n *Notifier) retryOrDrop(j job, err error) {
	if j.attempt >= n.cfg.RetryMax {
		metricRetryDroppedTotal.Add(1)
		log.Warn().Err(err).Str("platform", j.target.Platform).Str("event", j.msg.Event.Type).
			Str("room_id", j.msg.Event.RoomID).Msg("notification dropped")
		return
	}
	j.attempt++
	metricRetryTotal.Add(1)
	n.retryQ.Enqueue(j, n.cfg.RetryBase*time.Duration(1<<(j.attempt-1)))
}

func (n *Notifier) beforeSend(key string, now time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := n.breakers[key]
	if !state.openUntil.IsZero() && now.Before(state.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (n *Notifier) afterFailure(key string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := n.breakers[key]
	state.consecutiveFailures++
	if state.consecutiveFailures >= n.cfg.FailureThreshold {
		state.openUntil = now.Add(n.cfg.CircuitOpen)
		state.consecutiveFailures = 0
	}
	n.breakers[key] = state
}

func (n *Notifier) afterSuccess(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.breakers, key)
}

type retryQueue struct {
	out  chan<- job
	done <-chan struct{}
}

func newRetryQueue(out chan<- job, done <-chan struct{}) *retryQueue {
	return &retryQueue{out: out, done: done}
}

func (q *retryQueue) Enqueue(j job, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		select {
		case <-q.done:
		case q.out <- j:
			metricQueueLen.Set(int64(len(q.out)))
		}
	})
}
