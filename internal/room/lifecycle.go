package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"
	"agent-arena/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	maxSettleBackoff = time.Minute
	recoverBatch     = 1000
	persistTimeout   = 10 * time.Second
)

// EndedEvent is the game:ended payload published once a room is settled.
type EndedEvent struct {
	RoomID     string            `json:"room_id"`
	MatchID    string            `json:"match_id"`
	Tick       int               `json:"tick"`
	Reason     string            `json:"reason,omitempty"`
	Standings  []game.Standing   `json:"standings,omitempty"`
	Settlement *SettlementResult `json:"settlement"`
	State      json.RawMessage   `json:"state,omitempty"`
}

// forward drains one engine's events onto the publisher until the engine
// closes its channel.
func (m *Manager) forward(r *Room, eng *game.Engine) {
	defer m.wg.Done()
	for ev := range eng.Events() {
		switch ev.Name {
		case game.EventEnded:
			p, _ := ev.Payload.(game.EndedPayload)
			m.finish(r, eng, p)
		case game.EventTick:
			m.pub.Publish(r.id, ev.Name, ev.Payload)
			if ev.Tick%m.cfg.ProgressEvery == 0 {
				p, _ := ev.Payload.(game.TickPayload)
				m.saveProgress(r.id, p.State, eng.Log())
			}
		case game.EventActionRejected:
			metricActionsRejected.Add(1)
			m.pub.Publish(r.id, ev.Name, ev.Payload)
		default:
			m.pub.Publish(r.id, ev.Name, ev.Payload)
		}
	}
}

func (m *Manager) saveProgress(roomID string, state, events []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.SaveRoomProgress(ctx, roomID, state, events); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("save room progress failed")
	}
}

// finish freezes the final result in memory and attempts the first
// settlement. Failed attempts stay pending for Sweep.
func (m *Manager) finish(r *Room, eng *game.Engine, p game.EndedPayload) {
	r.mu.Lock()
	r.status = store.RoomEnded
	r.endedAt = m.now()
	r.finalState = p.State
	players := make([]PlayerRating, len(r.seats))
	for i, s := range r.seats {
		players[i] = PlayerRating{AgentID: s.agentID, Rating: s.rating, Frozen: s.frozen}
	}
	res := ComputeSettlement(SettlementInput{
		EntryFee:     r.fee,
		PrizeRateBPS: r.def.PrizeRateBPS,
		Players:      players,
		WinnerID:     p.Outcome.WinnerID,
		Draw:         p.Outcome.Draw,
	}, m.cfg.Policy)
	var startedAt *time.Time
	if !r.startedAt.IsZero() {
		t := r.startedAt
		startedAt = &t
	}
	st := toStoreSettlement(res, store.Settlement{
		RoomID:        r.id,
		MatchID:       store.NewID(),
		GameType:      r.def.Type,
		Level:         r.level,
		DurationTicks: p.Tick,
		StartedAt:     startedAt,
		EndedAt:       r.endedAt,
		GameState:     p.State,
		EventLog:      eng.Log(),
	})
	r.pending = &st
	r.pendingResult = &res
	r.pendingEnd = p
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.settle(ctx, r)
}

func toStoreSettlement(res SettlementResult, st store.Settlement) store.Settlement {
	st.WinnerID = res.WinnerID
	st.TotalPool = res.TotalPool
	st.PrizePool = res.PrizePool
	st.HouseFee = res.HouseFee
	st.Players = make([]store.SettlementPlayer, len(res.Players))
	for i, p := range res.Players {
		st.Players[i] = store.SettlementPlayer{
			AgentID:     p.AgentID,
			Rank:        p.Rank,
			Reward:      p.Reward,
			RewardType:  p.RewardType,
			RatingDelta: p.RatingDelta,
			Outcome:     p.Outcome,
		}
	}
	return st
}

func (m *Manager) settleBackoff(attempt int) time.Duration {
	d := m.cfg.SettleBackoff
	for i := 1; i < attempt && d < maxSettleBackoff; i++ {
		d *= 2
	}
	if d > maxSettleBackoff {
		d = maxSettleBackoff
	}
	return d
}

// settle writes the pending settlement. ErrRoomNotPlayable means an earlier
// attempt already committed, so it counts as success.
func (m *Manager) settle(ctx context.Context, r *Room) bool {
	r.mu.Lock()
	st, res, end := r.pending, r.pendingResult, r.pendingEnd
	r.mu.Unlock()
	if st == nil {
		return true
	}
	match, err := m.funds.Settle(ctx, *st)
	if err != nil && !errors.Is(err, apperr.ErrRoomNotPlayable) {
		r.mu.Lock()
		r.attempts++
		r.retryAt = m.now().Add(m.settleBackoff(r.attempts))
		attempt := r.attempts
		r.mu.Unlock()
		metricSettleFailures.Add(1)
		log.Error().
			Str("room_id", r.id).
			Int("attempt", attempt).
			Str("error", apperr.Format(err)).
			Msg("room settlement failed")
		return false
	}
	matchID := st.MatchID
	if match != nil {
		matchID = match.ID
	}

	r.mu.Lock()
	r.pending = nil
	r.pendingResult = nil
	r.result = res
	r.matchID = matchID
	ids := r.agentIDs()
	r.mu.Unlock()

	m.sessions.UnbindRoom(r.id, ids)
	metricRoomsSettled.Add(1)
	m.pub.Publish(r.id, game.EventEnded, EndedEvent{
		RoomID:     r.id,
		MatchID:    matchID,
		Tick:       end.Tick,
		Reason:     end.Outcome.Reason,
		Standings:  end.Outcome.Standings,
		Settlement: res,
		State:      end.State,
	})
	log.Info().
		Str("room_id", r.id).
		Str("match_id", matchID).
		Str("winner_id", res.WinnerID).
		Bool("draw", res.Draw).
		Int64("prize_pool", res.PrizePool).
		Msg("room settled")
	return true
}

// Sweep advances time-driven transitions: ready timeouts, stalled starts,
// settlement retries and retention closes.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()
	for _, r := range m.liveRooms() {
		r.mu.Lock()
		status := r.status
		createdAt := r.createdAt
		allReady := r.readyCount() == len(r.seats)
		pending := r.pending != nil
		retryAt := r.retryAt
		endedAt := r.endedAt
		r.mu.Unlock()

		switch {
		case status == store.RoomWaiting && now.Sub(createdAt) >= m.cfg.ReadyTimeout:
			if err := m.cancel(ctx, r, "ready_timeout"); err != nil && !errors.Is(err, apperr.ErrRoomNotWaiting) {
				log.Error().Str("room_id", r.id).Str("error", apperr.Format(err)).Msg("cancel room failed")
			}
		case status == store.RoomWaiting && allReady:
			m.retryStart(ctx, r)
		case status == store.RoomEnded && pending && !now.Before(retryAt):
			m.settle(ctx, r)
		case status == store.RoomEnded && !pending && now.Sub(endedAt) >= m.cfg.Retention:
			m.close(ctx, r)
		}
	}
}

func (m *Manager) retryStart(ctx context.Context, r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != store.RoomWaiting || r.readyCount() != len(r.seats) {
		return
	}
	if err := m.startLocked(ctx, r); err != nil {
		log.Error().Str("room_id", r.id).Str("error", apperr.Format(err)).Msg("room start retry failed")
	}
}

// Cancel refunds and closes a waiting room.
func (m *Manager) Cancel(ctx context.Context, roomID, reason string) error {
	r, err := m.liveRoom(ctx, roomID, apperr.ErrRoomNotWaiting)
	if err != nil {
		return err
	}
	return m.cancel(ctx, r, reason)
}

func (m *Manager) cancel(ctx context.Context, r *Room, reason string) error {
	r.mu.Lock()
	if r.status != store.RoomWaiting {
		r.mu.Unlock()
		return apperr.ErrRoomNotWaiting
	}
	ids := r.agentIDs()
	changes, err := m.funds.CancelRoom(ctx, r.id, ids, reason)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.status = store.RoomClosed
	r.endedAt = m.now()
	for _, s := range r.seats {
		s.frozen = 0
	}
	view := m.viewLocked(r)
	r.mu.Unlock()

	m.sessions.UnbindRoom(r.id, ids)
	m.evict(view)
	metricRoomsCancelled.Add(1)
	m.pub.Publish(r.id, broadcast.EventRoomCancelled, map[string]any{
		"room_id": r.id,
		"reason":  reason,
		"refunds": changes,
	})
	m.pub.Publish(r.id, broadcast.EventRoomClosed, map[string]any{"room_id": r.id})
	m.pub.CloseRoom(r.id)
	log.Info().Str("room_id", r.id).Str("reason", reason).Int("refunds", len(changes)).Msg("room cancelled")
	return nil
}

func (m *Manager) close(ctx context.Context, r *Room) {
	if err := m.store.CloseRoom(ctx, r.id); err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("close room failed")
		return
	}
	r.mu.Lock()
	r.status = store.RoomClosed
	view := m.viewLocked(r)
	r.mu.Unlock()

	m.evict(view)
	metricRoomsClosed.Add(1)
	m.pub.Publish(r.id, broadcast.EventRoomClosed, map[string]any{"room_id": r.id})
	m.pub.CloseRoom(r.id)
	log.Debug().Str("room_id", r.id).Msg("room closed")
}

// evict drops a room from the live set and keeps its last view readable.
func (m *Manager) evict(view *RoomView) {
	m.mu.Lock()
	if _, ok := m.live[view.RoomID]; ok {
		delete(m.live, view.RoomID)
		metricRoomsLive.Add(-1)
	}
	m.mu.Unlock()
	m.cache.put(view)
}

// Recover resolves rooms left open by a previous process. Waiting rooms are
// cancelled with refunds; playing rooms are settled as a draw and closed.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	rows, err := m.store.ListRoomsByStatus(ctx, []string{store.RoomWaiting, store.RoomPlaying}, recoverBatch)
	if err != nil {
		return 0, apperr.Internal(err, "list unfinished rooms")
	}
	recovered := 0
	for i := range rows {
		row := &rows[i]
		if err := m.recoverRoom(ctx, row); err != nil {
			log.Error().
				Str("room_id", row.ID).
				Str("status", row.Status).
				Str("error", apperr.Format(err)).
				Msg("room recovery failed")
			continue
		}
		recovered++
	}
	if len(rows) > 0 {
		log.Info().Int("found", len(rows)).Int("recovered", recovered).Msg("room recovery finished")
	}
	return recovered, nil
}

func (m *Manager) recoverRoom(ctx context.Context, row *store.Room) error {
	players, err := m.store.ListRoomPlayers(ctx, row.ID)
	if err != nil {
		return apperr.Internal(err, "load room players")
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.AgentID
	}
	switch row.Status {
	case store.RoomWaiting:
		_, err := m.funds.CancelRoom(ctx, row.ID, ids, "server_restart")
		return err
	case store.RoomPlaying:
		ratings := make([]PlayerRating, len(players))
		for i, p := range players {
			ratings[i] = PlayerRating{AgentID: p.AgentID, Rating: p.Rating, Frozen: p.FrozenFee}
		}
		res := ComputeSettlement(SettlementInput{EntryFee: row.EntryFee, Players: ratings, Draw: true}, nil)
		st := toStoreSettlement(res, store.Settlement{
			RoomID:    row.ID,
			MatchID:   store.NewID(),
			GameType:  row.GameType,
			Level:     row.Level,
			StartedAt: row.StartedAt,
			EndedAt:   m.now(),
			GameState: row.GameState,
			EventLog:  row.EventLog,
		})
		if _, err := m.funds.Settle(ctx, st); err != nil {
			return err
		}
		if err := m.store.CloseRoom(ctx, row.ID); err != nil {
			return apperr.Internal(err, "close recovered room")
		}
		return nil
	}
	return nil
}

// Shutdown aborts running games, cancels waiting rooms and waits for the
// forwarders to settle what they can.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, r := range m.liveRooms() {
		r.mu.Lock()
		status, eng := r.status, r.engine
		r.mu.Unlock()
		switch {
		case status == store.RoomWaiting:
			if err := m.cancel(ctx, r, "shutdown"); err != nil && !errors.Is(err, apperr.ErrRoomNotWaiting) {
				log.Warn().Str("room_id", r.id).Str("error", apperr.Format(err)).Msg("cancel on shutdown failed")
			}
		case status == store.RoomPlaying && eng != nil:
			eng.Abort("shutdown")
		}
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
