package store

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// SettleRoom persists the end of a game: the room moves playing -> ended
// exactly once, a match row is written and every player's balance, rating
// and stats are updated. Agent rows are locked in id order.
func (s *Store) SettleRoom(ctx context.Context, st Settlement) (*Match, error) {
	if st.MatchID == "" {
		st.MatchID = NewID()
	}
	match := &Match{
		ID:            st.MatchID,
		RoomID:        st.RoomID,
		GameType:      st.GameType,
		Level:         st.Level,
		WinnerID:      st.WinnerID,
		TotalPool:     st.TotalPool,
		PrizePool:     st.PrizePool,
		HouseFee:      st.HouseFee,
		DurationTicks: st.DurationTicks,
		StartedAt:     st.StartedAt,
		EndedAt:       st.EndedAt,
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		events := []byte(st.EventLog)
		if len(events) == 0 {
			events = []byte("[]")
		}
		var state []byte
		if len(st.GameState) > 0 {
			state = st.GameState
		}
		tag, err := tx.Exec(ctx, `
			UPDATE rooms SET status = $2, winner_id = $3, ended_at = $4, game_state = $5, event_log = $6
			WHERE id = $1 AND status = $7`,
			st.RoomID, RoomEnded, textParam(st.WinnerID), st.EndedAt, state, events, RoomPlaying)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRoomStatus
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO matches (id, room_id, game_type, level, winner_id, total_pool, prize_pool, house_fee, duration_ticks, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			match.ID, st.RoomID, st.GameType, st.Level, textParam(st.WinnerID),
			st.TotalPool, st.PrizePool, st.HouseFee, st.DurationTicks, timeParam(st.StartedAt), st.EndedAt,
		); err != nil {
			return err
		}

		players := append([]SettlementPlayer(nil), st.Players...)
		sort.Slice(players, func(i, j int) bool { return players[i].AgentID < players[j].AgentID })
		ids := make([]string, len(players))
		for i, p := range players {
			ids[i] = p.AgentID
		}
		ratings := make(map[string]int, len(ids))
		rows, err := tx.Query(ctx, `SELECT id, rating FROM agents WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			var rating int
			if err := rows.Scan(&id, &rating); err != nil {
				rows.Close()
				return err
			}
			ratings[id] = rating
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range players {
			before, ok := ratings[p.AgentID]
			if !ok {
				return ErrNotFound
			}
			if p.Reward > 0 {
				ref := Reference{Type: RefMatch, ID: match.ID}
				if p.RewardType == TxRefund {
					ref = Reference{Type: RefRoom, ID: st.RoomID}
				}
				if _, err := applyBalanceChange(ctx, tx, p.AgentID, p.Reward, p.RewardType, ref,
					map[string]any{"room_id": st.RoomID, "match_id": match.ID, "rank": p.Rank}); err != nil {
					return err
				}
			}
			after := before + p.RatingDelta
			if after < 0 {
				after = 0
			}
			var wins, losses, draws int
			switch p.Outcome {
			case OutcomeWin:
				wins = 1
			case OutcomeLoss:
				losses = 1
			default:
				draws = 1
			}
			if _, err := tx.Exec(ctx, `
				UPDATE agents SET
					rating = $2, rank_tier = $3, status = $4,
					wins = wins + $5, losses = losses + $6, draws = draws + $7,
					total_games = total_games + 1, updated_at = now()
				WHERE id = $1`,
				p.AgentID, after, RankTier(after), AgentOnline, wins, losses, draws,
			); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO match_participants (match_id, agent_id, rank, reward, rating_before, rating_after)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				match.ID, p.AgentID, p.Rank, p.Reward, before, after,
			); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE room_players SET final_rank = $3, final_reward = $4
				WHERE room_id = $1 AND agent_id = $2`,
				st.RoomID, p.AgentID, p.Rank, p.Reward,
			); err != nil {
				return err
			}
			match.Participants = append(match.Participants, MatchParticipant{
				AgentID:      p.AgentID,
				Rank:         p.Rank,
				Reward:       p.Reward,
				RatingBefore: before,
				RatingAfter:  after,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

const matchColumns = `id, room_id, game_type, level, winner_id, total_pool, prize_pool, house_fee,
	duration_ticks, started_at, ended_at`

func (s *Store) GetMatch(ctx context.Context, id string) (*Match, error) {
	return s.getMatch(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
}

func (s *Store) GetMatchByRoom(ctx context.Context, roomID string) (*Match, error) {
	return s.getMatch(ctx, `SELECT `+matchColumns+` FROM matches WHERE room_id = $1`, roomID)
}

func (s *Store) getMatch(ctx context.Context, query, arg string) (*Match, error) {
	var (
		m       Match
		winner  pgtype.Text
		started pgtype.Timestamptz
	)
	if err := s.Pool.QueryRow(ctx, query, arg).Scan(
		&m.ID, &m.RoomID, &m.GameType, &m.Level, &winner, &m.TotalPool, &m.PrizePool, &m.HouseFee,
		&m.DurationTicks, &started, &m.EndedAt,
	); err != nil {
		return nil, mapNotFound(err)
	}
	m.WinnerID = textVal(winner)
	m.StartedAt = timePtrVal(started)
	rows, err := s.Pool.Query(ctx, `
		SELECT agent_id, rank, reward, rating_before, rating_after
		FROM match_participants WHERE match_id = $1
		ORDER BY rank = 0, rank ASC, agent_id ASC`, m.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m.Participants = []MatchParticipant{}
	for rows.Next() {
		var p MatchParticipant
		if err := rows.Scan(&p.AgentID, &p.Rank, &p.Reward, &p.RatingBefore, &p.RatingAfter); err != nil {
			return nil, err
		}
		m.Participants = append(m.Participants, p)
	}
	return &m, rows.Err()
}
