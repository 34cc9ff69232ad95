package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const roomColumns = `id, game_type, level, entry_fee, status, winner_id, game_state, event_log,
	created_at, started_at, ended_at, closed_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var (
		r                        Room
		winner                   pgtype.Text
		started, ended, closedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&r.ID, &r.GameType, &r.Level, &r.EntryFee, &r.Status, &winner, &r.GameState, &r.EventLog,
		&r.CreatedAt, &started, &ended, &closedAt,
	); err != nil {
		return nil, mapNotFound(err)
	}
	r.WinnerID = textVal(winner)
	r.StartedAt = timePtrVal(started)
	r.EndedAt = timePtrVal(ended)
	r.ClosedAt = timePtrVal(closedAt)
	return &r, nil
}

// CreateRoom inserts the room and its seats and flips every player to in_game.
func (s *Store) CreateRoom(ctx context.Context, room Room, players []RoomPlayer) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, game_type, level, entry_fee, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			room.ID, room.GameType, room.Level, room.EntryFee, RoomWaiting, room.CreatedAt,
		); err != nil {
			return err
		}
		ids := make([]string, 0, len(players))
		for _, p := range players {
			if _, err := tx.Exec(ctx, `
				INSERT INTO room_players (room_id, agent_id, seat, rating)
				VALUES ($1, $2, $3, $4)`,
				room.ID, p.AgentID, p.Seat, p.Rating,
			); err != nil {
				return err
			}
			ids = append(ids, p.AgentID)
		}
		_, err := tx.Exec(ctx, `UPDATE agents SET status = $1, updated_at = now() WHERE id = ANY($2)`, AgentInGame, ids)
		return err
	})
}

func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	return scanRoom(s.Pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (s *Store) ListRoomPlayers(ctx context.Context, roomID string) ([]RoomPlayer, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT room_id, agent_id, seat, rating, ready, frozen_fee, final_rank, final_reward
		FROM room_players WHERE room_id = $1 ORDER BY seat ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RoomPlayer{}
	for rows.Next() {
		var (
			p      RoomPlayer
			rank   pgtype.Int4
			reward pgtype.Int8
		)
		if err := rows.Scan(&p.RoomID, &p.AgentID, &p.Seat, &p.Rating, &p.Ready, &p.FrozenFee, &rank, &reward); err != nil {
			return nil, err
		}
		p.FinalRank = intPtrVal(rank)
		p.FinalReward = int64PtrVal(reward)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRoomsByStatus returns rooms in any of the given statuses, oldest first.
func (s *Store) ListRoomsByStatus(ctx context.Context, statuses []string, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE status = ANY($1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, statuses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ReadyPlayer freezes the entry fee and sets the ready flag in one transaction.
func (s *Store) ReadyPlayer(ctx context.Context, roomID, agentID string) (BalanceChange, error) {
	var change BalanceChange
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			status string
			fee    int64
			ready  bool
		)
		err := tx.QueryRow(ctx, `
			SELECT r.status, r.entry_fee, rp.ready
			FROM room_players rp
			JOIN rooms r ON r.id = rp.room_id
			WHERE rp.room_id = $1 AND rp.agent_id = $2
			FOR UPDATE OF rp`, roomID, agentID).Scan(&status, &fee, &ready)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID)); getErr != nil {
				return getErr
			}
			return ErrNotInRoom
		}
		if err != nil {
			return err
		}
		if status != RoomWaiting {
			return ErrRoomStatus
		}
		if ready {
			return ErrAlreadyReady
		}
		change, err = applyBalanceChange(ctx, tx, agentID, -fee, TxEntryFee, Reference{Type: RefRoom, ID: roomID}, nil)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE room_players SET ready = true, frozen_fee = $3 WHERE room_id = $1 AND agent_id = $2`, roomID, agentID, fee)
		return err
	})
	return change, err
}

// MarkRoomPlaying moves a waiting room to playing. Any other status yields ErrRoomStatus.
func (s *Store) MarkRoomPlaying(ctx context.Context, roomID string, startedAt time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE rooms SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`, roomID, RoomPlaying, startedAt, RoomWaiting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomStatus
	}
	return nil
}

// SaveRoomProgress stores the latest snapshot while the room is still playing.
func (s *Store) SaveRoomProgress(ctx context.Context, roomID string, state, events []byte) error {
	if len(events) == 0 {
		events = []byte("[]")
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE rooms SET game_state = $2, event_log = $3
		WHERE id = $1 AND status = $4`, roomID, state, events, RoomPlaying)
	return err
}

// CancelRoom refunds every frozen fee of a waiting room and closes it.
func (s *Store) CancelRoom(ctx context.Context, roomID, reason string) ([]BalanceChange, error) {
	var changes []BalanceChange
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&status); err != nil {
			return mapNotFound(err)
		}
		if status != RoomWaiting {
			return ErrRoomStatus
		}
		rows, err := tx.Query(ctx, `
			SELECT agent_id, frozen_fee FROM room_players
			WHERE room_id = $1 ORDER BY agent_id ASC`, roomID)
		if err != nil {
			return err
		}
		type seat struct {
			agentID string
			frozen  int64
		}
		var seats []seat
		for rows.Next() {
			var st seat
			if err := rows.Scan(&st.agentID, &st.frozen); err != nil {
				rows.Close()
				return err
			}
			seats = append(seats, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		ids := make([]string, 0, len(seats))
		for _, st := range seats {
			ids = append(ids, st.agentID)
			var refunded int64
			if st.frozen > 0 {
				change, err := applyBalanceChange(ctx, tx, st.agentID, st.frozen, TxRefund,
					Reference{Type: RefRoom, ID: roomID}, map[string]any{"reason": reason})
				if err != nil {
					return err
				}
				changes = append(changes, change)
				refunded = st.frozen
			}
			if _, err := tx.Exec(ctx, `
				UPDATE room_players SET final_rank = 0, final_reward = $3
				WHERE room_id = $1 AND agent_id = $2`, roomID, st.agentID, refunded); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE rooms SET status = $2, ended_at = now(), closed_at = now()
			WHERE id = $1`, roomID, RoomClosed); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE agents SET status = $1, updated_at = now() WHERE id = ANY($2)`, AgentOnline, ids)
		return err
	})
	return changes, err
}

// CloseRoom retires an ended room. Closing an already closed room is a no-op.
func (s *Store) CloseRoom(ctx context.Context, roomID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE rooms SET status = $2, closed_at = now()
		WHERE id = $1 AND status = $3`, roomID, RoomClosed, RoomEnded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status != RoomClosed {
			return ErrRoomStatus
		}
	}
	return nil
}
