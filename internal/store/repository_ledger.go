package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// applyBalanceChange locks the agent row, moves the balance by amount and
// records the transaction. A negative resulting balance fails with
// ErrInsufficientBalance and leaves nothing written.
func applyBalanceChange(ctx context.Context, tx pgx.Tx, agentID string, amount int64, txType string, ref Reference, metadata any) (BalanceChange, error) {
	var before int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM agents WHERE id = $1 FOR UPDATE`, agentID).Scan(&before); err != nil {
		return BalanceChange{}, mapNotFound(err)
	}
	after := before + amount
	if after < 0 {
		return BalanceChange{}, ErrInsufficientBalance
	}
	if _, err := tx.Exec(ctx, `UPDATE agents SET balance = $2, updated_at = now() WHERE id = $1`, agentID, after); err != nil {
		return BalanceChange{}, err
	}
	meta, err := jsonParam(metadata)
	if err != nil {
		return BalanceChange{}, err
	}
	id := NewID()
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, agent_id, type, amount, balance_before, balance_after, reference_type, reference_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, agentID, txType, amount, before, after, ref.Type, ref.ID, meta,
	); err != nil {
		return BalanceChange{}, err
	}
	return BalanceChange{
		TransactionID: id,
		AgentID:       agentID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
	}, nil
}

// ApplyBalanceChange runs one ledger mutation in its own transaction.
func (s *Store) ApplyBalanceChange(ctx context.Context, agentID string, amount int64, txType string, ref Reference, metadata any) (BalanceChange, error) {
	var out BalanceChange
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		change, err := applyBalanceChange(ctx, tx, agentID, amount, txType, ref, metadata)
		if err != nil {
			return err
		}
		out = change
		return nil
	})
	return out, err
}

const transactionColumns = `id, agent_id, type, amount, balance_before, balance_after,
	reference_type, reference_id, metadata, created_at`

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.ReferenceType, &t.ReferenceID, &t.Metadata, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactions returns an agent's history, newest first.
func (s *Store) ListTransactions(ctx context.Context, agentID string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, agentID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (s *Store) ListTransactionsByReference(ctx context.Context, refType, refID string) ([]Transaction, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY id ASC`, refType, refID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}
