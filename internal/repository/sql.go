package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// SQLStore persists the relay in relay_* tables over mysql, postgres or sqlite3.
// Timestamps are stored as UTC epoch milliseconds.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

type messageRow struct {
	ID           string `db:"id"`
	Sender       string `db:"sender"`
	Body         string `db:"body"`
	Kind         string `db:"kind"`
	OccurredAtMs int64  `db:"occurred_at_ms"`
	ReceivedAtMs int64  `db:"received_at_ms"`
}

type historyRow struct {
	Action        string `db:"action"`
	TargetAddress string `db:"target_address"`
	Body          string `db:"body"`
	IssuedAtMs    int64  `db:"issued_at_ms"`
}

type commandRow struct {
	Action        string `db:"action"`
	TargetAddress string `db:"target_address"`
	Body          string `db:"body"`
}

type queueRow struct {
	Seq           int64  `db:"seq"`
	Action        string `db:"action"`
	TargetAddress string `db:"target_address"`
	Body          string `db:"body"`
	Status        string `db:"status"`
	CreatedAtMs   int64  `db:"created_at_ms"`
}

func (r *SQLStore) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// forUpdate is the row-lock suffix; sqlite serialises writers on its own.
func (r *SQLStore) forUpdate() string {
	if r.db.DriverName() == "sqlite3" {
		return ""
	}
	return " FOR UPDATE"
}

// AppendMessages inserts the whole batch in one transaction.
func (r *SQLStore) AppendMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	q := r.db.Rebind(`
		INSERT INTO relay_messages
		    (id, sender, body, kind, occurred_at_ms, received_at_ms)
		VALUES
		    (?,  ?,      ?,    ?,    ?,              ?)
	`)
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range msgs {
			if _, err := tx.ExecContext(ctx, q,
				m.ID, m.Sender, m.Body, m.Kind, m.OccurredAt.UnixMilli(), m.ReceivedAt.UnixMilli(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLStore) ListMessages(ctx context.Context, order model.SortOrder) ([]model.Message, error) {
	q := `
		SELECT id, sender, body, kind, occurred_at_ms, received_at_ms
		  FROM relay_messages
	`
	if order == model.OldestFirst {
		q += " ORDER BY occurred_at_ms ASC, id ASC"
	} else {
		q += " ORDER BY occurred_at_ms DESC, id DESC"
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Message{
			ID:         row.ID,
			Sender:     row.Sender,
			Body:       row.Body,
			Kind:       row.Kind,
			OccurredAt: model.FromMillis(row.OccurredAtMs),
			ReceivedAt: model.FromMillis(row.ReceivedAtMs),
		})
	}
	return out, nil
}

func (r *SQLStore) AppendHistory(ctx context.Context, rec model.HistoryRecord) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO relay_history (action, target_address, body, issued_at_ms)
		VALUES (?, ?, ?, ?)
	`), rec.Action, rec.TargetAddress, rec.Body, rec.IssuedAt.UnixMilli())
	return err
}

func (r *SQLStore) ListHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT action, target_address, body, issued_at_ms
		  FROM relay_history
		 ORDER BY seq ASC
	`); err != nil {
		return nil, err
	}

	out := make([]model.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.HistoryRecord{
			Action:        row.Action,
			TargetAddress: row.TargetAddress,
			Body:          row.Body,
			IssuedAt:      model.FromMillis(row.IssuedAtMs),
		})
	}
	return out, nil
}

// SwapCommand reads and overwrites slot 1 in one transaction holding the row lock.
func (r *SQLStore) SwapCommand(ctx context.Context, next model.Command) (model.Command, error) {
	var prev model.Command
	now := time.Now().UnixMilli()

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var row commandRow
		err := tx.GetContext(ctx, &row,
			`SELECT action, target_address, body FROM relay_command WHERE slot = 1`+r.forUpdate())
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO relay_command (slot, action, target_address, body, updated_at_ms)
				VALUES (1, ?, ?, ?, ?)
			`), next.Action, next.TargetAddress, next.Body, now)
			return err
		case err != nil:
			return err
		}

		prev = model.Command{Action: row.Action, TargetAddress: row.TargetAddress, Body: row.Body}
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE relay_command
			   SET action = ?, target_address = ?, body = ?, updated_at_ms = ?
			 WHERE slot = 1
		`), next.Action, next.TargetAddress, next.Body, now)
		return err
	})
	if err != nil {
		return model.EmptyCommand(), err
	}
	return prev, nil
}

func (r *SQLStore) AppendQueued(ctx context.Context, cmd model.Command, at time.Time) error {
	ms := at.UnixMilli()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO relay_command_queue
		    (action, target_address, body, status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`), cmd.Action, cmd.TargetAddress, cmd.Body, model.CommandPending.String(), ms, ms)
	return err
}

func (r *SQLStore) ListQueue(ctx context.Context) ([]model.QueuedCommand, error) {
	var rows []queueRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT seq, action, target_address, body, status, created_at_ms
		  FROM relay_command_queue
		 ORDER BY seq ASC
	`); err != nil {
		return nil, err
	}

	out := make([]model.QueuedCommand, 0, len(rows))
	for i, row := range rows {
		out = append(out, model.QueuedCommand{
			Index: i,
			Command: model.Command{
				Action:        row.Action,
				TargetAddress: row.TargetAddress,
				Body:          row.Body,
			},
			Status:    model.CommandStatus(row.Status),
			CreatedAt: model.FromMillis(row.CreatedAtMs),
		})
	}
	return out, nil
}

// MarkSent resolves index to the seq at that queue position and flags it sent.
func (r *SQLStore) MarkSent(ctx context.Context, index int, at time.Time) (bool, error) {
	if index < 0 {
		return false, nil
	}

	found := false
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var seq int64
		err := tx.GetContext(ctx, &seq, r.db.Rebind(`
			SELECT seq FROM relay_command_queue ORDER BY seq ASC LIMIT 1 OFFSET ?
		`), index)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		found = true
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE relay_command_queue SET status = ?, updated_at_ms = ? WHERE seq = ?
		`), model.CommandSent.String(), at.UnixMilli(), seq)
		return err
	})
	return found, err
}

func (r *SQLStore) Close() error { return r.db.Close() }
