package repository

import (
	"context"
	"strings"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// ArchivedCommand is a command.issued event as stored in the archive.
type ArchivedCommand struct {
	EventID string
	model.HistoryRecord
}

// ReportFilter narrows an archive listing. Empty fields do not filter.
type ReportFilter struct {
	Sender string
	Kind   string
	Limit  int
	Offset int
}

// ArchiveRepository writes relay events to ClickHouse and serves reports from it.
type ArchiveRepository interface {
	InsertMessages(ctx context.Context, msgs []model.Message) error
	InsertCommands(ctx context.Context, cmds []ArchivedCommand) error
	ListMessages(ctx context.Context, f ReportFilter) ([]model.Message, error)
}

type chArchiveRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHArchiveRepository(ch *sqlx.DB) ArchiveRepository {
	return &chArchiveRepository{ch: ch}
}

// InsertMessages sends the batch as one ClickHouse block (prepared insert inside a tx).
func (r *chArchiveRepository) InsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relay_messages_archive (id, sender, body, kind, occurred_at, received_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Sender, m.Body, m.Kind, m.OccurredAt, m.ReceivedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *chArchiveRepository) InsertCommands(ctx context.Context, cmds []ArchivedCommand) error {
	if len(cmds) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relay_commands_archive (event_id, action, target_address, body, issued_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cmds {
		if _, err := stmt.ExecContext(ctx, c.EventID, c.Action, c.TargetAddress, c.Body, c.IssuedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type archivedMessageRow struct {
	ID         string `db:"id"`
	Sender     string `db:"sender"`
	Body       string `db:"body"`
	Kind       string `db:"kind"`
	OccurredAt int64  `db:"occurred_at_ms"`
	ReceivedAt int64  `db:"received_at_ms"`
}

func (r *chArchiveRepository) ListMessages(ctx context.Context, f ReportFilter) ([]model.Message, error) {
	q, args := buildReportQuery(f)

	var rows []archivedMessageRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Message{
			ID:         row.ID,
			Sender:     row.Sender,
			Body:       row.Body,
			Kind:       row.Kind,
			OccurredAt: model.FromMillis(row.OccurredAt),
			ReceivedAt: model.FromMillis(row.ReceivedAt),
		})
	}
	return out, nil
}

func buildReportQuery(f ReportFilter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, sender, body, kind,
		       toUnixTimestamp64Milli(occurred_at) AS occurred_at_ms,
		       toUnixTimestamp64Milli(received_at) AS received_at_ms
		FROM relay_messages_archive FINAL
		WHERE 1 = 1`)
	args := []any{}

	if f.Sender != "" {
		sb.WriteString(" AND sender = ?")
		args = append(args, f.Sender)
	}
	if f.Kind != "" {
		sb.WriteString(" AND kind = ?")
		args = append(args, f.Kind)
	}

	sb.WriteString(" ORDER BY occurred_at DESC LIMIT ? OFFSET ?")
	args = append(args, f.Limit, f.Offset)

	return sb.String(), args
}
