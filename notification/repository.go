package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the notification does not exist or belongs to another recipient.
var ErrNotFound = errors.New("notification: not found")

// Store persists notification records.
type Store interface {
	Insert(ctx context.Context, ev Event) (Record, error)
	List(ctx context.Context, recipientID string, limit int) ([]Record, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) (Record, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const recordColumns = `id, recipient_id, kind, payload, read, created_at`

func (s *PGStore) Insert(ctx context.Context, ev Event) (Record, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("notification: marshal payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO notifications (recipient_id, kind, payload)
		VALUES ($1, $2, $3::jsonb)
		RETURNING %s
	`, recordColumns)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ev.RecipientID, ev.Kind, body))
	if err != nil {
		return Record{}, fmt.Errorf("notification: insert: %w", err)
	}
	return rec, nil
}

func (s *PGStore) List(ctx context.Context, recipientID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recordColumns)

	rows, err := s.pool.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("notification: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: iterate: %w", err)
	}
	return out, nil
}

func (s *PGStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = false`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notification: unread count: %w", err)
	}
	return count, nil
}

func (s *PGStore) MarkRead(ctx context.Context, recipientID, id string) (Record, error) {
	query := fmt.Sprintf(`
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND recipient_id = $2
		RETURNING %s
	`, recordColumns)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("notification: mark read: %w", err)
	}
	return rec, nil
}

func (s *PGStore) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE recipient_id = $1 AND read = false`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("notification: mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	return rec, row.Scan(
		&rec.ID,
		&rec.RecipientID,
		&rec.Kind,
		&rec.Payload,
		&rec.Read,
		&rec.CreatedAt,
	)
}
