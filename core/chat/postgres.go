package chat

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/chatrelay/integration/database/pg"
)

// Migrations holds the goose migration scripts for the chat schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an established connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// db returns the transaction carried by ctx when the caller began one,
// falling back to the pool.
func (s *PostgresStore) db(ctx context.Context) querier {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// CreateMessage implements Store.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID, senderID, content string) (Message, error) {
	if content == "" {
		return Message{}, ErrEmptyContent
	}

	msg := Message{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
	}

	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("create message in room %s: %w", roomID, err)
	}
	return msg, nil
}

// ListMessages implements Store. Pages are ordered oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]Message, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT id, room_id, sender_id, content, created_at
		 FROM messages
		 WHERE room_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		roomID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages in room %s: %w", roomID, err)
	}
	defer rows.Close()

	var page []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages in room %s: %w", roomID, err)
	}
	return page, nil
}

// MarkRead implements Store. Marking the same message twice is a no-op.
func (s *PostgresStore) MarkRead(ctx context.Context, messageID, userID string) error {
	var exists bool
	err := s.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check message %s: %w", messageID, err)
	}
	if !exists {
		return ErrMessageNotFound
	}

	_, err = s.db(ctx).Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark message %s read by %s: %w", messageID, userID, err)
	}
	return nil
}

// CreateThread implements Store.
func (s *PostgresStore) CreateThread(ctx context.Context, title, creatorID string) (Thread, error) {
	if title == "" {
		return Thread{}, ErrEmptyTitle
	}

	th := Thread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatorID: creatorID,
	}

	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO threads (id, title, creator_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		th.ID, th.Title, th.CreatorID,
	).Scan(&th.CreatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("create thread %q: %w", title, err)
	}
	return th, nil
}

// GetThread fetches a thread by id.
func (s *PostgresStore) GetThread(ctx context.Context, id string) (Thread, error) {
	var th Thread
	err := s.db(ctx).QueryRow(ctx,
		`SELECT id, title, creator_id, created_at FROM threads WHERE id = $1`, id,
	).Scan(&th.ID, &th.Title, &th.CreatorID, &th.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrThreadNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	return th, nil
}
