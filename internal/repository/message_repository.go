package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// MessageRepository manages the append-only per-ticket message log.
type MessageRepository interface {
	// Create persists the message and fills in its Seq. The message must be
	// visible to a ListByTicket issued after Create returns.
	Create(ctx context.Context, msg *domain.Message) error
	// ListByTicket returns messages ordered by created_at ascending with
	// insertion order (seq) as the tiebreak.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds the Postgres-backed repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, ticket_id, sender_type, sender_identifier, sender_name, message_type, content, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING seq`
	return r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderType,
		msg.SenderIdentifier,
		msg.SenderName,
		msg.MessageType,
		msg.Content,
		msg.CreatedAt,
	).Scan(&msg.Seq)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender_type, sender_identifier, sender_name, message_type, content, seq, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderType,
			&msg.SenderIdentifier,
			&msg.SenderName,
			&msg.MessageType,
			&msg.Content,
			&msg.Seq,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
