package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
)

// Outbox define a interface da tabela outbox_events
type Outbox interface {
	Enqueue(ctx context.Context, tx database.Tx, event OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
}

// PostgresOutbox implementa Outbox usando PostgreSQL
type PostgresOutbox struct {
	db *pgxpool.Pool
}

// NewOutbox cria uma nova instância de PostgresOutbox
func NewOutbox(db *pgxpool.Pool) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

// Enqueue grava o evento na mesma transação do pedido
func (o *PostgresOutbox) Enqueue(ctx context.Context, tx database.Tx, event OutboxEvent) error {
	pgTx, err := database.Conn(tx)
	if err != nil {
		return err
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_id, event_type, payload)
		VALUES ($1, $2, $3::jsonb)
	`, event.AggregateID, event.EventType, string(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// FetchUnpublished devolve os eventos ainda não publicados, em ordem de criação
func (o *PostgresOutbox) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, aggregate_id, event_type, payload::text, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var (
			event   OutboxEvent
			payload string
		)
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.EventType, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = []byte(payload)
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return out, nil
}

func (o *PostgresOutbox) MarkPublished(ctx context.Context, id int64) error {
	if _, err := o.db.Exec(ctx, `UPDATE outbox_events SET published_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event %d: %w", id, err)
	}
	return nil
}
