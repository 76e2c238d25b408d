package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/halc8312/esp/internal/models"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount moves an event to dead letter once reached.
	MaxRetryCount = 5

	EventProductPriceChanged  = "PRODUCT_PRICE_CHANGED"
	EventProductStatusChanged = "PRODUCT_STATUS_CHANGED"

	AggregateProduct = "product"

	DefaultChangeStream = "stream:product_changes"
)

// OutboxEvent is a row of the transactional outbox.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// PriceChangedPayload is the body of a PRODUCT_PRICE_CHANGED event.
type PriceChangedPayload struct {
	ProductID     int64     `json:"product_id"`
	OwnerID       int64     `json:"owner_id"`
	Site          string    `json:"site"`
	SourceURL     string    `json:"source_url"`
	PreviousPrice *int      `json:"previous_price"`
	Price         *int      `json:"price"`
	ObservedAt    time.Time `json:"observed_at"`
}

// StatusChangedPayload is the body of a PRODUCT_STATUS_CHANGED event.
type StatusChangedPayload struct {
	ProductID      int64         `json:"product_id"`
	OwnerID        int64         `json:"owner_id"`
	Site           string        `json:"site"`
	SourceURL      string        `json:"source_url"`
	PreviousStatus models.Status `json:"previous_status"`
	Status         models.Status `json:"status"`
	ObservedAt     time.Time     `json:"observed_at"`
}

// changeEvents builds the outbox events for the representative fields that
// changed. Variant-only changes produce no event.
func changeEvents(p models.TrackedProduct, changes models.ProductChanges, stream string, at time.Time) ([]*OutboxEvent, error) {
	var events []*OutboxEvent
	id := strconv.FormatInt(p.ID, 10)

	if changes.Price != nil {
		payload, err := json.Marshal(PriceChangedPayload{
			ProductID:     p.ID,
			OwnerID:       p.OwnerID,
			Site:          p.Site,
			SourceURL:     p.SourceURL,
			PreviousPrice: p.LastPrice,
			Price:         changes.Price,
			ObservedAt:    at,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal price payload: %w", err)
		}
		events = append(events, &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   id,
			EventType:     EventProductPriceChanged,
			Payload:       payload,
			TargetStream:  stream,
		})
	}

	if changes.Status != nil {
		payload, err := json.Marshal(StatusChangedPayload{
			ProductID:      p.ID,
			OwnerID:        p.OwnerID,
			Site:           p.Site,
			SourceURL:      p.SourceURL,
			PreviousStatus: p.LastStatus,
			Status:         *changes.Status,
			ObservedAt:     at,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status payload: %w", err)
		}
		events = append(events, &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   id,
			EventType:     EventProductStatusChanged,
			Payload:       payload,
			TargetStream:  stream,
		})
	}

	return events, nil
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Insert writes event using q, which is normally the caller's transaction.
func (r *OutboxRepository) Insert(ctx context.Context, q dbtx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = DefaultChangeStream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := q.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// GetPending returns pending or failed events whose retry time has come.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_event
		WHERE status IN ($1, $2)
			AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	rows, err := r.db.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed,
		time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
			&event.Payload, &event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_event
		SET status = $1, processed_at = $2
		WHERE id = $3`

	result, err := r.db.pool.Exec(ctx, query, OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkFailed bumps the retry count and schedules the next attempt, or moves
// the event to dead letter.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	var retryCount int
	err := r.db.pool.QueryRow(ctx,
		"SELECT retry_count FROM outbox_event WHERE id = $1", id).Scan(&retryCount)
	if err != nil {
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status := OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}

	query := `
		UPDATE outbox_event
		SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
		WHERE id = $5`

	_, err = r.db.pool.Exec(ctx, query, status, retryCount, processErr.Error(), nextRetryTime(time.Now(), retryCount), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// OutboxStats counts events still waiting for delivery.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

func (r *OutboxRepository) Stats(ctx context.Context) (OutboxStats, error) {
	var stats OutboxStats
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($1, $2)),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_event`

	err := r.db.pool.QueryRow(ctx, query,
		OutboxStatusPending, OutboxStatusFailed, OutboxStatusDeadLetter,
	).Scan(&stats.Pending, &stats.DeadLetter)
	if err != nil {
		return OutboxStats{}, fmt.Errorf("failed to get outbox stats: %w", err)
	}

	return stats, nil
}

// nextRetryTime backs off exponentially from 2s, capped at 5 minutes.
func nextRetryTime(now time.Time, retryCount int) time.Time {
	backoffSeconds := 1 << retryCount
	if retryCount > 8 || backoffSeconds > 300 {
		backoffSeconds = 300
	}
	return now.Add(time.Duration(backoffSeconds) * time.Second)
}
