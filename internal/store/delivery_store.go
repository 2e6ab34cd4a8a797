package store

import (
	"context"
	"fmt"
	"time"

	"github.com/crmkit/webhook-notifier/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, subscription_id, event_name, payload, status, attempt, max_attempts,
	response_status, response_body, duration_ms, next_retry_at, created_at, completed_at`

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.SubscriptionID, &d.EventName, &d.Payload, &d.Status,
		&d.Attempt, &d.MaxAttempts, &d.ResponseStatus, &d.ResponseBody,
		&d.DurationMs, &d.NextRetryAt, &d.CreatedAt, &d.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDelivery persists a freshly scheduled delivery record.
func (s *PostgresStore) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (id, subscription_id, event_name, payload, status, attempt, max_attempts, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.SubscriptionID, string(d.EventName), d.Payload, d.Status,
		d.Attempt, d.MaxAttempts, d.NextRetryAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

// ApplyAttemptOutcome records the result of one attempt in a single update.
// Updates to one record are serialized by the attempt lease, so last-writer-
// wins on these fields is the order attempts actually completed in.
func (s *PostgresStore) ApplyAttemptOutcome(ctx context.Context, id string, out domain.AttemptOutcome) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = $2, attempt = $3, response_status = $4, response_body = $5,
		    duration_ms = $6, next_retry_at = $7, completed_at = $8
		WHERE id = $1
	`, id, out.Status, out.Attempt, out.ResponseStatus, out.ResponseBody,
		out.DurationMs, out.NextRetryAt, out.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating delivery outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delivery %s not found", id)
	}
	return nil
}

// ListDueDeliveries returns pending records whose next_retry_at has passed,
// oldest first, bounded so one sweep never does unbounded work.
func (s *PostgresStore) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3
	`, domain.DeliveryPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due deliveries: %w", err)
	}
	defer rows.Close()

	var due []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due delivery: %w", err)
		}
		due = append(due, *d)
	}

	return due, nil
}

// ResetDelivery is the manual-retry operation: back to pending with the full
// attempt budget restored, due immediately so the next sweep picks it up.
func (s *PostgresStore) ResetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx, `
		UPDATE deliveries
		SET status = $2, attempt = 0, next_retry_at = NOW(), completed_at = NULL
		WHERE id = $1
		RETURNING `+deliveryColumns, id, domain.DeliveryPending))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resetting delivery: %w", err)
	}
	return d, nil
}

// ListDeliveriesFilter narrows ListDeliveries. Zero values mean "no filter".
type ListDeliveriesFilter struct {
	SubscriptionID string
	EventName      string
	Status         string
	Limit          int
	Offset         int
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, f ListDeliveriesFilter) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if f.SubscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, f.SubscriptionID)
		argIdx++
	}
	if f.EventName != "" {
		conditions = append(conditions, fmt.Sprintf("event_name = $%d", argIdx))
		args = append(args, f.EventName)
		argIdx++
	}
	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, f.Status)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}

	if deliveries == nil {
		deliveries = []domain.Delivery{}
	}

	return deliveries, nil
}
