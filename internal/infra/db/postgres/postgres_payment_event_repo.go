package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/repository"
)

var _ repository.PaymentEventRepository = (*paymentEventRepo)(nil)

// paymentEventRepo stores the append-only lifecycle log. Events are ordered
// structured rows, not a re-parsed JSON blob; a duplicate webhook delivery
// appends a new row rather than rewriting anything.
type paymentEventRepo struct{ pool *pgxpool.Pool }

func NewPaymentEventRepo(pool *pgxpool.Pool) *paymentEventRepo {
	return &paymentEventRepo{pool: pool}
}

func (r *paymentEventRepo) Append(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO payment_events (id, payment_id, kind, payload, created_at) VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, ev.ID, ev.PaymentID, ev.Kind, ev.Payload, ev.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentEventRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.PaymentEvent, error) {
	const q = `SELECT id, payment_id, kind, payload, created_at FROM payment_events WHERE payment_id=$1 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentEvent
	for rows.Next() {
		ev := new(model.PaymentEvent)
		if err := rows.Scan(&ev.ID, &ev.PaymentID, &ev.Kind, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, ev)
	}
	return out, nil
}
