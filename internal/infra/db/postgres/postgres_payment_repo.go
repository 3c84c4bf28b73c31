package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, user_id, resource_id, amount, currency, status, external_id, customer_ref, payment_url, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, resource_id, amount, currency, status, external_id, customer_ref, payment_url, created_at, updated_at, paid_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  status=$6, external_id=$7, payment_url=$9, updated_at=$11, paid_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.ResourceID, p.Amount, p.Currency, p.Status, nullIfEmpty(p.ExternalID), p.CustomerRef, p.PaymentURL, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.scanOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE external_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.scanOne(ctx, tx, q, externalID)
}

func (r *paymentRepo) FindByCustomerRef(ctx context.Context, tx repository.Tx, ref string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE customer_ref=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.scanOne(ctx, tx, q, ref)
}

func (r *paymentRepo) SetIntent(ctx context.Context, tx repository.Tx, id, externalID, paymentURL string) error {
	const q = `UPDATE payments SET external_id=$2, payment_url=$3, updated_at=NOW() WHERE id=$1 AND external_id IS NULL;`
	_, err := execSQL(ctx, r.pool, tx, q, id, externalID, paymentURL)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// ReplaceIntent drops the write-once guard: a retried payment gets a fresh
// invoice and the superseded external id stops matching callbacks.
func (r *paymentRepo) ReplaceIntent(ctx context.Context, tx repository.Tx, id, externalID, paymentURL string) error {
	const q = `UPDATE payments SET external_id=$2, payment_url=$3, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, externalID, paymentURL)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// UpdateStatusIf atomically moves the payment to `to` only when the current
// status is in `from`. Two concurrent reconcile attempts converge: exactly
// one sees rows affected.
func (r *paymentRepo) UpdateStatusIf(
	ctx context.Context, tx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, paidAt *time.Time,
) (bool, error) {
	if len(from) == 0 {
		return false, domain.ErrInvalidArgument
	}
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}
	query := `
    UPDATE payments
       SET status = $2,
           paid_at = COALESCE($3, paid_at),
           updated_at = NOW()
     WHERE id = $1
       AND status = ANY($4)`

	cmd, err := execSQL(ctx, r.pool, tx, query, id, string(to), paidAt, states)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentCols + ` FROM payments WHERE status='PENDING' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case pgx.ErrNoRows:
			return nil, domain.ErrNotFound
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p := new(model.Payment)
		if err := scanPayment(rows, p); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) scanOne(ctx context.Context, tx repository.Tx, q string, arg any) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	if err := scanPayment(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner, p *model.Payment) error {
	var externalID, paymentURL *string
	if err := row.Scan(&p.ID, &p.UserID, &p.ResourceID, &p.Amount, &p.Currency, &p.Status, &externalID, &p.CustomerRef, &paymentURL, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return err
	}
	if externalID != nil {
		p.ExternalID = *externalID
	}
	if paymentURL != nil {
		p.PaymentURL = *paymentURL
	}
	return nil
}

func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
