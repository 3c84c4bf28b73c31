package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/repository"
)

var _ repository.PaymentMethodRepository = (*paymentMethodRepo)(nil)

type paymentMethodRepo struct{ pool *pgxpool.Pool }

func NewPaymentMethodRepo(pool *pgxpool.Pool) *paymentMethodRepo {
	return &paymentMethodRepo{pool: pool}
}

func (r *paymentMethodRepo) Save(ctx context.Context, tx repository.Tx, m *model.SavedPaymentMethod) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO saved_payment_methods (id, user_id, gateway_token, brand, last4, created_at)
  VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, m.ID, m.UserID, m.GatewayToken, m.Brand, m.Last4, m.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SavedPaymentMethod, error) {
	const q = `SELECT id, user_id, gateway_token, brand, last4, created_at FROM saved_payment_methods WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	m := &model.SavedPaymentMethod{}
	if err := row.Scan(&m.ID, &m.UserID, &m.GatewayToken, &m.Brand, &m.Last4, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}

func (r *paymentMethodRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.SavedPaymentMethod, error) {
	const q = `SELECT id, user_id, gateway_token, brand, last4, created_at FROM saved_payment_methods WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.SavedPaymentMethod
	for rows.Next() {
		m := new(model.SavedPaymentMethod)
		if err := rows.Scan(&m.ID, &m.UserID, &m.GatewayToken, &m.Brand, &m.Last4, &m.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *paymentMethodRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM saved_payment_methods WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
