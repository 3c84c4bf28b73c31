package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct{ pool *pgxpool.Pool }

func NewNotificationLogRepo(pool *pgxpool.Pool) *notificationLogRepo {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, purchaseID, kind string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM notification_log WHERE purchase_id=$1 AND kind=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, purchaseID, kind)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *notificationLogRepo) Record(ctx context.Context, tx repository.Tx, purchaseID, userID, kind string) error {
	const q = `INSERT INTO notification_log (id, purchase_id, user_id, kind, sent_at)
  VALUES ($1,$2,$3,$4,NOW()) ON CONFLICT (purchase_id, kind) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), purchaseID, userID, kind)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
