package repository

import "context"

// NotificationLogRepository dedupes one-time notifications. A purchase gets
// at most one recorded notification per kind.
type NotificationLogRepository interface {
	Exists(ctx context.Context, qx Tx, purchaseID, kind string) (bool, error)
	Record(ctx context.Context, qx Tx, purchaseID, userID, kind string) error
}
