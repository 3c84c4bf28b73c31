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

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseCols = `id, user_id, resource_id, payment_id, status, license_key, license_status, download_url, download_expires, created_at, updated_at`

// Upsert relies on the unique index on (user_id, resource_id, payment_id):
// the loser of a concurrent insert race lands in the conflict branch and
// becomes a status update, so duplicate callbacks converge on one row.
func (r *purchaseRepo) Upsert(ctx context.Context, tx repository.Tx, pu *model.Purchase) error {
	now := time.Now().UTC()
	if pu.CreatedAt.IsZero() {
		pu.CreatedAt = now
	}
	pu.UpdatedAt = now
	const q = `
INSERT INTO purchases (
  id, user_id, resource_id, payment_id, status, license_key, license_status, download_url, download_expires, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (user_id, resource_id, payment_id) DO UPDATE SET
  status=$5, updated_at=$11;`

	_, err := execSQL(ctx, r.pool, tx, q, pu.ID, pu.UserID, pu.ResourceID, pu.PaymentID, pu.Status, nullIfEmpty(pu.LicenseKey), pu.LicenseStatus, pu.DownloadURL, pu.DownloadExpires, pu.CreatedAt, pu.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE id=$1;`
	return r.scanOne(ctx, tx, q, id)
}

func (r *purchaseRepo) FindByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE payment_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.scanOne(ctx, tx, q, paymentID)
}

func (r *purchaseRepo) FindCompletedByUserResource(ctx context.Context, tx repository.Tx, userID, resourceID string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE user_id=$1 AND resource_id=$2 AND status='COMPLETED' LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, resourceID)
	if err != nil {
		return nil, err
	}
	pu := &model.Purchase{}
	if err := scanPurchase(row, pu); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return pu, nil
}

func (r *purchaseRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PurchaseStatus) error {
	const q = `UPDATE purchases SET status=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// SetLicenseIfEmpty writes the key only when the column is still NULL, then
// reads back whichever key won. A concurrent issuer never overwrites an
// already-stored key.
func (r *purchaseRepo) SetLicenseIfEmpty(ctx context.Context, tx repository.Tx, id, key string) (string, error) {
	const upd = `UPDATE purchases SET license_key=$2, updated_at=NOW() WHERE id=$1 AND license_key IS NULL;`
	if _, err := execSQL(ctx, r.pool, tx, upd, id, key); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return "", err
		}
		return "", domain.ErrOperationFailed
	}

	const sel = `SELECT license_key FROM purchases WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, sel, id)
	if err != nil {
		return "", err
	}
	var stored *string
	if err := row.Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	if stored == nil {
		return "", domain.ErrOperationFailed
	}
	return *stored, nil
}

func (r *purchaseRepo) SetDownload(ctx context.Context, tx repository.Tx, id, url string, expires time.Time) error {
	const q = `UPDATE purchases SET download_url=$2, download_expires=$3, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, url, expires)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *purchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		pu := new(model.Purchase)
		if err := scanPurchase(rows, pu); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, pu)
	}
	return out, nil
}

func (r *purchaseRepo) scanOne(ctx context.Context, tx repository.Tx, q string, arg any) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	pu := &model.Purchase{}
	if err := scanPurchase(row, pu); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return pu, nil
}

func scanPurchase(row rowScanner, pu *model.Purchase) error {
	var licenseKey, downloadURL *string
	if err := row.Scan(&pu.ID, &pu.UserID, &pu.ResourceID, &pu.PaymentID, &pu.Status, &licenseKey, &pu.LicenseStatus, &downloadURL, &pu.DownloadExpires, &pu.CreatedAt, &pu.UpdatedAt); err != nil {
		return err
	}
	if licenseKey != nil {
		pu.LicenseKey = *licenseKey
	}
	if downloadURL != nil {
		pu.DownloadURL = *downloadURL
	}
	return nil
}
