package repository

import (
	"context"
	"time"

	"resource-marketplace/internal/domain/model"
)

// -----------------------------
// Purchases (entitlements)
// -----------------------------

type PurchaseRepository interface {
	// Upsert inserts the purchase or, when a row for the same payment already
	// exists (concurrent reconciliation of duplicate callbacks), updates its
	// status instead. A uniqueness violation is an expected outcome here,
	// never an error surfaced to the caller.
	Upsert(ctx context.Context, qx Tx, pu *model.Purchase) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Purchase, error)
	FindByPayment(ctx context.Context, qx Tx, paymentID string) (*model.Purchase, error)
	// FindCompletedByUserResource backs the entitlement-uniqueness check:
	// at most one COMPLETED purchase per (user, resource).
	FindCompletedByUserResource(ctx context.Context, qx Tx, userID, resourceID string) (*model.Purchase, error)
	UpdateStatus(ctx context.Context, qx Tx, id string, status model.PurchaseStatus) error
	// SetLicenseIfEmpty writes the key only when none is stored and returns
	// the stored value either way, so concurrent issuers converge on one key.
	SetLicenseIfEmpty(ctx context.Context, qx Tx, id, key string) (string, error)
	SetDownload(ctx context.Context, qx Tx, id, url string, expires time.Time) error
	ListByUser(ctx context.Context, qx Tx, userID string) ([]*model.Purchase, error)
}
