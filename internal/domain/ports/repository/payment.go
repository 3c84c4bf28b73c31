package repository

import (
	"context"
	"time"

	"resource-marketplace/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Payment, error)
	// FindByExternalID matches the gateway invoice number; FindByCustomerRef
	// matches the local correlation ULID. Reconciliation checks both because
	// a callback can arrive before the external id is persisted.
	FindByExternalID(ctx context.Context, qx Tx, externalID string) (*model.Payment, error)
	FindByCustomerRef(ctx context.Context, qx Tx, ref string) (*model.Payment, error)
	// SetIntent records the gateway's identifiers once the intent is accepted.
	// It writes only when no external id is stored yet; a late duplicate ack
	// can never clobber the recorded intent.
	SetIntent(ctx context.Context, qx Tx, id, externalID, paymentURL string) error
	// ReplaceIntent overwrites the stored identifiers. Only the user retry
	// path uses it, where a fresh gateway invoice supersedes the failed one.
	ReplaceIntent(ctx context.Context, qx Tx, id, externalID, paymentURL string) error
	// UpdateStatusIf is a compare-and-swap: the row moves to `to` only when
	// its current status is one of `from`. Returns whether a row changed.
	UpdateStatusIf(ctx context.Context, qx Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, paidAt *time.Time) (bool, error)
	// ListPendingOlderThan reports stale pending payments for operators.
	// Callers must never auto-fail these without a verified gateway signal.
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}

// PaymentEventRepository is the append-only lifecycle log for payments.
// Append never overwrites; the log is the audit trail required to diagnose
// duplicate and out-of-order callbacks.
type PaymentEventRepository interface {
	Append(ctx context.Context, qx Tx, ev *model.PaymentEvent) error
	ListByPayment(ctx context.Context, qx Tx, paymentID string) ([]*model.PaymentEvent, error)
}
