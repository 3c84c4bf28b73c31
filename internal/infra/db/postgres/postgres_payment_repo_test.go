//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func newTestPayment() *model.Payment {
	now := time.Now().UTC()
	return &model.Payment{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		ResourceID:  "res-1",
		Amount:      10000,
		Currency:    "SAR",
		Status:      model.PaymentStatusPending,
		CustomerRef: ulid.Make().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPaymentRepo(testPool)

	t.Run("should save and find a payment", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment()

		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Failed to save new payment: %v", err)
		}

		foundByID, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if foundByID.CustomerRef != p.CustomerRef || foundByID.Status != model.PaymentStatusPending {
			t.Fatal("Did not find the correct payment by ID")
		}
		if foundByID.ExternalID != "" {
			t.Fatalf("expected empty external id before intent, got %q", foundByID.ExternalID)
		}

		foundByRef, err := repo.FindByCustomerRef(ctx, nil, p.CustomerRef)
		if err != nil {
			t.Fatalf("FindByCustomerRef failed: %v", err)
		}
		if foundByRef.ID != p.ID {
			t.Fatal("Did not find the correct payment by CustomerRef")
		}
	})

	t.Run("should return ErrNotFound for a missing payment", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByExternalID(ctx, nil, "no-such-invoice"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should set the gateway intent exactly once", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment()
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}

		if err := repo.SetIntent(ctx, nil, p.ID, "inv-100", "https://pay.example/inv-100"); err != nil {
			t.Fatalf("SetIntent failed: %v", err)
		}
		// The second call must be a no-op: external_id is already set.
		if err := repo.SetIntent(ctx, nil, p.ID, "inv-999", "https://pay.example/inv-999"); err != nil {
			t.Fatalf("second SetIntent errored: %v", err)
		}

		found, err := repo.FindByExternalID(ctx, nil, "inv-100")
		if err != nil {
			t.Fatalf("FindByExternalID failed: %v", err)
		}
		if found.ID != p.ID || found.PaymentURL != "https://pay.example/inv-100" {
			t.Fatal("intent fields were overwritten")
		}
		if _, err := repo.FindByExternalID(ctx, nil, "inv-999"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for losing intent id, got %v", err)
		}

		// Retry goes through ReplaceIntent, which does overwrite.
		if err := repo.ReplaceIntent(ctx, nil, p.ID, "inv-200", "https://pay.example/inv-200"); err != nil {
			t.Fatalf("ReplaceIntent failed: %v", err)
		}
		replaced, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if replaced.ExternalID != "inv-200" {
			t.Fatalf("expected replaced invoice id, got %q", replaced.ExternalID)
		}
	})

	t.Run("should move status only from an allowed state", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment()
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}

		paidAt := time.Now().UTC()
		moved, err := repo.UpdateStatusIf(ctx, nil, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed},
			model.PaymentStatusCompleted, &paidAt)
		if err != nil {
			t.Fatalf("UpdateStatusIf failed: %v", err)
		}
		if !moved {
			t.Fatal("expected transition from PENDING to be applied")
		}

		// Re-applying the same transition must report no rows moved.
		moved, err = repo.UpdateStatusIf(ctx, nil, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed},
			model.PaymentStatusCompleted, &paidAt)
		if err != nil {
			t.Fatalf("second UpdateStatusIf failed: %v", err)
		}
		if moved {
			t.Fatal("COMPLETED payment must not be moved again")
		}

		found, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Status != model.PaymentStatusCompleted {
			t.Fatalf("expected COMPLETED, got %s", found.Status)
		}
		if found.PaidAt == nil {
			t.Fatal("expected paid_at to be set")
		}
	})

	t.Run("should keep paid_at across later updates", func(t *testing.T) {
		cleanup(t)
		p := newTestPayment()
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		paidAt := time.Now().UTC().Add(-time.Hour)
		if _, err := repo.UpdateStatusIf(ctx, nil, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusCompleted, &paidAt); err != nil {
			t.Fatalf("UpdateStatusIf failed: %v", err)
		}

		// nil paidAt coalesces to the stored value.
		if _, err := repo.UpdateStatusIf(ctx, nil, p.ID,
			[]model.PaymentStatus{model.PaymentStatusCompleted}, model.PaymentStatusCompleted, nil); err != nil {
			t.Fatalf("UpdateStatusIf failed: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.PaidAt == nil || found.PaidAt.Sub(paidAt).Abs() > time.Second {
			t.Fatalf("paid_at was not preserved: %v", found.PaidAt)
		}
	})

	t.Run("should list only stale pending payments", func(t *testing.T) {
		cleanup(t)
		stale := newTestPayment()
		stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
		stale.UpdatedAt = stale.CreatedAt
		fresh := newTestPayment()
		done := newTestPayment()
		done.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
		done.Status = model.PaymentStatusCompleted

		for _, p := range []*model.Payment{stale, fresh, done} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		got, err := repo.ListPendingOlderThan(ctx, nil, time.Now().UTC().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ListPendingOlderThan failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != stale.ID {
			t.Fatalf("expected only the stale pending payment, got %d rows", len(got))
		}
	})
}
