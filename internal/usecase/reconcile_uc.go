// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
	"resource-marketplace/internal/infra/metrics"
	red "resource-marketplace/internal/infra/redis"
)

// ReconcileChannel names the signal source. All three feed the same
// transition logic; none is trusted without a gateway status query.
type ReconcileChannel string

const (
	ChannelWebhook  ReconcileChannel = "webhook"
	ChannelRedirect ReconcileChannel = "redirect"
	ChannelPoll     ReconcileChannel = "poll"
)

// Signal is one status report about a payment, from any channel. The
// claimed status is recorded for audit but never drives the transition.
type Signal struct {
	Channel       ReconcileChannel
	ExternalID    string
	CustomerRef   string
	ClaimedStatus string
	Raw           map[string]any
}

// Outcome describes what a reconcile attempt did.
type Outcome struct {
	Payment  *model.Payment
	Purchase *model.Purchase
	Changed  bool // whether Payment.status moved this attempt
}

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Reconcile verifies a signal against the gateway and applies an
	// at-most-once transition to Payment and Purchase.
	Reconcile(ctx context.Context, sig Signal) (*Outcome, error)
	// Poll re-verifies a payment by its local id (status page, support).
	Poll(ctx context.Context, paymentID string) (*Outcome, error)
	// HasAccess reports whether a COMPLETED purchase exists for the payment's
	// (user, resource) pair.
	HasAccess(ctx context.Context, p *model.Payment) (bool, error)
	// Cancel is the user-initiated PENDING -> CANCELLED transition.
	Cancel(ctx context.Context, paymentID, userID string) (*model.Payment, error)
	// Retry is the only road out of FAILED: an explicit user action that
	// moves the payment back to PENDING and opens a fresh gateway intent.
	Retry(ctx context.Context, paymentID, userID string) (*model.Payment, string, error)
	// ListStalePending reports payments stuck in PENDING past the configured
	// window. Reporting only: a stuck payment is never auto-failed.
	ListStalePending(ctx context.Context, limit int) ([]*model.Payment, error)
}

type reconcileUC struct {
	payments     repository.PaymentRepository
	events       repository.PaymentEventRepository
	purchases    repository.PurchaseRepository
	settings     repository.GatewaySettingsRepository
	gateway      adapter.PaymentGateway
	entitlements EntitlementUseCase
	tm           repository.TransactionManager
	locker       red.Locker

	callbackURL    string
	gatewayTimeout time.Duration
	staleAfter     time.Duration
	log            *zerolog.Logger
}

func NewReconcileUseCase(
	payments repository.PaymentRepository,
	events repository.PaymentEventRepository,
	purchases repository.PurchaseRepository,
	settings repository.GatewaySettingsRepository,
	gateway adapter.PaymentGateway,
	entitlements EntitlementUseCase,
	tm repository.TransactionManager,
	locker red.Locker,
	callbackURL string,
	gatewayTimeout, staleAfter time.Duration,
	logger *zerolog.Logger,
) *reconcileUC {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &reconcileUC{
		payments:       payments,
		events:         events,
		purchases:      purchases,
		settings:       settings,
		gateway:        gateway,
		entitlements:   entitlements,
		tm:             tm,
		locker:         locker,
		callbackURL:    callbackURL,
		gatewayTimeout: gatewayTimeout,
		staleAfter:     staleAfter,
		log:            logger,
	}
}

// mapGatewayStatus is the single place the gateway's status vocabulary is
// interpreted. Every channel goes through it, so the channels can never
// disagree on what a provider status means.
func mapGatewayStatus(s string) model.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "completed", "success":
		return model.PaymentStatusCompleted
	case "failed", "declined", "rejected":
		return model.PaymentStatusFailed
	default:
		// Pending, CanceledByUser, unknown vocabulary: no verified outcome.
		return model.PaymentStatusPending
	}
}

func (u *reconcileUC) Reconcile(ctx context.Context, sig Signal) (*Outcome, error) {
	defer func(start time.Time) {
		metrics.ReconcileDuration.WithLabelValues(string(sig.Channel)).Observe(time.Since(start).Seconds())
	}(time.Now())

	p, err := u.locate(ctx, sig)
	if err != nil {
		metrics.IncReconcile(string(sig.Channel), "not_found")
		u.log.Warn().
			Str("channel", string(sig.Channel)).
			Str("external_id", sig.ExternalID).
			Str("customer_ref", sig.CustomerRef).
			Msg("callback for unknown payment")
		return nil, domain.ErrPaymentNotFound
	}

	// Audit first, unconditionally. The raw callback lands in the log even
	// when the attempt changes nothing.
	u.appendEvent(ctx, p.ID, model.EventCallbackReceived, map[string]any{
		"channel": string(sig.Channel),
		"claimed": sig.ClaimedStatus,
		"raw":     sig.Raw,
	})

	outcome, err := u.verifyAndApply(ctx, sig.Channel, p)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (u *reconcileUC) Poll(ctx context.Context, paymentID string) (*Outcome, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() || p.ExternalID == "" {
		return &Outcome{Payment: p, Changed: false}, nil
	}
	return u.verifyAndApply(ctx, ChannelPoll, p)
}

func (u *reconcileUC) HasAccess(ctx context.Context, p *model.Payment) (bool, error) {
	_, err := u.purchases.FindCompletedByUserResource(ctx, nil, p.UserID, p.ResourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// verifyAndApply queries the gateway, maps its answer, and applies the
// mapped outcome at most once.
func (u *reconcileUC) verifyAndApply(ctx context.Context, channel ReconcileChannel, p *model.Payment) (*Outcome, error) {
	cfg, err := u.settings.Load(ctx, nil)
	if err != nil {
		metrics.IncReconcile(string(channel), "local_error")
		return nil, err
	}
	if p.ExternalID == "" {
		// The intent was never acknowledged; there is nothing to query yet.
		metrics.IncReconcile(string(channel), "pending")
		return &Outcome{Payment: p, Changed: false}, nil
	}

	gctx, cancel := context.WithTimeout(ctx, u.gatewayTimeout)
	defer cancel()
	gs, err := u.gateway.QueryStatus(gctx, cfg, p.ExternalID)
	if err != nil {
		// Indeterminate: local state must not advance on a failed query. The
		// next signal (webhook redelivery, redirect, poll) retries.
		u.appendEvent(ctx, p.ID, model.EventVerifyError, map[string]any{"error": err.Error()})
		metrics.IncReconcile(string(channel), "gateway_error")
		return nil, domain.ErrGatewayUnavailable
	}

	verified := mapGatewayStatus(gs.Status)
	u.appendEvent(ctx, p.ID, model.EventStatusVerified, map[string]any{
		"gateway_status": gs.Status,
		"transaction_id": gs.TransactionID,
		"verified":       string(verified),
	})

	if verified == model.PaymentStatusPending || verified == p.Status {
		// Repeat delivery or no verified outcome yet: idempotent no-op.
		metrics.IncReconcile(string(channel), "noop")
		pu, _ := u.purchases.FindByPayment(ctx, nil, p.ID)
		if verified == model.PaymentStatusCompleted && pu != nil {
			// Re-running issuance picks up a license lost to a transient
			// failure on the first completion. Issue is idempotent, so a
			// redelivery for an already-entitled purchase changes nothing.
			if issued, ierr := u.entitlements.Issue(ctx, pu.ID); ierr == nil {
				pu = issued
			} else {
				u.log.Error().Err(ierr).Str("purchase_id", pu.ID).Msg("entitlement issuance failed")
			}
		}
		return &Outcome{Payment: p, Purchase: pu, Changed: false}, nil
	}

	// Best-effort lock: the DB constraints guarantee convergence, the lock
	// just keeps concurrent duplicates from both hitting the gateway and tx.
	if u.locker != nil {
		key := red.ReconcileLockKey(p.ID)
		if token, lerr := u.locker.TryLock(ctx, key, 10*time.Second); lerr == nil {
			defer func() { _ = u.locker.Unlock(ctx, key, token) }()
		}
	}

	switch verified {
	case model.PaymentStatusCompleted:
		return u.applyCompleted(ctx, channel, p)
	case model.PaymentStatusFailed:
		return u.applyFailed(ctx, channel, p)
	default:
		metrics.IncReconcile(string(channel), "noop")
		return &Outcome{Payment: p, Changed: false}, nil
	}
}

func (u *reconcileUC) applyCompleted(ctx context.Context, channel ReconcileChannel, p *model.Payment) (*Outcome, error) {
	now := time.Now()
	var changed bool
	var pu *model.Purchase
	var conflict model.PaymentStatus

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// A verified "paid" overrides an earlier local FAILED (late success
		// after a transient verify failure); COMPLETED/CANCELLED stay put.
		ok, err := u.payments.UpdateStatusIf(ctx, tx, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed},
			model.PaymentStatusCompleted, &now)
		if err != nil {
			return err
		}
		changed = ok
		if !ok {
			// The CAS refused the move: either a concurrent attempt already
			// completed the payment, or it sits in a state the verified
			// outcome must not override. Only the former may grant access.
			fresh, err := u.payments.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if fresh.Status != model.PaymentStatusCompleted {
				conflict = fresh.Status
				return nil
			}
		}

		existing, err := u.purchases.FindByPayment(ctx, tx, p.ID)
		switch {
		case err == nil:
			pu = existing
			if existing.Status != model.PurchaseStatusCompleted {
				if err := u.purchases.UpdateStatus(ctx, tx, existing.ID, model.PurchaseStatusCompleted); err != nil {
					return err
				}
				pu.Status = model.PurchaseStatusCompleted
			}
		case errors.Is(err, domain.ErrNotFound):
			pu = &model.Purchase{
				ID:            uuid.NewString(),
				UserID:        p.UserID,
				ResourceID:    p.ResourceID,
				PaymentID:     p.ID,
				Status:        model.PurchaseStatusCompleted,
				LicenseStatus: model.LicenseStatusActive,
				CreatedAt:     now,
			}
			// Upsert: if a concurrent delivery inserted first, this becomes
			// an update and both attempts converge on one row.
			if err := u.purchases.Upsert(ctx, tx, pu); err != nil {
				return err
			}
		default:
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncReconcile(string(channel), "local_error")
		return nil, err
	}

	if conflict != "" {
		// The gateway confirmed payment for a record the user cancelled
		// first. No entitlement flows from a cancelled payment; the money
		// side needs a human (refund or manual resolution).
		u.appendEvent(ctx, p.ID, model.EventStatusConflict, map[string]any{
			"stored":   string(conflict),
			"verified": string(model.PaymentStatusCompleted),
		})
		u.log.Warn().
			Str("payment_id", p.ID).
			Str("stored_status", string(conflict)).
			Msg("gateway reports paid for a payment in a terminal state")
		metrics.IncReconcile(string(channel), "conflict")
		p.Status = conflict
		return &Outcome{Payment: p, Changed: false}, nil
	}

	if changed {
		p.Status = model.PaymentStatusCompleted
		p.PaidAt = &now
		metrics.IncPayment(string(model.PaymentStatusCompleted))
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
	}
	metrics.IncReconcile(string(channel), "completed")

	// The purchase row may have been created by the concurrent winner; make
	// sure entitlement runs against whatever row exists. Issue is idempotent.
	if stored, ferr := u.purchases.FindByPayment(ctx, nil, p.ID); ferr == nil {
		pu = stored
	}
	issued, ierr := u.entitlements.Issue(ctx, pu.ID)
	if ierr != nil {
		// Entitlement hiccups never un-complete a verified payment. The next
		// verified-completed signal retries issuance through the no-op path.
		u.log.Error().Err(ierr).Str("purchase_id", pu.ID).Msg("entitlement issuance failed")
	} else {
		pu = issued
	}

	return &Outcome{Payment: p, Purchase: pu, Changed: changed}, nil
}

func (u *reconcileUC) applyFailed(ctx context.Context, channel ReconcileChannel, p *model.Payment) (*Outcome, error) {
	var changed bool
	var pu *model.Purchase

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.payments.UpdateStatusIf(ctx, tx, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusFailed, nil)
		if err != nil {
			return err
		}
		changed = ok

		// Late failure after a premature success signal invalidates the
		// purchase too.
		existing, err := u.purchases.FindByPayment(ctx, tx, p.ID)
		switch {
		case err == nil:
			if existing.Status != model.PurchaseStatusFailed {
				if err := u.purchases.UpdateStatus(ctx, tx, existing.ID, model.PurchaseStatusFailed); err != nil {
					return err
				}
				existing.Status = model.PurchaseStatusFailed
			}
			pu = existing
		case errors.Is(err, domain.ErrNotFound):
			// nothing to invalidate
		default:
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncReconcile(string(channel), "local_error")
		return nil, err
	}

	if changed {
		p.Status = model.PaymentStatusFailed
		metrics.IncPayment(string(model.PaymentStatusFailed))
	}
	metrics.IncReconcile(string(channel), "failed")
	return &Outcome{Payment: p, Purchase: pu, Changed: changed}, nil
}

func (u *reconcileUC) Cancel(ctx context.Context, paymentID, userID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if p.Status != model.PaymentStatusPending {
		return nil, domain.ErrInvalidTransition
	}
	ok, err := u.payments.UpdateStatusIf(ctx, nil, p.ID,
		[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent reconcile; report the fresh state.
		return u.payments.FindByID(ctx, nil, paymentID)
	}
	p.Status = model.PaymentStatusCancelled
	u.appendEvent(ctx, p.ID, model.EventCancelled, map[string]any{"by": "user"})
	metrics.IncPayment(string(model.PaymentStatusCancelled))
	return p, nil
}

func (u *reconcileUC) Retry(ctx context.Context, paymentID, userID string) (*model.Payment, string, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, "", err
	}
	if p.UserID != userID {
		return nil, "", domain.ErrForbidden
	}
	if p.Status != model.PaymentStatusFailed {
		return nil, "", domain.ErrInvalidTransition
	}

	cfg, err := u.settings.Load(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	ok, err := u.payments.UpdateStatusIf(ctx, nil, p.ID,
		[]model.PaymentStatus{model.PaymentStatusFailed}, model.PaymentStatusPending, nil)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", domain.ErrInvalidTransition
	}
	p.Status = model.PaymentStatusPending
	u.appendEvent(ctx, p.ID, model.EventRetried, map[string]any{"by": "user"})

	gctx, cancel := context.WithTimeout(ctx, u.gatewayTimeout)
	defer cancel()
	intent, err := u.gateway.CreateIntent(gctx, cfg, adapter.IntentRequest{
		Amount:      p.Amount,
		Currency:    p.Currency,
		CustomerRef: p.CustomerRef,
		Description: "Payment retry",
		CallbackURL: u.callbackURL,
	})
	if err != nil {
		u.appendEvent(ctx, p.ID, model.EventGatewayTimeout, map[string]any{"error": err.Error()})
		return p, "", domain.ErrGatewayUnavailable
	}
	if err := u.payments.ReplaceIntent(ctx, nil, p.ID, intent.ExternalID, intent.PaymentURL); err != nil {
		return nil, "", err
	}
	p.ExternalID = intent.ExternalID
	p.PaymentURL = intent.PaymentURL
	u.appendEvent(ctx, p.ID, model.EventIntentAccepted, map[string]any{
		"external_id": intent.ExternalID, "payment_url": intent.PaymentURL, "retry": true,
	})
	return p, intent.PaymentURL, nil
}

func (u *reconcileUC) ListStalePending(ctx context.Context, limit int) ([]*model.Payment, error) {
	cutoff := time.Now().Add(-u.staleAfter)
	return u.payments.ListPendingOlderThan(ctx, nil, cutoff, limit)
}

// locate resolves the payment a signal refers to: gateway invoice id first,
// falling back to the local correlation ref. Callbacks describe payments;
// they never originate them.
func (u *reconcileUC) locate(ctx context.Context, sig Signal) (*model.Payment, error) {
	if sig.ExternalID != "" {
		if p, err := u.payments.FindByExternalID(ctx, nil, sig.ExternalID); err == nil {
			return p, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if sig.CustomerRef != "" {
		if p, err := u.payments.FindByCustomerRef(ctx, nil, sig.CustomerRef); err == nil {
			return p, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

func (u *reconcileUC) appendEvent(ctx context.Context, paymentID, kind string, payload map[string]any) {
	ev := &model.PaymentEvent{PaymentID: paymentID, Kind: kind, Payload: payload}
	if err := u.events.Append(ctx, nil, ev); err != nil {
		u.log.Error().Err(err).Str("payment_id", paymentID).Str("kind", kind).Msg("append payment event")
	}
}
