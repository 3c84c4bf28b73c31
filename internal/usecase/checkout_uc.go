// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
	"resource-marketplace/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// Initiate validates a purchase request, opens a Payment and asks the
	// gateway for a hosted invoice. It returns the payment and the redirect
	// URL for the gateway's checkout page.
	Initiate(ctx context.Context, userID, resourceID string, amount int64, savedMethodID string) (*model.Payment, string, error)
}

type checkoutUC struct {
	payments repository.PaymentRepository
	events   repository.PaymentEventRepository
	purchase repository.PurchaseRepository
	methods  repository.PaymentMethodRepository
	settings repository.GatewaySettingsRepository
	catalog  adapter.ResourceCatalog
	users    adapter.UserDirectory
	gateway  adapter.PaymentGateway

	callbackURL    string
	gatewayTimeout time.Duration
	log            *zerolog.Logger
}

func NewCheckoutUseCase(
	payments repository.PaymentRepository,
	events repository.PaymentEventRepository,
	purchase repository.PurchaseRepository,
	methods repository.PaymentMethodRepository,
	settings repository.GatewaySettingsRepository,
	catalog adapter.ResourceCatalog,
	users adapter.UserDirectory,
	gateway adapter.PaymentGateway,
	callbackURL string,
	gatewayTimeout time.Duration,
	logger *zerolog.Logger,
) *checkoutUC {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	return &checkoutUC{
		payments:       payments,
		events:         events,
		purchase:       purchase,
		methods:        methods,
		settings:       settings,
		catalog:        catalog,
		users:          users,
		gateway:        gateway,
		callbackURL:    callbackURL,
		gatewayTimeout: gatewayTimeout,
		log:            logger,
	}
}

func (u *checkoutUC) Initiate(ctx context.Context, userID, resourceID string, amount int64, savedMethodID string) (*model.Payment, string, error) {
	// Preconditions run in order; each failure is a distinct error and no
	// gateway call happens until all pass.
	res, err := u.catalog.Lookup(ctx, resourceID)
	if err != nil {
		return nil, "", err
	}
	if !res.IsPublished || res.IsFree {
		return nil, "", domain.ErrResourceNotPurchasable
	}
	// The client-supplied amount must equal the canonical price. Reject,
	// never clamp: a mismatch means tampering or a stale page.
	if amount != res.Price {
		return nil, "", domain.ErrPriceMismatch
	}
	if existing, err := u.purchase.FindCompletedByUserResource(ctx, nil, userID, resourceID); err == nil && existing != nil {
		return nil, "", domain.ErrAlreadyOwned
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}
	cfg, err := u.settings.Load(ctx, nil)
	if err != nil {
		return nil, "", err
	}

	user, err := u.users.Lookup(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !user.IsActive {
		return nil, "", domain.ErrForbidden
	}

	var cardToken string
	if savedMethodID != "" {
		method, err := u.methods.FindByID(ctx, nil, savedMethodID)
		if err != nil {
			return nil, "", err
		}
		if method.UserID != userID {
			return nil, "", domain.ErrForbidden
		}
		cardToken = method.GatewayToken
	}

	currency := res.Currency
	if currency == "" {
		currency = "SAR"
	}
	now := time.Now()
	p := &model.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		ResourceID:  resourceID,
		Amount:      res.Price,
		Currency:    currency,
		Status:      model.PaymentStatusPending,
		CustomerRef: ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, "", err
	}
	u.appendEvent(ctx, p.ID, model.EventCreated, map[string]any{
		"amount": p.Amount, "currency": p.Currency, "resource_id": resourceID,
	})
	metrics.IncPayment(string(model.PaymentStatusPending))

	// The gateway call is bounded: the surrounding request must not hang on
	// a slow provider.
	gctx, cancel := context.WithTimeout(ctx, u.gatewayTimeout)
	defer cancel()
	intent, err := u.gateway.CreateIntent(gctx, cfg, adapter.IntentRequest{
		Amount:      p.Amount,
		Currency:    p.Currency,
		CustomerRef: p.CustomerRef,
		Name:        user.Name,
		Email:       user.Email,
		Description: fmt.Sprintf("Purchase of %s", res.Title),
		CallbackURL: u.callbackURL,
		CardToken:   cardToken,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			// Indeterminate: the gateway may have accepted the intent. Leave
			// the payment PENDING for reconciliation to resolve by polling.
			u.appendEvent(ctx, p.ID, model.EventGatewayTimeout, map[string]any{"error": err.Error()})
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("gateway intent call indeterminate")
			return p, "", domain.ErrGatewayUnavailable
		}
		// Explicit rejection: the payment row stays for support/audit.
		if _, uerr := u.payments.UpdateStatusIf(ctx, nil, p.ID,
			[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentStatusFailed, nil); uerr != nil {
			u.log.Error().Err(uerr).Str("payment_id", p.ID).Msg("mark payment failed after gateway rejection")
		}
		p.Status = model.PaymentStatusFailed
		u.appendEvent(ctx, p.ID, model.EventGatewayRejected, map[string]any{"error": err.Error()})
		metrics.IncPayment(string(model.PaymentStatusFailed))
		return p, "", err
	}

	if err := u.payments.SetIntent(ctx, nil, p.ID, intent.ExternalID, intent.PaymentURL); err != nil {
		return nil, "", err
	}
	p.ExternalID = intent.ExternalID
	p.PaymentURL = intent.PaymentURL
	u.appendEvent(ctx, p.ID, model.EventIntentAccepted, map[string]any{
		"external_id": intent.ExternalID, "payment_url": intent.PaymentURL,
	})
	return p, intent.PaymentURL, nil
}

// appendEvent never fails the surrounding operation: the audit log is
// best-effort on the write path and authoritative on the read path.
func (u *checkoutUC) appendEvent(ctx context.Context, paymentID, kind string, payload map[string]any) {
	ev := &model.PaymentEvent{PaymentID: paymentID, Kind: kind, Payload: payload}
	if err := u.events.Append(ctx, nil, ev); err != nil {
		u.log.Error().Err(err).Str("payment_id", paymentID).Str("kind", kind).Msg("append payment event")
	}
}
