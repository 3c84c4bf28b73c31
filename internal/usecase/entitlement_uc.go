// File: internal/usecase/entitlement_uc.go
package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
	"resource-marketplace/internal/infra/metrics"
)

const entitlementNotifyKind = "entitlement"

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	// Issue produces the license key and download token for a completed
	// purchase. Idempotent: re-invocation returns the stored key and a fresh
	// token, and the notification goes out at most once.
	Issue(ctx context.Context, purchaseID string) (*model.Purchase, error)
	// RefreshDownload reissues the download capability for an active
	// purchase owned by the caller.
	RefreshDownload(ctx context.Context, purchaseID, userID string) (string, time.Time, error)
}

type entitlementUC struct {
	purchases repository.PurchaseRepository
	notified  repository.NotificationLogRepository
	users     adapter.UserDirectory
	catalog   adapter.ResourceCatalog
	keygen    adapter.LicenseKeyGenerator
	tokens    adapter.DownloadTokenIssuer
	notifier  adapter.Notifier

	baseURL  string
	tokenTTL time.Duration
	log      *zerolog.Logger
}

func NewEntitlementUseCase(
	purchases repository.PurchaseRepository,
	notified repository.NotificationLogRepository,
	users adapter.UserDirectory,
	catalog adapter.ResourceCatalog,
	keygen adapter.LicenseKeyGenerator,
	tokens adapter.DownloadTokenIssuer,
	notifier adapter.Notifier,
	baseURL string,
	tokenTTL time.Duration,
	logger *zerolog.Logger,
) *entitlementUC {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &entitlementUC{
		purchases: purchases,
		notified:  notified,
		users:     users,
		catalog:   catalog,
		keygen:    keygen,
		tokens:    tokens,
		notifier:  notifier,
		baseURL:   baseURL,
		tokenTTL:  tokenTTL,
		log:       logger,
	}
}

func (u *entitlementUC) Issue(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	pu, err := u.purchases.FindByID(ctx, nil, purchaseID)
	if err != nil {
		return nil, err
	}
	if pu.Status != model.PurchaseStatusCompleted {
		return nil, domain.ErrInvalidArgument
	}

	user, err := u.users.Lookup(ctx, pu.UserID)
	if err != nil {
		return nil, err
	}
	res, err := u.catalog.Lookup(ctx, pu.ResourceID)
	if err != nil {
		return nil, err
	}

	// License key: derive only when none stored. SetLicenseIfEmpty returns
	// whichever key won a concurrent race, so the user never sees two keys.
	if pu.LicenseKey == "" {
		derived := u.keygen.Generate(adapter.LicenseSeed{
			ResourceID:      pu.ResourceID,
			UserID:          pu.UserID,
			Email:           user.Email,
			LicenseType:     "single",
			ActivationLimit: 1,
		})
		stored, err := u.purchases.SetLicenseIfEmpty(ctx, nil, pu.ID, derived)
		if err != nil {
			return nil, err
		}
		pu.LicenseKey = stored
		metrics.IncEntitlementIssued()
	}

	downloadURL, expires, err := u.issueDownload(ctx, pu, res)
	if err != nil {
		return nil, err
	}
	pu.DownloadURL = downloadURL
	pu.DownloadExpires = &expires

	u.notifyOnce(ctx, pu, user, res, downloadURL, expires)
	return pu, nil
}

func (u *entitlementUC) RefreshDownload(ctx context.Context, purchaseID, userID string) (string, time.Time, error) {
	pu, err := u.purchases.FindByID(ctx, nil, purchaseID)
	if err != nil {
		return "", time.Time{}, err
	}
	if pu.UserID != userID {
		return "", time.Time{}, domain.ErrForbidden
	}
	if pu.Status != model.PurchaseStatusCompleted || pu.LicenseStatus != model.LicenseStatusActive {
		return "", time.Time{}, domain.ErrDownloadForbidden
	}
	res, err := u.catalog.Lookup(ctx, pu.ResourceID)
	if err != nil {
		return "", time.Time{}, err
	}
	return u.issueDownload(ctx, pu, res)
}

// issueDownload mints a fresh token and records the capability on the
// purchase. Tokens are reissued per fetch, not reusable forever.
func (u *entitlementUC) issueDownload(ctx context.Context, pu *model.Purchase, res *model.Resource) (string, time.Time, error) {
	tok, expires, err := u.tokens.Issue(pu.ID, pu.UserID, u.tokenTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	downloadURL := fmt.Sprintf("%s/api/v1/download/%s?token=%s", u.baseURL, res.Slug, url.QueryEscape(tok))
	if err := u.purchases.SetDownload(ctx, nil, pu.ID, downloadURL, expires); err != nil {
		return "", time.Time{}, err
	}
	return downloadURL, expires, nil
}

// notifyOnce sends the entitlement email at most once per purchase.
// A delivery failure is logged and absorbed: the entitlement itself is the
// source of truth, the email is best-effort.
func (u *entitlementUC) notifyOnce(ctx context.Context, pu *model.Purchase, user *model.User, res *model.Resource, downloadURL string, expires time.Time) {
	sent, err := u.notified.Exists(ctx, nil, pu.ID, entitlementNotifyKind)
	if err != nil {
		u.log.Error().Err(err).Str("purchase_id", pu.ID).Msg("notification dedupe check")
		return
	}
	if sent {
		metrics.IncNotify("skipped")
		return
	}
	if err := u.notifier.SendEntitlement(ctx, user, res, pu.LicenseKey, downloadURL, expires); err != nil {
		metrics.IncNotify("error")
		u.log.Warn().Err(err).Str("purchase_id", pu.ID).Msg("entitlement notification failed")
		return
	}
	metrics.IncNotify("sent")
	if err := u.notified.Record(ctx, nil, pu.ID, pu.UserID, entitlementNotifyKind); err != nil {
		u.log.Error().Err(err).Str("purchase_id", pu.ID).Msg("record notification")
	}
}
