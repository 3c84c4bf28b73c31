// File: internal/usecase/download_uc.go
package usecase

import (
	"context"
	"errors"
	"path"

	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
	"resource-marketplace/internal/infra/metrics"
)

// Grant is a positive download-gate decision: which file to stream and for
// which purchase.
type Grant struct {
	PurchaseID string
	ResourceID string
	FileKey    string
	FileName   string
}

// Compile-time check
var _ DownloadUseCase = (*downloadUC)(nil)

type DownloadUseCase interface {
	// Authorize validates a presented token against the purchase record.
	// Rejections carry a category (expired / unauthorized / not found) and
	// deliberately nothing more specific.
	Authorize(ctx context.Context, slug, token string) (*Grant, error)
}

type downloadUC struct {
	purchases repository.PurchaseRepository
	catalog   adapter.ResourceCatalog
	tokens    adapter.DownloadTokenIssuer
	log       *zerolog.Logger
}

func NewDownloadUseCase(
	purchases repository.PurchaseRepository,
	catalog adapter.ResourceCatalog,
	tokens adapter.DownloadTokenIssuer,
	logger *zerolog.Logger,
) *downloadUC {
	return &downloadUC{purchases: purchases, catalog: catalog, tokens: tokens, log: logger}
}

func (u *downloadUC) Authorize(ctx context.Context, slug, token string) (*Grant, error) {
	claims, err := u.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			metrics.IncDownload("expired")
			return nil, domain.ErrTokenExpired
		}
		metrics.IncDownload("invalid")
		return nil, domain.ErrTokenInvalid
	}

	pu, err := u.purchases.FindByID(ctx, nil, claims.PurchaseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncDownload("not_found")
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	// Ownership: the token's embedded user must match the purchase owner.
	// A mismatch is logged for investigation but answered with the same
	// flat rejection a revoked license gets.
	if pu.UserID != claims.UserID {
		u.log.Warn().
			Str("purchase_id", pu.ID).
			Str("token_user", claims.UserID).
			Str("owner", pu.UserID).
			Msg("download token ownership mismatch")
		metrics.IncDownload("forbidden")
		return nil, domain.ErrDownloadForbidden
	}
	if pu.Status != model.PurchaseStatusCompleted || pu.LicenseStatus != model.LicenseStatusActive {
		metrics.IncDownload("forbidden")
		return nil, domain.ErrDownloadForbidden
	}

	res, err := u.catalog.Lookup(ctx, pu.ResourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncDownload("not_found")
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if res.Slug != slug {
		metrics.IncDownload("forbidden")
		return nil, domain.ErrDownloadForbidden
	}

	metrics.IncDownload("ok")
	return &Grant{
		PurchaseID: pu.ID,
		ResourceID: res.ID,
		FileKey:    res.FileKey,
		FileName:   path.Base(res.FileKey),
	}, nil
}
