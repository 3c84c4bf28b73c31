package adapter

import (
	"context"
	"io"
	"time"

	"resource-marketplace/internal/domain/model"
)

// LicenseSeed is the deterministic input for license key derivation.
// Re-deriving from the same seed must yield the same key.
type LicenseSeed struct {
	ResourceID      string
	UserID          string
	Email           string
	LicenseType     string
	ActivationLimit int
}

type LicenseKeyGenerator interface {
	Generate(seed LicenseSeed) string
}

// DownloadClaims is the decoded content of a download token.
type DownloadClaims struct {
	PurchaseID string
	UserID     string
	ExpiresAt  time.Time
}

// DownloadTokenIssuer mints and verifies scoped, expiring download tokens.
// Verify returns domain.ErrTokenExpired / domain.ErrTokenInvalid.
type DownloadTokenIssuer interface {
	Issue(purchaseID, userID string, ttl time.Duration) (token string, expiresAt time.Time, err error)
	Verify(token string) (*DownloadClaims, error)
}

// Notifier delivers the one-time entitlement message. Delivery is
// best-effort: a failure is logged, never rolled back into the entitlement.
type Notifier interface {
	SendEntitlement(ctx context.Context, to *model.User, res *model.Resource, licenseKey, downloadURL string, expires time.Time) error
}

// FileStore opens protected resource files for streaming to entitled users.
type FileStore interface {
	Open(ctx context.Context, fileKey string) (rc io.ReadCloser, size int64, err error)
}
