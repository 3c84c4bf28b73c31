package model

import "time"

type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "COMPLETED"
	PurchaseStatusFailed    PurchaseStatus = "FAILED" // invalidated after a late failure signal
)

type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "ACTIVE"
	LicenseStatusRevoked LicenseStatus = "REVOKED"
)

// Purchase is the entitlement record granting a user access to a resource.
// It is created only after the owning Payment is verified COMPLETED, and at
// most one COMPLETED purchase may exist per (user, resource) pair.
type Purchase struct {
	ID         string // UUID
	UserID     string
	ResourceID string
	PaymentID  string // owning Payment

	Status PurchaseStatus

	// LicenseKey is set exactly once by the entitlement issuer and never
	// regenerated; an already-activated key must stay valid.
	LicenseKey    string
	LicenseStatus LicenseStatus

	// The issued download capability. Re-issuable while the purchase is
	// active; each refresh replaces URL and expiry together.
	DownloadURL     string
	DownloadExpires *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
