package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"   // created locally; awaiting gateway outcome
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // verified paid at the gateway
	PaymentStatusFailed    PaymentStatus = "FAILED"    // verified failed; may be retried by the user
	PaymentStatusCancelled PaymentStatus = "CANCELLED" // user cancelled before completion
)

// Terminal reports whether no further transition is allowed for the status.
// FAILED is not terminal: an explicit user retry moves it back to PENDING.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

// Payment records one attempt to collect money for one resource purchase.
// Rows are never deleted; they are the financial audit trail.
type Payment struct {
	ID         string // UUID
	UserID     string // external user directory id
	ResourceID string // external catalog id
	Amount     int64  // minor units (halalas), fixed at creation
	Currency   string // e.g. "SAR"
	Status     PaymentStatus

	// ExternalID is the gateway's invoice/transaction number. Empty until
	// the gateway accepts the intent; set exactly once.
	ExternalID string
	// CustomerRef is a locally generated ULID, unique per payment. Callbacks
	// that arrive before ExternalID is persisted are matched on it.
	CustomerRef string
	// PaymentURL is the gateway's hosted checkout page, if any.
	PaymentURL string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time // set when verified COMPLETED
}

// Payment event kinds. Events are append-only; see PaymentEvent.
const (
	EventCreated          = "created"
	EventIntentAccepted   = "intent_accepted"
	EventGatewayRejected  = "gateway_rejected"
	EventGatewayTimeout   = "gateway_timeout"
	EventCallbackReceived = "callback_received"
	EventStatusVerified   = "status_verified"
	EventStatusConflict   = "status_conflict"
	EventVerifyError      = "verify_error"
	EventCancelled        = "cancelled"
	EventRetried          = "retried"
)

// PaymentEvent is one entry in a payment's append-only lifecycle log.
// The log is required for audit and for diagnosing duplicate or
// out-of-order callbacks; entries are never overwritten.
type PaymentEvent struct {
	ID        string // UUID
	PaymentID string
	Kind      string
	Payload   map[string]any // raw callback bodies, gateway responses, etc.
	CreatedAt time.Time
}
