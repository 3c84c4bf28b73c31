package model

import "time"

// SavedPaymentMethod is a tokenized card reference owned by a user. It has
// an independent lifecycle (created on opt-in save, deleted on request) and
// is consumed by checkout when present; it plays no part in reconciliation.
type SavedPaymentMethod struct {
	ID           string // UUID
	UserID       string
	GatewayToken string // opaque stored-card token issued by the gateway
	Brand        string // e.g. "mada", "visa"
	Last4        string
	CreatedAt    time.Time
}
