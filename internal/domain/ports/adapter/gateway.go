package adapter

import (
	"context"

	"resource-marketplace/internal/domain/model"
)

// IntentRequest carries everything the gateway needs to open a hosted
// invoice or direct charge for one payment attempt.
type IntentRequest struct {
	Amount      int64
	Currency    string
	CustomerRef string // local correlation id, echoed back in callbacks
	Name        string
	Email       string
	Description string
	CallbackURL string
	CardToken   string // optional saved-card token
}

// Intent is the gateway's acceptance of a payment request.
type Intent struct {
	ExternalID string // gateway invoice/transaction number
	PaymentURL string // hosted checkout page, empty for direct charges
}

// GatewayStatus is the authoritative answer of the gateway's status
// endpoint. Status is the provider's raw vocabulary; mapping to local
// payment statuses happens in exactly one place in the reconcile use case.
type GatewayStatus struct {
	Status        string
	TransactionID string
	Amount        int64
}

// PaymentGateway is the port for the external payment provider. Push data
// (webhooks, redirects) is untrusted; only QueryStatus is authoritative.
// Credentials come from the settings store per call, so an admin key
// rotation takes effect without a restart.
type PaymentGateway interface {
	Name() string
	CreateIntent(ctx context.Context, cfg *model.GatewayConfig, req IntentRequest) (*Intent, error)
	QueryStatus(ctx context.Context, cfg *model.GatewayConfig, externalID string) (*GatewayStatus, error)
}
