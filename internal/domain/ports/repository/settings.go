package repository

import (
	"context"

	"resource-marketplace/internal/domain/model"
)

// GatewaySettingsRepository reads the single active gateway configuration
// row. Load returns domain.ErrGatewayNotConfigured when no row exists;
// callers treat that as a service-unavailable condition, never as license
// to proceed with default credentials.
type GatewaySettingsRepository interface {
	Load(ctx context.Context, qx Tx) (*model.GatewayConfig, error)
}
