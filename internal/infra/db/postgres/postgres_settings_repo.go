package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/repository"
)

var _ repository.GatewaySettingsRepository = (*settingsRepo)(nil)

// settingsRepo reads the single active gateway configuration row. Writes
// happen through the admin surface, not here.
type settingsRepo struct{ pool *pgxpool.Pool }

func NewSettingsRepo(pool *pgxpool.Pool) *settingsRepo {
	return &settingsRepo{pool: pool}
}

func (r *settingsRepo) Load(ctx context.Context, tx repository.Tx) (*model.GatewayConfig, error) {
	const q = `SELECT api_key, webhook_secret, live, base_url, retry_count, retry_delay_seconds, updated_at
  FROM gateway_settings WHERE active LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}

	var cfg model.GatewayConfig
	var retryDelaySec int
	if err := row.Scan(&cfg.APIKey, &cfg.WebhookSecret, &cfg.Live, &cfg.BaseURL, &cfg.RetryCount, &retryDelaySec, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGatewayNotConfigured
		}
		return nil, domain.ErrReadDatabaseRow
	}
	cfg.RetryDelay = time.Duration(retryDelaySec) * time.Second
	if cfg.APIKey == "" {
		// A row with an empty key is as unusable as no row at all.
		return nil, domain.ErrGatewayNotConfigured
	}
	return &cfg, nil
}
