package mail

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs instead of sending. Used when mail.endpoint is unset
// (local development, tests).
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) SendEntitlement(_ context.Context, to *model.User, res *model.Resource, licenseKey, downloadURL string, expires time.Time) error {
	n.log.Info().
		Str("to", to.Email).
		Str("resource", res.Slug).
		Str("license_key", licenseKey).
		Time("expires", expires).
		Msg("noop notifier: entitlement email suppressed")
	return nil
}
