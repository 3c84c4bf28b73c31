package repository

import (
	"context"

	"resource-marketplace/internal/domain/model"
)

type PaymentMethodRepository interface {
	Save(ctx context.Context, qx Tx, m *model.SavedPaymentMethod) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.SavedPaymentMethod, error)
	ListByUser(ctx context.Context, qx Tx, userID string) ([]*model.SavedPaymentMethod, error)
	Delete(ctx context.Context, qx Tx, id string) error
}
