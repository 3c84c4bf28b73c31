// File: internal/usecase/payment_method_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentMethodUseCase = (*paymentMethodUC)(nil)

type PaymentMethodUseCase interface {
	Save(ctx context.Context, userID, gatewayToken, brand, last4 string) (*model.SavedPaymentMethod, error)
	List(ctx context.Context, userID string) ([]*model.SavedPaymentMethod, error)
	Delete(ctx context.Context, userID, methodID string) error
}

type paymentMethodUC struct {
	methods repository.PaymentMethodRepository
}

func NewPaymentMethodUseCase(methods repository.PaymentMethodRepository) *paymentMethodUC {
	return &paymentMethodUC{methods: methods}
}

func (u *paymentMethodUC) Save(ctx context.Context, userID, gatewayToken, brand, last4 string) (*model.SavedPaymentMethod, error) {
	if strings.TrimSpace(gatewayToken) == "" {
		return nil, domain.ErrInvalidArgument
	}
	m := &model.SavedPaymentMethod{
		ID:           uuid.NewString(),
		UserID:       userID,
		GatewayToken: gatewayToken,
		Brand:        strings.ToLower(brand),
		Last4:        last4,
		CreatedAt:    time.Now(),
	}
	if err := u.methods.Save(ctx, nil, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (u *paymentMethodUC) List(ctx context.Context, userID string) ([]*model.SavedPaymentMethod, error) {
	return u.methods.ListByUser(ctx, nil, userID)
}

func (u *paymentMethodUC) Delete(ctx context.Context, userID, methodID string) error {
	m, err := u.methods.FindByID(ctx, nil, methodID)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return domain.ErrForbidden
	}
	return u.methods.Delete(ctx, nil, methodID)
}
