package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Checkout validation
	ErrResourceNotPurchasable = errors.New("resource is not purchasable")
	ErrPriceMismatch          = errors.New("amount does not match resource price")
	ErrAlreadyOwned           = errors.New("resource already purchased")

	// Gateway
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")

	// Reconciliation
	ErrPaymentNotFound   = errors.New("payment not found for callback")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrForbidden         = errors.New("operation not permitted for this user")

	// Downloads
	ErrTokenInvalid      = errors.New("download token is invalid")
	ErrTokenExpired      = errors.New("download token has expired")
	ErrDownloadForbidden = errors.New("download not permitted")

	// Throttling
	ErrRateLimited = errors.New("too many requests")
	ErrLockBusy    = errors.New("resource lock is held elsewhere")
)
