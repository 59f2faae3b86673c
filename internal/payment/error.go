package payment

import "storefront-be/internal/apperror"

var (
	ErrMethodNotFound      = apperror.New(apperror.KindNotFound, "PAYMENT_METHOD_NOT_FOUND", "payment method not found")
	ErrMethodMisconfigured = apperror.New(apperror.KindValidation, "PAYMENT_METHOD_MISCONFIGURED", "payment method is missing its account number")
	ErrOrderNotFound       = apperror.New(apperror.KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrSessionNotFound     = apperror.New(apperror.KindNotFound, "PAYMENT_SESSION_NOT_FOUND", "payment session not found")
	ErrAlreadyResolved     = apperror.New(apperror.KindConflict, "PAYMENT_ALREADY_RESOLVED", "payment for this order is already resolved")
	ErrNotManualMethod     = apperror.New(apperror.KindValidation, "NOT_MANUAL_METHOD", "order is paid through a hosted gateway")
	ErrUnsupportedProvider = apperror.New(apperror.KindValidation, "UNSUPPORTED_PROVIDER", "payment provider is not supported")
	ErrInvalidCallback     = apperror.New(apperror.KindValidation, "INVALID_CALLBACK", "payment callback is malformed")
	ErrGatewayRejected     = apperror.New(apperror.KindRejected, "GATEWAY_REJECTED", "payment was rejected by the gateway")
	ErrGatewayUnreachable  = apperror.New(apperror.KindTransient, "GATEWAY_UNREACHABLE", "payment gateway could not be reached")
	ErrPaymentUnconfirmed  = apperror.New(apperror.KindTransient, "PAYMENT_UNCONFIRMED", "payment result is not confirmed yet")
	ErrAmountMismatch      = apperror.New(apperror.KindIntegrity, "PAYMENT_AMOUNT_MISMATCH", "gateway amount does not match the order total")
)
