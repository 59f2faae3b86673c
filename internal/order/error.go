package order

import "storefront-be/internal/apperror"

var (
	ErrNoItems               = apperror.New(apperror.KindValidation, "NO_ITEMS", "order must contain at least one item")
	ErrInvalidAddress        = apperror.New(apperror.KindValidation, "INVALID_ADDRESS", "shipping address is incomplete or the phone is invalid")
	ErrProductNotFound       = apperror.New(apperror.KindValidation, "PRODUCT_NOT_FOUND", "a product in the order is not available")
	ErrShippingNotFound      = apperror.New(apperror.KindValidation, "SHIPPING_OPTION_NOT_FOUND", "shipping option is not available")
	ErrPaymentMethodInvalid  = apperror.New(apperror.KindValidation, "PAYMENT_METHOD_INVALID", "payment method is not available")
	ErrPaymentMethodDisabled = apperror.New(apperror.KindValidation, "PAYMENT_METHOD_DISABLED", "payment method is currently disabled")
	ErrOrderNumberCollision  = apperror.New(apperror.KindConflict, "ORDER_NUMBER_COLLISION", "could not allocate an order number, please retry")
	ErrOrderNotFound         = apperror.New(apperror.KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrInvalidStatus         = apperror.New(apperror.KindValidation, "INVALID_STATUS", "unknown order status")
	ErrIllegalTransition     = apperror.New(apperror.KindConflict, "ILLEGAL_TRANSITION", "order cannot move to that status")
	ErrHistoryDiverged       = apperror.New(apperror.KindIntegrity, "HISTORY_DIVERGED", "order status history does not match the order")
)
