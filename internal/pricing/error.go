package pricing

import "storefront-be/internal/apperror"

var (
	ErrInvalidQuantity        = apperror.New(apperror.KindValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidPrice           = apperror.New(apperror.KindValidation, "INVALID_PRICE", "unit price must not be negative")
	ErrShippingOptionRequired = apperror.New(apperror.KindValidation, "SHIPPING_OPTION_REQUIRED", "a shipping option must be selected")
	ErrInvalidShippingOption  = apperror.New(apperror.KindValidation, "INVALID_SHIPPING_OPTION", "shipping option is misconfigured")
	ErrAmountOverflow         = apperror.New(apperror.KindValidation, "AMOUNT_OVERFLOW", "order amount is too large")
)
