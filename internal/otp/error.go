package otp

import "storefront-be/internal/apperror"

var (
	ErrInvalidPhone     = apperror.New(apperror.KindValidation, "INVALID_PHONE", "phone number is not a valid mobile number")
	ErrRateLimited      = apperror.New(apperror.KindRateLimited, "OTP_RATE_LIMITED", "please wait before requesting another code")
	ErrNotFound         = apperror.New(apperror.KindNotFound, "OTP_NOT_FOUND", "no verification code was requested for this phone")
	ErrExpired          = apperror.New(apperror.KindValidation, "OTP_EXPIRED", "verification code has expired")
	ErrMismatch         = apperror.New(apperror.KindValidation, "OTP_MISMATCH", "verification code is incorrect")
	ErrAlreadyConsumed  = apperror.New(apperror.KindConflict, "OTP_ALREADY_CONSUMED", "verification code was already used")
	ErrPhoneNotVerified = apperror.New(apperror.KindValidation, "PHONE_NOT_VERIFIED", "phone number must be verified before checkout")
)
