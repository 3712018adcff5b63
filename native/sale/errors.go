package sale

import "errors"

var (
	ErrSaleNotConfigured = errors.New("sale: not configured")

	// Configuration errors.
	ErrInvalidTimeRange   = errors.New("sale: invalid time range")
	ErrInvalidAmount      = errors.New("sale: invalid amount")
	ErrSaleAlreadyStarted = errors.New("sale: already started")

	// Phase errors.
	ErrSaleNotActive    = errors.New("sale: not active")
	ErrSaleAlreadyEnded = errors.New("sale: already ended")
	ErrSaleNotEnded     = errors.New("sale: not ended")

	// Authorization errors.
	ErrInvalidSignature = errors.New("sale: invalid signature")
	ErrUnauthorized     = errors.New("sale: unauthorized")

	// Economic-limit errors.
	ErrBelowMinimumPurchase    = errors.New("sale: below minimum purchase")
	ErrExceedsHardCap          = errors.New("sale: exceeds hard cap")
	ErrTotalAllocationExceeded = errors.New("sale: total allocation exceeded")
	ErrInvalidPaymentToken     = errors.New("sale: invalid payment token")

	// Funds errors.
	ErrInsufficientBalance   = errors.New("sale: insufficient balance")
	ErrInsufficientAllowance = errors.New("sale: insufficient allowance")

	// Resolution errors.
	ErrSoftCapNotReached     = errors.New("sale: soft cap not reached")
	ErrSoftCapReached        = errors.New("sale: soft cap reached")
	ErrFundsAlreadyWithdrawn = errors.New("sale: funds already withdrawn")
	ErrRefundAlreadyClaimed  = errors.New("sale: refund already claimed")
	ErrNoUserContribution    = errors.New("sale: no user contribution")
	ErrInsufficientCustody   = errors.New("sale: custodied balance below refund")
)
