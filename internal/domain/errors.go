package domain

import "errors"

var (
	ErrAlreadyExists           = errors.New("already exists")
	ErrSoldOut                 = errors.New("event sold out")
	ErrArithmeticOverflow      = errors.New("arithmetic overflow")
	ErrOwnershipMismatch       = errors.New("caller is not the ticket owner")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrTransfersDisabled       = errors.New("transfers are disabled")
	ErrTransferLocked          = errors.New("transfer window is locked")
	ErrPriceCapExceeded        = errors.New("resale price exceeds maximum allowed markup")
	ErrWalletLimitExceeded     = errors.New("wallet has reached maximum ticket limit for this event")
	ErrAlreadyCheckedIn        = errors.New("ticket already checked in")
	ErrInvalidOracle           = errors.New("invalid oracle")
	ErrInvalidRefundPercentage = errors.New("refund percentage must be between 0 and 100")
	ErrRefundNotAvailable      = errors.New("refund not available")
	ErrRefundAlreadyClaimed    = errors.New("refund already claimed")

	ErrAlreadyResolved        = errors.New("market already resolved")
	ErrEventNotFound          = errors.New("event not found")
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrBadgeNotFound          = errors.New("badge not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrConcurrentUpdate       = errors.New("record changed concurrently, retry")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidID              = errors.New("invalid id")
	ErrEventNameRequired      = errors.New("event name required")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrInvalidOutcome         = errors.New("invalid outcome")
	ErrInvalidRefundCondition = errors.New("invalid refund condition")
	ErrInvalidEventType       = errors.New("invalid event type")
	ErrInvalidBadgeMetadata   = errors.New("invalid badge metadata")
)
