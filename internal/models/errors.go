package models

import (
	"errors"
)

var (
	ErrNoRecord            = errors.New("models: no matching record found")
	ErrProcessorConfig     = errors.New("models: payment processor is not configured")
	ErrUnsupportedCurrency = errors.New("models: currency is not supported")
	ErrMissingToken        = errors.New("models: series has no vault token")
	ErrLockNotAcquired     = errors.New("models: lock not acquired")

	ErrContributionNotPending = errors.New("models: contribution is not pending")
	ErrChargeMismatch         = errors.New("models: charge does not match the contribution")
)

var (
	ErrInvalidRefundAmount = errors.New("refund: amount must be greater than zero and not exceed the original amount")
	ErrPartialRefund       = errors.New("refund: only the full payment amount can be reversed")
	ErrNotReversible       = errors.New("refund: transaction can be neither voided nor refunded")
	ErrRefundNotRecorded   = errors.New("refund: reversal status is not supported")
)
