package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundRequest is what the operator submits from the refund screen.
type RefundRequest struct {
	PaymentID          int64           `json:"payment_id"`
	ContributionID     int64           `json:"contribution_id"`
	RefundAmount       decimal.Decimal `json:"refund_amount"`
	CancelMemberships  bool            `json:"cancel_memberships"`
	CancelParticipants bool            `json:"cancel_participants"`
}

// RefundOutcome is returned to the operator after a reversal.
type RefundOutcome struct {
	Action                string             `json:"action"`
	Status                ContributionStatus `json:"refund_status"`
	RefundTrxnID          string             `json:"refund_trxn_id"`
	FeeAmount             decimal.Decimal    `json:"fee_amount"`
	TrxnDate              time.Time          `json:"trxn_date"`
	CancelledMemberships  int                `json:"cancelled_memberships"`
	CancelledParticipants int                `json:"cancelled_participants"`
	Message               string             `json:"message"`
}

// ReversalPreview tells the operator which reversal is currently possible.
type ReversalPreview struct {
	PaymentID      int64           `json:"payment_id"`
	ContributionID int64           `json:"contribution_id"`
	Action         string          `json:"action"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}
