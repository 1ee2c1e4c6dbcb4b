package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialTrxn is a payment recorded against a contribution. Refunds are
// stored as negative amounts.
type FinancialTrxn struct {
	ID                 int64           `json:"id"`
	ContributionID     int64           `json:"contribution_id"`
	TrxnID             string          `json:"trxn_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	Currency           string          `json:"currency"`
	PaymentProcessorID int64           `json:"payment_processor_id"`
	OrderReference     string          `json:"order_reference,omitempty"`
	TrxnDate           time.Time       `json:"trxn_date"`
	Status             string          `json:"status"`
}
