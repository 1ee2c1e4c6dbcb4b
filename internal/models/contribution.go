package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus is the ledger status of a single installment.
type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "Pending"
	ContributionCompleted ContributionStatus = "Completed"
	ContributionFailed    ContributionStatus = "Failed"
	ContributionRefunded  ContributionStatus = "Refunded"
	ContributionCancelled ContributionStatus = "Cancelled"
)

// Contribution is one attempted charge, optionally tied to a series.
type Contribution struct {
	ID                  int64               `json:"id"`
	ContactID           int64               `json:"contact_id"`
	RecurID             *int64              `json:"contribution_recur_id,omitempty"`
	Amount              decimal.Decimal     `json:"total_amount"`
	NetAmount           decimal.Decimal     `json:"net_amount"`
	Currency            string              `json:"currency"`
	ReceiveDate         time.Time           `json:"receive_date"`
	Status              ContributionStatus  `json:"contribution_status"`
	InvoiceID           string              `json:"invoice_id"`
	TrxnID              string              `json:"trxn_id,omitempty"`
	PanTruncation       string              `json:"pan_truncation,omitempty"`
	ResultCode          string              `json:"trxn_result_code,omitempty"`
	Source              string              `json:"source"`
	CampaignID          *int64              `json:"campaign_id,omitempty"`
	AmountLevel         string              `json:"amount_level,omitempty"`
	TaxAmount           decimal.NullDecimal `json:"tax_amount"`
	PaymentInstrumentID int64               `json:"payment_instrument_id"`
	FinancialTypeID     int64               `json:"financial_type_id"`
	PaymentProcessorID  int64               `json:"payment_processor_id"`
	IsTest              bool                `json:"is_test"`
}

// ContributionResult is what the classifier writes back to a pending
// contribution.
type ContributionResult struct {
	Status        ContributionStatus
	TrxnID        string
	PanTruncation string
	ResultCode    string
	Message       string
}
