package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurStatus is the lifecycle state of a recurring series.
type RecurStatus string

const (
	RecurPending    RecurStatus = "Pending"
	RecurInProgress RecurStatus = "In Progress"
	RecurCompleted  RecurStatus = "Completed"
	RecurFailed     RecurStatus = "Failed"
	RecurCancelled  RecurStatus = "Cancelled"
)

// RecurringSeries is a standing authorization to charge a payer repeatedly.
type RecurringSeries struct {
	ID                  int64           `json:"id"`
	ContactID           int64           `json:"contact_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	FrequencyInterval   int             `json:"frequency_interval"`
	FrequencyUnit       string          `json:"frequency_unit"`
	NextScheduledDate   time.Time       `json:"next_scheduled_date"`
	FailureCount        int             `json:"failure_count"`
	Installments        int             `json:"installments"`
	Status              RecurStatus     `json:"status"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	PaymentTokenID      *int64          `json:"payment_token_id,omitempty"`
	Token               string          `json:"-"`
	PaymentProcessorID  int64           `json:"payment_processor_id"`
	PaymentInstrumentID int64           `json:"payment_instrument_id"`
	FinancialTypeID     int64           `json:"financial_type_id"`
	CycleDay            int             `json:"cycle_day"`
	IsTest              bool            `json:"is_test"`
}

// SeriesUpdate carries the columns the engine is allowed to change on a
// series. Nil fields are left untouched.
type SeriesUpdate struct {
	NextScheduledDate *time.Time
	FailureCount      *int
	Status            *RecurStatus
	EndDate           *time.Time
	ClearEndDate      bool
	PaymentTokenID    *int64
}

// SeriesProgress is a housekeeping snapshot of a non-open-ended series.
type SeriesProgress struct {
	ID               int64
	Installments     int
	InstallmentsDone int
	Status           RecurStatus
	EndDate          *time.Time
}

// DueFilter narrows the due-installment query.
type DueFilter struct {
	Statuses        []RecurStatus
	ProcessorIDs    []int64
	DueBy           time.Time
	CycleDay        int
	MaxFailureCount *int
}
