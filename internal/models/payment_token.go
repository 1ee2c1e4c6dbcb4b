package models

import "time"

// PaymentToken is a vault reference issued by the gateway for a reusable
// card credential.
type PaymentToken struct {
	ID                 int64      `json:"id"`
	ContactID          int64      `json:"contact_id"`
	PaymentProcessorID int64      `json:"payment_processor_id"`
	Token              string     `json:"token"`
	Expiry             *time.Time `json:"expiry_date,omitempty"`
	MaskedAccount      string     `json:"masked_account_number,omitempty"`
	CreatedAt          time.Time  `json:"created_date"`
}
