package clover

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Response text literals the ledger logic depends on.
const (
	RespTextApproval        = "Approval"
	RespTextPartialApproval = "Partial Approval"
	AuthCodeReversed        = "REVERS"
	RespStatApproved        = "A"
)

type AuthorizeResult struct {
	RespStat  string          `json:"respstat"`
	RespText  string          `json:"resptext"`
	RespCode  string          `json:"respcode"`
	RespProc  string          `json:"respproc"`
	RetRef    string          `json:"retref"`
	Account   string          `json:"account"`
	Token     string          `json:"token"`
	Expiry    string          `json:"expiry"`
	AuthCode  string          `json:"authcode"`
	Amount    string          `json:"amount"`
	ProfileID string          `json:"profileid"`
	Raw       json.RawMessage `json:"-"`
}

// Approved reports the only literal this processor uses for success.
func (r *AuthorizeResult) Approved() bool {
	return r != nil && strings.TrimSpace(r.RespText) == RespTextApproval
}

// VaultToken is the reusable token to board; the gateway echoes it in
// account when no separate token field is returned.
func (r *AuthorizeResult) VaultToken() string {
	if r == nil {
		return ""
	}
	if t := strings.TrimSpace(r.Token); t != "" {
		return t
	}
	return strings.TrimSpace(r.Account)
}

// LastFour returns the last four characters of the returned account.
func (r *AuthorizeResult) LastFour() string {
	if r == nil {
		return ""
	}
	return LastFour(r.Account)
}

func LastFour(account string) string {
	account = strings.TrimSpace(account)
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}

type InquireResult struct {
	RetRef     string
	Amount     string
	RespStat   string
	RespText   string
	SetlStat   string
	AuthCode   string
	Voidable   bool
	Refundable bool
	Raw        json.RawMessage

	flagsPresent bool
}

func (r *InquireResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		RetRef     string `json:"retref"`
		Amount     string `json:"amount"`
		RespStat   string `json:"respstat"`
		RespText   string `json:"resptext"`
		SetlStat   string `json:"setlstat"`
		AuthCode   string `json:"authcode"`
		Voidable   string `json:"voidable"`
		Refundable string `json:"refundable"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.RetRef = strings.TrimSpace(raw.RetRef)
	r.Amount = strings.TrimSpace(raw.Amount)
	r.RespStat = strings.TrimSpace(raw.RespStat)
	r.RespText = strings.TrimSpace(raw.RespText)
	r.SetlStat = strings.TrimSpace(raw.SetlStat)
	r.AuthCode = strings.TrimSpace(raw.AuthCode)
	r.Voidable = strings.EqualFold(strings.TrimSpace(raw.Voidable), "Y")
	r.Refundable = strings.EqualFold(strings.TrimSpace(raw.Refundable), "Y")
	r.flagsPresent = strings.TrimSpace(raw.Voidable) != "" || strings.TrimSpace(raw.Refundable) != ""
	return nil
}

type VoidResult struct {
	AuthCode string          `json:"authcode"`
	RespStat string          `json:"respstat"`
	RespText string          `json:"resptext"`
	RespCode string          `json:"respcode"`
	RetRef   string          `json:"retref"`
	Amount   string          `json:"amount"`
	Raw      json.RawMessage `json:"-"`
}

// Reversed reports whether the void took effect.
func (r *VoidResult) Reversed() bool {
	return r != nil && strings.TrimSpace(r.AuthCode) == AuthCodeReversed
}

type RefundResult struct {
	RespStat  string
	RespText  string
	RespCode  string
	RetRef    string
	Amount    string
	FeeAmount decimal.Decimal
	Raw       json.RawMessage
}

func (r *RefundResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		RespStat  string          `json:"respstat"`
		RespText  string          `json:"resptext"`
		RespCode  string          `json:"respcode"`
		RetRef    string          `json:"retref"`
		Amount    string          `json:"amount"`
		FeeAmount json.RawMessage `json:"fee_amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.RespStat = strings.TrimSpace(raw.RespStat)
	r.RespText = strings.TrimSpace(raw.RespText)
	r.RespCode = strings.TrimSpace(raw.RespCode)
	r.RetRef = strings.TrimSpace(raw.RetRef)
	r.Amount = strings.TrimSpace(raw.Amount)
	r.FeeAmount = decimal.Zero

	// fee_amount arrives either as a number or a quoted string
	if len(raw.FeeAmount) > 0 && string(raw.FeeAmount) != "null" {
		s := strings.Trim(strings.TrimSpace(string(raw.FeeAmount)), `"`)
		if s != "" {
			fee, err := decimal.NewFromString(s)
			if err != nil {
				return err
			}
			r.FeeAmount = fee
		}
	}
	return nil
}

// Accepted reports whether the refund was approved.
func (r *RefundResult) Accepted() bool {
	return r != nil && r.RespStat == RespStatApproved
}
