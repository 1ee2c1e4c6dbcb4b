package models

import (
	"fmt"
	"strings"
)

// CloverClassName identifies processors managed by this service.
const CloverClassName = "Payment_Clover"

// PaymentProcessor holds the credentials of one configured processor.
// UserName is the merchant user, Password the API key and Signature the
// merchant id.
type PaymentProcessor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	UserName  string `json:"-"`
	Password  string `json:"-"`
	Signature string `json:"-"`
	URLAPI    string `json:"url_api"`
	IsTest    bool   `json:"is_test"`
	IsActive  bool   `json:"is_active"`
}

// CheckConfig reports which credentials are missing.
func (p PaymentProcessor) CheckConfig() error {
	var missing []string
	creds := []struct{ value, label string }{
		{p.UserName, "Merchant Name"},
		{p.Password, "Web API Key"},
		{p.Signature, "Merchant Site Key"},
		{p.URLAPI, "API URL"},
	}
	for _, c := range creds {
		if strings.TrimSpace(c.value) == "" {
			missing = append(missing, fmt.Sprintf("the '%s' is not set in the Clover payment processor settings", c.label))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrProcessorConfig, strings.Join(missing, "; "))
	}
	return nil
}
