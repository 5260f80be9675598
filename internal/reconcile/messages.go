package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RequestType string

const (
	RequestProvision RequestType = "PROVISION"
	RequestInquiry   RequestType = "INQUIRY"
	RequestDelete    RequestType = "DELETE"
)

// UnmarshalJSON accepts CREATE and UPDATE as provisioning requests, which is
// what bank integrations send for new and refreshed accounts.
func (t *RequestType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROVISION", "CREATE", "UPDATE":
		*t = RequestProvision
	case "INQUIRY":
		*t = RequestInquiry
	case "DELETE":
		*t = RequestDelete
	default:
		return fmt.Errorf("unknown request type %q", s)
	}
	return nil
}

type RequestStatus string

const (
	RequestSuccess RequestStatus = "SUCCESS"
	RequestError   RequestStatus = "ERROR"
)

func (s *RequestStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "SUCCESS":
		*s = RequestSuccess
	case "ERROR":
		*s = RequestError
	default:
		return fmt.Errorf("unknown request status %q", v)
	}
	return nil
}

// VAResponse is a bank's answer to a provisioning, inquiry or deletion request.
type VAResponse struct {
	InvoiceNumber string        `json:"invoiceNumber"`
	BankID        string        `json:"bankId"`
	RequestType   RequestType   `json:"requestType"`
	RequestStatus RequestStatus `json:"requestStatus"`
	AccountNumber *string       `json:"accountNumber"`
}

func (m VAResponse) Validate() error {
	switch {
	case strings.TrimSpace(m.InvoiceNumber) == "":
		return reject(KindMalformed, "invoiceNumber is required")
	case strings.TrimSpace(m.BankID) == "":
		return reject(KindMalformed, "bankId is required")
	case m.RequestType == "":
		return reject(KindMalformed, "requestType is required")
	case m.RequestStatus == "":
		return reject(KindMalformed, "requestStatus is required")
	}
	return nil
}

// VAPayment is a payment notification received through a virtual account.
type VAPayment struct {
	BankID        string          `json:"bankId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber string          `json:"accountNumber"`
	Reference     string          `json:"reference"`
	PaymentTime   Timestamp       `json:"paymentTime"`
}

func (m VAPayment) Validate() error {
	switch {
	case strings.TrimSpace(m.BankID) == "":
		return reject(KindMalformed, "bankId is required")
	case strings.TrimSpace(m.InvoiceNumber) == "":
		return reject(KindMalformed, "invoiceNumber is required")
	case !m.Amount.IsPositive():
		return reject(KindMalformed, "amount must be positive, got %s", m.Amount)
	case !m.Amount.Equal(m.Amount.Truncate(2)):
		return reject(KindMalformed, "amount %s has more than two decimal places", m.Amount)
	case m.PaymentTime.IsZero():
		return reject(KindMalformed, "paymentTime is required")
	}
	return nil
}

// Timestamp decodes RFC 3339 times as well as zone-less local date-times.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
