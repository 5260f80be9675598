package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DebtorRequest struct {
	DebtorNumber string `json:"debtorNumber"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (r DebtorRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.DebtorNumber) == "" {
		errs = append(errs, FieldError{Field: "debtorNumber", Message: "must not be empty"})
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "must not be empty"})
	}
	if email := strings.TrimSpace(r.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address"})
		}
	}
	return errs
}

type DebtorResponse struct {
	Success      bool   `json:"success"`
	DebtorNumber string `json:"debtorNumber,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type InvoiceRequest struct {
	Debtor      string          `json:"debtor"`
	InvoiceType string          `json:"invoiceType"`
	FeeCode     string          `json:"feeCode"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	DueDate     Date            `json:"dueDate"`
}

func (r InvoiceRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Debtor) == "" {
		errs = append(errs, FieldError{Field: "debtor", Message: "must not be empty"})
	}
	if strings.TrimSpace(r.InvoiceType) == "" {
		errs = append(errs, FieldError{Field: "invoiceType", Message: "must not be empty"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	} else if !r.Amount.Equal(r.Amount.Truncate(2)) {
		errs = append(errs, FieldError{Field: "amount", Message: "must have at most two decimal places"})
	}
	if r.DueDate.IsZero() {
		errs = append(errs, FieldError{Field: "dueDate", Message: "must not be empty"})
	}
	return errs
}

type InvoiceResponse struct {
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	Debtor        string          `json:"debtor"`
	InvoiceType   string          `json:"invoiceType"`
	FeeCode       string          `json:"feeCode"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	DueDate       Date            `json:"dueDate"`
	BankIDs       []string        `json:"banks,omitempty"`
}

// Date is a calendar date encoded as 2006-01-02.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			d.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}
