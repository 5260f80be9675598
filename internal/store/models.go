package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type VaStatus string

const (
	VaPending       VaStatus = "PENDING"
	VaActive        VaStatus = "ACTIVE"
	VaError         VaStatus = "ERROR"
	VaInactive      VaStatus = "INACTIVE"
	VaPendingDelete VaStatus = "PENDING_DELETE"
	VaPendingUpdate VaStatus = "PENDING_UPDATE"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

type InvoiceStatus string

const (
	InvoiceActive   InvoiceStatus = "ACTIVE"
	InvoiceInactive InvoiceStatus = "INACTIVE"
)

type CheckStatus string

const (
	CheckNew     CheckStatus = "NEW"
	CheckSuccess CheckStatus = "SUCCESS"
	CheckFailed  CheckStatus = "FAILED"
)

const MethodVirtualAccount = "VIRTUAL_ACCOUNT"

type Debtor struct {
	Number    string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Bank struct {
	ID   string
	Name string
}

type InvoiceType struct {
	ID   string
	Name string
}

type FeeCode struct {
	ID   string
	Code string
	Name string
}

type Invoice struct {
	Number        string
	DebtorNumber  string
	InvoiceTypeID string
	FeeCodeID     string
	AmountDue     decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentStatus PaymentStatus
	Status        InvoiceStatus
	Description   string
	DueDate       time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type VirtualAccount struct {
	ID            string
	InvoiceNumber string
	BankID        string
	AccountNumber *string
	Status        VaStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type StatusCheck struct {
	ID               string
	VirtualAccountID string
	Status           CheckStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Payment struct {
	ID               string
	BankID           string
	InvoiceNumber    string
	VirtualAccountID string
	Method           string
	Amount           decimal.Decimal
	Reference        string
	Note             string
	TransactionTime  time.Time
	CreatedAt        time.Time
}

// Batch is the set of mutations a reconciliation commits as one unit.
// Invoice and VirtualAccounts/StatusChecks are updates of existing rows,
// Payment is always an insert.
type Batch struct {
	Invoice         *Invoice
	VirtualAccounts []VirtualAccount
	StatusChecks    []StatusCheck
	Payment         *Payment
}

type CreateInvoiceInput struct {
	DebtorNumber  string
	InvoiceTypeID string
	FeeCodeID     string
	AmountDue     decimal.Decimal
	Description   string
	DueDate       time.Time
	BankIDs       []string
}

type InvoiceDetail struct {
	Invoice         Invoice
	VirtualAccounts []VirtualAccount
	Payments        []Payment
}
