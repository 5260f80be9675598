package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"vapay/internal/store"
)

// Ledger runs a unit of work with row-level serialization on everything the
// callback reads through the ForUpdate methods.
type Ledger interface {
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// Notifier receives committed payment outcomes. Delivery is best effort.
type Notifier interface {
	PaymentReceived(ctx context.Context, event PaymentEvent) error
}

type PaymentEvent struct {
	Bank            EventBank           `json:"bank"`
	Invoice         EventInvoice        `json:"invoice"`
	VirtualAccount  EventVirtualAccount `json:"virtualAccount"`
	Amount          decimal.Decimal     `json:"amount"`
	Reference       string              `json:"reference"`
	Note            string              `json:"note"`
	TransactionTime time.Time           `json:"transactionTime"`
}

type EventBank struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EventInvoice struct {
	Number        string              `json:"number"`
	DebtorNumber  string              `json:"debtorNumber"`
	InvoiceTypeID string              `json:"invoiceType"`
	AmountDue     decimal.Decimal     `json:"amountDue"`
	AmountPaid    decimal.Decimal     `json:"amountPaid"`
	PaymentStatus store.PaymentStatus `json:"paymentStatus"`
	Status        store.InvoiceStatus `json:"status"`
}

type EventVirtualAccount struct {
	ID            string         `json:"id"`
	AccountNumber *string        `json:"accountNumber"`
	Status        store.VaStatus `json:"status"`
}

type nopNotifier struct{}

func (nopNotifier) PaymentReceived(context.Context, PaymentEvent) error { return nil }
