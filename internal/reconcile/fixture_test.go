package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vapay/internal/reconcile"
	"vapay/internal/store"
)

const (
	bankA = "BNI"
	bankB = "BSI"
)

type fixture struct {
	mem      *store.Memory
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	mem.PutBank(store.Bank{ID: bankA, Name: "Bank Negara Indonesia"})
	mem.PutBank(store.Bank{ID: bankB, Name: "Bank Syariah Indonesia"})
	mem.PutDebtor(store.Debtor{Number: "D-001", Name: "Ayu"})
	mem.PutInvoiceType(store.InvoiceType{ID: "TUITION", Name: "Tuition"})
	mem.PutFeeCode(store.FeeCode{ID: "DEFAULT", Code: "000", Name: "Default"})

	return &fixture{
		mem:      mem,
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) invoice(t *testing.T, number string, due, paid int64) {
	t.Helper()

	status := store.PaymentUnpaid
	if paid > 0 {
		status = store.PaymentPartiallyPaid
	}
	f.mem.PutInvoice(store.Invoice{
		Number:        number,
		DebtorNumber:  "D-001",
		InvoiceTypeID: "TUITION",
		FeeCodeID:     "DEFAULT",
		AmountDue:     decimal.NewFromInt(due),
		AmountPaid:    decimal.NewFromInt(paid),
		PaymentStatus: status,
		Status:        store.InvoiceActive,
		DueDate:       f.clock.AddDate(0, 1, 0),
		CreatedAt:     f.clock,
		UpdatedAt:     f.clock,
	})
}

func (f *fixture) va(t *testing.T, invoiceNumber, bankID string, status store.VaStatus) string {
	t.Helper()

	f.clock = f.clock.Add(time.Second)
	id := uuid.NewString()
	var account *string
	if status != store.VaPending {
		n := "8808" + bankID + invoiceNumber
		account = &n
	}
	f.mem.PutVirtualAccount(store.VirtualAccount{
		ID:            id,
		InvoiceNumber: invoiceNumber,
		BankID:        bankID,
		AccountNumber: account,
		Status:        status,
		CreatedAt:     f.clock,
		UpdatedAt:     f.clock,
	})
	return id
}

func (f *fixture) statusCheck(t *testing.T, vaID string, status store.CheckStatus) string {
	t.Helper()

	id := uuid.NewString()
	f.mem.PutStatusCheck(store.StatusCheck{
		ID:               id,
		VirtualAccountID: vaID,
		Status:           status,
		CreatedAt:        f.clock,
		UpdatedAt:        f.clock,
	})
	return id
}

func (f *fixture) vaStatus(t *testing.T, id string) store.VirtualAccount {
	t.Helper()

	va, ok := f.mem.VirtualAccount(id)
	require.True(t, ok, "virtual account %s not found", id)
	return va
}

func (f *fixture) getInvoice(t *testing.T, number string) store.Invoice {
	t.Helper()

	inv, ok := f.mem.Invoice(number)
	require.True(t, ok, "invoice %s not found", number)
	return inv
}

func requireRejection(t *testing.T, err error, kind reconcile.Kind) {
	t.Helper()

	r, ok := reconcile.IsRejection(err)
	require.True(t, ok, "expected rejection, got %v", err)
	require.Equal(t, kind, r.Kind)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []reconcile.PaymentEvent
	err    error
}

func (n *recordingNotifier) PaymentReceived(_ context.Context, event reconcile.PaymentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []reconcile.PaymentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]reconcile.PaymentEvent(nil), n.events...)
}

// failingLedger simulates the store being unavailable.
type failingLedger struct{}

var errStoreDown = errors.New("connection refused")

func (failingLedger) InTx(context.Context, func(tx store.Tx) error) error {
	return errStoreDown
}
