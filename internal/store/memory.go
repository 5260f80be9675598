package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process ledger with the same unit-of-work semantics as
// Store. Every InTx holds a single mutex, so units of work are fully
// serialized. Writes are staged and only become visible on commit.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	banks          map[string]Bank
	debtors        map[string]Debtor
	invoiceTypes   map[string]InvoiceType
	feeCodes       map[string]FeeCode
	invoices       map[string]Invoice
	virtualAccount map[string]VirtualAccount
	statusChecks   map[string]StatusCheck
	payments       []Payment
}

func NewMemory() *Memory {
	return &Memory{
		now:            time.Now,
		banks:          map[string]Bank{},
		debtors:        map[string]Debtor{},
		invoiceTypes:   map[string]InvoiceType{},
		feeCodes:       map[string]FeeCode{},
		invoices:       map[string]Invoice{},
		virtualAccount: map[string]VirtualAccount{},
		statusChecks:   map[string]StatusCheck{},
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range tx.staged {
		op()
	}
	return nil
}

func (m *Memory) GetFeeCode(_ context.Context, id string) (FeeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.feeCodes[id]
	if !ok {
		return FeeCode{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) GetInvoiceDetail(_ context.Context, number string) (InvoiceDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[number]
	if !ok {
		return InvoiceDetail{}, ErrNotFound
	}
	detail := InvoiceDetail{Invoice: inv, VirtualAccounts: m.virtualAccounts(number, "")}
	for _, p := range m.payments {
		if p.InvoiceNumber == number {
			detail.Payments = append(detail.Payments, p)
		}
	}
	return detail, nil
}

func (m *Memory) PutBank(b Bank) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banks[b.ID] = b
}

func (m *Memory) PutDebtor(d Debtor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debtors[d.Number] = d
}

func (m *Memory) PutInvoiceType(it InvoiceType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoiceTypes[it.ID] = it
}

func (m *Memory) PutFeeCode(f FeeCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeCodes[f.ID] = f
}

func (m *Memory) PutInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.Number] = inv
}

func (m *Memory) PutVirtualAccount(va VirtualAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.virtualAccount[va.ID] = va
}

func (m *Memory) PutStatusCheck(c StatusCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChecks[c.ID] = c
}

func (m *Memory) Invoice(number string) (Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[number]
	return inv, ok
}

func (m *Memory) VirtualAccount(id string) (VirtualAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	va, ok := m.virtualAccount[id]
	return va, ok
}

func (m *Memory) StatusCheck(id string) (StatusCheck, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.statusChecks[id]
	return c, ok
}

func (m *Memory) Debtor(number string) (Debtor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debtors[number]
	return d, ok
}

func (m *Memory) Payments() []Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payment(nil), m.payments...)
}

// virtualAccounts returns the VAs of an invoice, optionally filtered by
// status, in creation order. Callers hold m.mu.
func (m *Memory) virtualAccounts(invoiceNumber string, status VaStatus) []VirtualAccount {
	var out []VirtualAccount
	for _, va := range m.virtualAccount {
		if va.InvoiceNumber != invoiceNumber {
			continue
		}
		if status != "" && va.Status != status {
			continue
		}
		out = append(out, va)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].BankID < out[j].BankID
	})
	return out
}

type memTx struct {
	m      *Memory
	staged []func()
}

func (t *memTx) GetBank(_ context.Context, id string) (Bank, error) {
	b, ok := t.m.banks[id]
	if !ok {
		return Bank{}, ErrNotFound
	}
	return b, nil
}

func (t *memTx) ListBanks(context.Context) ([]Bank, error) {
	banks := make([]Bank, 0, len(t.m.banks))
	for _, b := range t.m.banks {
		banks = append(banks, b)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i].ID < banks[j].ID })
	return banks, nil
}

func (t *memTx) GetDebtor(_ context.Context, number string) (Debtor, error) {
	d, ok := t.m.debtors[number]
	if !ok {
		return Debtor{}, ErrNotFound
	}
	return d, nil
}

func (t *memTx) GetInvoiceType(_ context.Context, id string) (InvoiceType, error) {
	it, ok := t.m.invoiceTypes[id]
	if !ok {
		return InvoiceType{}, ErrNotFound
	}
	return it, nil
}

func (t *memTx) GetFeeCode(_ context.Context, id string) (FeeCode, error) {
	f, ok := t.m.feeCodes[id]
	if !ok {
		return FeeCode{}, ErrNotFound
	}
	return f, nil
}

func (t *memTx) GetInvoiceForUpdate(_ context.Context, number string) (Invoice, error) {
	inv, ok := t.m.invoices[number]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (t *memTx) ListVirtualAccountsForUpdate(_ context.Context, invoiceNumber string, status VaStatus) ([]VirtualAccount, error) {
	return t.m.virtualAccounts(invoiceNumber, status), nil
}

func (t *memTx) ListStatusChecksForUpdate(_ context.Context, virtualAccountID string, status CheckStatus) ([]StatusCheck, error) {
	var out []StatusCheck
	for _, c := range t.m.statusChecks {
		if c.VirtualAccountID == virtualAccountID && c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) CreateDebtor(_ context.Context, d Debtor) (Debtor, error) {
	if _, ok := t.m.debtors[d.Number]; ok {
		return Debtor{}, ErrDebtorExists
	}
	d.CreatedAt = t.m.now()
	t.staged = append(t.staged, func() { t.m.debtors[d.Number] = d })
	return d, nil
}

func (t *memTx) CreateInvoice(_ context.Context, input CreateInvoiceInput) (Invoice, []VirtualAccount, error) {
	now := t.m.now()
	seq := t.m.seq + 1
	inv := Invoice{
		Number:        InvoiceNumber(now, seq),
		DebtorNumber:  input.DebtorNumber,
		InvoiceTypeID: input.InvoiceTypeID,
		FeeCodeID:     input.FeeCodeID,
		AmountDue:     input.AmountDue,
		PaymentStatus: PaymentUnpaid,
		Status:        InvoiceActive,
		Description:   input.Description,
		DueDate:       input.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	vas := make([]VirtualAccount, 0, len(input.BankIDs))
	for _, bankID := range input.BankIDs {
		vas = append(vas, VirtualAccount{
			ID:            uuid.NewString(),
			InvoiceNumber: inv.Number,
			BankID:        bankID,
			Status:        VaPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	t.staged = append(t.staged, func() {
		t.m.seq = seq
		t.m.invoices[inv.Number] = inv
		for _, va := range vas {
			t.m.virtualAccount[va.ID] = va
		}
	})
	return inv, vas, nil
}

func (t *memTx) Apply(_ context.Context, b Batch) error {
	if b.Invoice == nil && len(b.VirtualAccounts) == 0 && len(b.StatusChecks) == 0 && b.Payment == nil {
		return ErrEmptyBatch
	}
	if b.Invoice != nil {
		if _, ok := t.m.invoices[b.Invoice.Number]; !ok {
			return ErrNotFound
		}
	}
	for _, va := range b.VirtualAccounts {
		if _, ok := t.m.virtualAccount[va.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, c := range b.StatusChecks {
		if _, ok := t.m.statusChecks[c.ID]; !ok {
			return ErrNotFound
		}
	}

	now := t.m.now()
	if b.Payment != nil {
		b.Payment.CreatedAt = now
	}
	t.staged = append(t.staged, func() {
		if b.Invoice != nil {
			inv := t.m.invoices[b.Invoice.Number]
			inv.AmountPaid = b.Invoice.AmountPaid
			inv.PaymentStatus = b.Invoice.PaymentStatus
			inv.Status = b.Invoice.Status
			inv.UpdatedAt = now
			t.m.invoices[inv.Number] = inv
		}
		for _, next := range b.VirtualAccounts {
			va := t.m.virtualAccount[next.ID]
			va.AccountNumber = next.AccountNumber
			va.Status = next.Status
			va.UpdatedAt = now
			t.m.virtualAccount[va.ID] = va
		}
		for _, next := range b.StatusChecks {
			c := t.m.statusChecks[next.ID]
			c.Status = next.Status
			c.UpdatedAt = now
			t.m.statusChecks[c.ID] = c
		}
		if b.Payment != nil {
			t.m.payments = append(t.m.payments, *b.Payment)
		}
	})
	return nil
}
