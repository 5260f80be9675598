package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBank(ctx context.Context, id string) (Bank, error) {
	var b Bank
	err := t.tx.QueryRow(ctx, "SELECT id, name FROM banks WHERE id = $1", id).Scan(&b.ID, &b.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bank{}, ErrNotFound
		}
		return Bank{}, err
	}
	return b, nil
}

func (t *pgTx) ListBanks(ctx context.Context) ([]Bank, error) {
	rows, err := t.tx.Query(ctx, "SELECT id, name FROM banks ORDER BY id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Bank, error) {
		var b Bank
		err := row.Scan(&b.ID, &b.Name)
		return b, err
	})
}

func (t *pgTx) GetDebtor(ctx context.Context, number string) (Debtor, error) {
	var d Debtor
	err := t.tx.QueryRow(ctx, `
		SELECT number, name, email, phone, created_at
		FROM debtors
		WHERE number = $1
	`, number).Scan(
		&d.Number,
		&d.Name,
		&d.Email,
		&d.Phone,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Debtor{}, ErrNotFound
		}
		return Debtor{}, err
	}
	return d, nil
}

func (t *pgTx) GetInvoiceType(ctx context.Context, id string) (InvoiceType, error) {
	var it InvoiceType
	err := t.tx.QueryRow(ctx, "SELECT id, name FROM invoice_types WHERE id = $1", id).Scan(&it.ID, &it.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvoiceType{}, ErrNotFound
		}
		return InvoiceType{}, err
	}
	return it, nil
}

func (t *pgTx) GetFeeCode(ctx context.Context, id string) (FeeCode, error) {
	return getFeeCode(ctx, t.tx, id)
}

func (t *pgTx) GetInvoiceForUpdate(ctx context.Context, number string) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, selectInvoice+" WHERE number = $1 FOR UPDATE", number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (t *pgTx) ListVirtualAccountsForUpdate(ctx context.Context, invoiceNumber string, status VaStatus) ([]VirtualAccount, error) {
	rows, err := t.tx.Query(ctx, selectVirtualAccount+`
		WHERE invoice_number = $1 AND status = $2
		ORDER BY created_at, bank_id
		FOR UPDATE
	`, invoiceNumber, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanVirtualAccount)
}

func (t *pgTx) ListStatusChecksForUpdate(ctx context.Context, virtualAccountID string, status CheckStatus) ([]StatusCheck, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, virtual_account_id, status, created_at, updated_at
		FROM status_checks
		WHERE virtual_account_id = $1 AND status = $2
		ORDER BY created_at
		FOR UPDATE
	`, virtualAccountID, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusCheck, error) {
		var c StatusCheck
		err := row.Scan(&c.ID, &c.VirtualAccountID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
}

func (t *pgTx) CreateDebtor(ctx context.Context, d Debtor) (Debtor, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO debtors (number, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, d.Number, d.Name, d.Email, d.Phone).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Debtor{}, ErrDebtorExists
		}
		return Debtor{}, err
	}
	return d, nil
}

func (t *pgTx) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, []VirtualAccount, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, "SELECT nextval('invoice_number_seq')").Scan(&seq); err != nil {
		return Invoice{}, nil, err
	}

	inv, err := scanInvoice(t.tx.QueryRow(ctx, `
		INSERT INTO invoices (number, debtor_number, invoice_type_id, fee_code_id, amount_due,
			amount_paid, payment_status, status, description, due_date)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)
		RETURNING number, debtor_number, invoice_type_id, fee_code_id, amount_due, amount_paid,
			payment_status, status, description, due_date, created_at, updated_at
	`,
		InvoiceNumber(time.Now(), seq),
		input.DebtorNumber,
		input.InvoiceTypeID,
		input.FeeCodeID,
		input.AmountDue,
		PaymentUnpaid,
		InvoiceActive,
		input.Description,
		input.DueDate,
	))
	if err != nil {
		return Invoice{}, nil, err
	}

	vas := make([]VirtualAccount, 0, len(input.BankIDs))
	for _, bankID := range input.BankIDs {
		var va VirtualAccount
		err := t.tx.QueryRow(ctx, `
			INSERT INTO virtual_accounts (id, invoice_number, bank_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, invoice_number, bank_id, account_number, status, created_at, updated_at
		`, uuid.NewString(), inv.Number, bankID, VaPending).Scan(
			&va.ID,
			&va.InvoiceNumber,
			&va.BankID,
			&va.AccountNumber,
			&va.Status,
			&va.CreatedAt,
			&va.UpdatedAt,
		)
		if err != nil {
			return Invoice{}, nil, err
		}
		vas = append(vas, va)
	}

	return inv, vas, nil
}

// Apply writes every mutation of b inside the current transaction. Each
// update must hit exactly one row or the whole batch fails with ErrNotFound.
// A queued payment gets its CreatedAt from the insert.
func (t *pgTx) Apply(ctx context.Context, b Batch) error {
	batch := &pgx.Batch{}
	paymentAt := -1

	if b.Invoice != nil {
		batch.Queue(`
			UPDATE invoices
			SET amount_paid = $1, payment_status = $2, status = $3, updated_at = now()
			WHERE number = $4
		`, b.Invoice.AmountPaid, b.Invoice.PaymentStatus, b.Invoice.Status, b.Invoice.Number)
	}
	for _, va := range b.VirtualAccounts {
		batch.Queue(`
			UPDATE virtual_accounts
			SET account_number = $1, status = $2, updated_at = now()
			WHERE id = $3
		`, va.AccountNumber, va.Status, va.ID)
	}
	for _, c := range b.StatusChecks {
		batch.Queue(`
			UPDATE status_checks
			SET status = $1, updated_at = now()
			WHERE id = $2
		`, c.Status, c.ID)
	}
	if p := b.Payment; p != nil {
		batch.Queue(`
			INSERT INTO payments (id, bank_id, invoice_number, virtual_account_id, method, amount,
				reference, note, transaction_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at
		`, p.ID, p.BankID, p.InvoiceNumber, p.VirtualAccountID, p.Method, p.Amount, p.Reference, p.Note, p.TransactionTime)
		paymentAt = batch.Len() - 1
	}

	if batch.Len() == 0 {
		return ErrEmptyBatch
	}

	results := t.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if i == paymentAt {
			if err := results.QueryRow().Scan(&b.Payment.CreatedAt); err != nil {
				_ = results.Close()
				return fmt.Errorf("apply batch statement %d: %w", i, err)
			}
			continue
		}
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return fmt.Errorf("apply batch statement %d: %w", i, err)
		}
		if tag.RowsAffected() != 1 {
			_ = results.Close()
			return fmt.Errorf("apply batch statement %d: %w", i, ErrNotFound)
		}
	}
	return results.Close()
}

// InvoiceNumber formats a new invoice number from its creation date and a
// sequence value, e.g. 20240131000042.
func InvoiceNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s%06d", at.Format("20060102"), seq)
}
