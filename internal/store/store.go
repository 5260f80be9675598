package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var Schema string

// Tx is a unit of work against the ledger. Reads ending in ForUpdate take
// row locks that are held until the surrounding InTx returns.
type Tx interface {
	GetBank(ctx context.Context, id string) (Bank, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	GetDebtor(ctx context.Context, number string) (Debtor, error)
	GetInvoiceType(ctx context.Context, id string) (InvoiceType, error)
	GetFeeCode(ctx context.Context, id string) (FeeCode, error)
	GetInvoiceForUpdate(ctx context.Context, number string) (Invoice, error)
	ListVirtualAccountsForUpdate(ctx context.Context, invoiceNumber string, status VaStatus) ([]VirtualAccount, error)
	ListStatusChecksForUpdate(ctx context.Context, virtualAccountID string, status CheckStatus) ([]StatusCheck, error)
	CreateDebtor(ctx context.Context, d Debtor) (Debtor, error)
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, []VirtualAccount, error)
	Apply(ctx context.Context, b Batch) error
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a single database transaction. The transaction is
// committed only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) GetFeeCode(ctx context.Context, id string) (FeeCode, error) {
	return getFeeCode(ctx, s.pool, id)
}

func (s *Store) GetInvoiceDetail(ctx context.Context, number string) (InvoiceDetail, error) {
	inv, err := scanInvoice(s.pool.QueryRow(ctx, selectInvoice+" WHERE number = $1", number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvoiceDetail{}, ErrNotFound
		}
		return InvoiceDetail{}, err
	}

	rows, err := s.pool.Query(ctx, selectVirtualAccount+" WHERE invoice_number = $1 ORDER BY created_at, bank_id", number)
	if err != nil {
		return InvoiceDetail{}, err
	}
	vas, err := pgx.CollectRows(rows, scanVirtualAccount)
	if err != nil {
		return InvoiceDetail{}, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, bank_id, invoice_number, virtual_account_id, method, amount, reference, note, transaction_time, created_at
		FROM payments
		WHERE invoice_number = $1
		ORDER BY transaction_time, created_at
	`, number)
	if err != nil {
		return InvoiceDetail{}, err
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(
			&p.ID,
			&p.BankID,
			&p.InvoiceNumber,
			&p.VirtualAccountID,
			&p.Method,
			&p.Amount,
			&p.Reference,
			&p.Note,
			&p.TransactionTime,
			&p.CreatedAt,
		)
		return p, err
	})
	if err != nil {
		return InvoiceDetail{}, err
	}

	return InvoiceDetail{Invoice: inv, VirtualAccounts: vas, Payments: payments}, nil
}

const selectInvoice = `
	SELECT number, debtor_number, invoice_type_id, fee_code_id, amount_due, amount_paid,
		payment_status, status, description, due_date, created_at, updated_at
	FROM invoices`

const selectVirtualAccount = `
	SELECT id, invoice_number, bank_id, account_number, status, created_at, updated_at
	FROM virtual_accounts`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getFeeCode(ctx context.Context, q querier, id string) (FeeCode, error) {
	var f FeeCode
	err := q.QueryRow(ctx, "SELECT id, code, name FROM fee_codes WHERE id = $1", id).Scan(&f.ID, &f.Code, &f.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FeeCode{}, ErrNotFound
		}
		return FeeCode{}, err
	}
	return f, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.Number,
		&inv.DebtorNumber,
		&inv.InvoiceTypeID,
		&inv.FeeCodeID,
		&inv.AmountDue,
		&inv.AmountPaid,
		&inv.PaymentStatus,
		&inv.Status,
		&inv.Description,
		&inv.DueDate,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, err
}

func scanVirtualAccount(row pgx.CollectableRow) (VirtualAccount, error) {
	var va VirtualAccount
	err := row.Scan(
		&va.ID,
		&va.InvoiceNumber,
		&va.BankID,
		&va.AccountNumber,
		&va.Status,
		&va.CreatedAt,
		&va.UpdatedAt,
	)
	return va, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
