package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vapay/internal/store"
)

type PaymentReconciler struct {
	ledger   Ledger
	notifier Notifier
	log      zerolog.Logger
}

func NewPaymentReconciler(ledger Ledger, notifier Notifier, log zerolog.Logger) *PaymentReconciler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PaymentReconciler{ledger: ledger, notifier: notifier, log: log}
}

// Apply credits a payment to its invoice, moves every active VA of the
// invoice to its next status and records the payment, all in one unit of
// work. The notifier is called only after the unit of work committed.
func (r *PaymentReconciler) Apply(ctx context.Context, msg VAPayment) (store.Payment, error) {
	log := r.log.With().
		Str("invoice_number", msg.InvoiceNumber).
		Str("bank_id", msg.BankID).
		Str("amount", msg.Amount.String()).
		Str("reference", msg.Reference).
		Logger()

	if err := msg.Validate(); err != nil {
		log.Warn().Err(err).Msg("payment dropped")
		return store.Payment{}, err
	}

	var (
		payment store.Payment
		event   PaymentEvent
	)
	err := r.ledger.InTx(ctx, func(tx store.Tx) error {
		bank, err := tx.GetBank(ctx, msg.BankID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return reject(KindUnmatched, "bank %s is not registered", msg.BankID)
			}
			return err
		}

		inv, err := tx.GetInvoiceForUpdate(ctx, msg.InvoiceNumber)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return reject(KindUnmatched, "invoice %s is not registered", msg.InvoiceNumber)
			}
			return err
		}
		if inv.PaymentStatus == store.PaymentPaid {
			return reject(KindPolicy, "invoice %s is already paid", inv.Number)
		}

		active, err := tx.ListVirtualAccountsForUpdate(ctx, inv.Number, store.VaActive)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return reject(KindPolicy, "invoice %s has no active virtual account", inv.Number)
		}

		settled, err := settle(inv, msg.Amount)
		if err != nil {
			return err
		}

		changes, paying, ok := cascade(active, bank.ID, settled.PaymentStatus == store.PaymentPaid)
		if !ok {
			return reject(KindPolicy, "invoice %s has no active virtual account at bank %s", inv.Number, bank.Name)
		}

		payment = store.Payment{
			ID:               uuid.NewString(),
			BankID:           bank.ID,
			InvoiceNumber:    inv.Number,
			VirtualAccountID: paying.ID,
			Method:           store.MethodVirtualAccount,
			Amount:           msg.Amount,
			Reference:        msg.Reference,
			Note:             fmt.Sprintf("Payment via VA Bank %s Number %s", bank.Name, msg.AccountNumber),
			TransactionTime:  msg.PaymentTime.Time,
		}
		if err := tx.Apply(ctx, store.Batch{
			Invoice:         &settled,
			VirtualAccounts: changes,
			Payment:         &payment,
		}); err != nil {
			return err
		}

		event = newPaymentEvent(bank, settled, paying, payment)
		return nil
	})
	if err != nil {
		if _, ok := IsRejection(err); ok {
			log.Warn().Err(err).Msg("payment dropped")
		} else if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("payment failed")
		}
		return store.Payment{}, err
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("payment_status", string(event.Invoice.PaymentStatus)).
		Str("amount_paid", event.Invoice.AmountPaid.String()).
		Msg("payment applied")

	if err := r.notifier.PaymentReceived(ctx, event); err != nil {
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("payment notification failed")
	}
	return payment, nil
}

// settle accumulates amount onto the invoice. Overpayment is never applied.
func settle(inv store.Invoice, amount decimal.Decimal) (store.Invoice, error) {
	total := inv.AmountPaid.Add(amount)
	switch total.Cmp(inv.AmountDue) {
	case 1:
		return store.Invoice{}, reject(KindPolicy, "payment total %s exceeds amount due %s on invoice %s",
			total, inv.AmountDue, inv.Number)
	case -1:
		inv.PaymentStatus = store.PaymentPartiallyPaid
	default:
		inv.PaymentStatus = store.PaymentPaid
		inv.Status = store.InvoiceInactive
	}
	inv.AmountPaid = total
	return inv, nil
}

// cascade computes the next status of every active VA of an invoice. The VA
// at the paying bank is retired on full payment, the others are queued for
// bank-side deletion; on partial payment all of them need a refresh.
func cascade(active []store.VirtualAccount, bankID string, paid bool) ([]store.VirtualAccount, store.VirtualAccount, bool) {
	paying, ok := pickBank(active, bankID, true)
	if !ok {
		return nil, store.VirtualAccount{}, false
	}

	changes := make([]store.VirtualAccount, 0, len(active))
	for _, va := range active {
		switch {
		case !paid:
			va.Status = store.VaPendingUpdate
		case va.ID == paying.ID:
			va.Status = store.VaInactive
		default:
			va.Status = store.VaPendingDelete
		}
		if va.ID == paying.ID {
			paying = va
		}
		changes = append(changes, va)
	}
	return changes, paying, true
}

// pickBank returns the first VA held at bankID. Payment notifications match
// bank ids case-insensitively, bank responses match them exactly.
func pickBank(vas []store.VirtualAccount, bankID string, foldCase bool) (store.VirtualAccount, bool) {
	for _, va := range vas {
		if va.BankID == bankID || (foldCase && strings.EqualFold(va.BankID, bankID)) {
			return va, true
		}
	}
	return store.VirtualAccount{}, false
}

func newPaymentEvent(bank store.Bank, inv store.Invoice, va store.VirtualAccount, p store.Payment) PaymentEvent {
	return PaymentEvent{
		Bank: EventBank{ID: bank.ID, Name: bank.Name},
		Invoice: EventInvoice{
			Number:        inv.Number,
			DebtorNumber:  inv.DebtorNumber,
			InvoiceTypeID: inv.InvoiceTypeID,
			AmountDue:     inv.AmountDue,
			AmountPaid:    inv.AmountPaid,
			PaymentStatus: inv.PaymentStatus,
			Status:        inv.Status,
		},
		VirtualAccount: EventVirtualAccount{
			ID:            va.ID,
			AccountNumber: va.AccountNumber,
			Status:        va.Status,
		},
		Amount:          p.Amount,
		Reference:       p.Reference,
		Note:            p.Note,
		TransactionTime: p.TransactionTime,
	}
}
