package reconcile

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"vapay/internal/store"
)

// VAStatusReconciler applies bank responses to the pending virtual account
// they answer.
type VAStatusReconciler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewVAStatusReconciler(ledger Ledger, log zerolog.Logger) *VAStatusReconciler {
	return &VAStatusReconciler{ledger: ledger, log: log}
}

// Apply returns the updated virtual account, a *Rejection when the response
// matches nothing, or the store error that aborted the unit of work.
func (r *VAStatusReconciler) Apply(ctx context.Context, msg VAResponse) (store.VirtualAccount, error) {
	log := r.log.With().
		Str("invoice_number", msg.InvoiceNumber).
		Str("bank_id", msg.BankID).
		Str("request_type", string(msg.RequestType)).
		Str("request_status", string(msg.RequestStatus)).
		Logger()

	if err := msg.Validate(); err != nil {
		log.Warn().Err(err).Msg("va response dropped")
		return store.VirtualAccount{}, err
	}

	var updated store.VirtualAccount
	err := r.ledger.InTx(ctx, func(tx store.Tx) error {
		candidates, err := tx.ListVirtualAccountsForUpdate(ctx, msg.InvoiceNumber, store.VaPending)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return reject(KindUnmatched, "no pending virtual account for invoice %s", msg.InvoiceNumber)
		}

		va, ok := pickBank(candidates, msg.BankID, false)
		if !ok {
			return reject(KindUnmatched, "no pending virtual account for invoice %s at bank %s", msg.InvoiceNumber, msg.BankID)
		}

		var checks []store.StatusCheck
		if msg.RequestType == RequestInquiry {
			open, err := tx.ListStatusChecksForUpdate(ctx, va.ID, store.CheckNew)
			if err != nil {
				return err
			}
			if len(open) == 0 {
				return reject(KindUnmatched, "no open status check for virtual account %s", va.ID)
			}
			outcome := store.CheckFailed
			if msg.RequestStatus == RequestSuccess {
				outcome = store.CheckSuccess
			}
			for _, c := range open {
				c.Status = outcome
				checks = append(checks, c)
			}
		}

		updated = nextVirtualAccount(va, msg)
		return tx.Apply(ctx, store.Batch{
			VirtualAccounts: []store.VirtualAccount{updated},
			StatusChecks:    checks,
		})
	})
	if err != nil {
		if _, ok := IsRejection(err); ok {
			log.Warn().Err(err).Msg("va response dropped")
		} else if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("va response failed")
		}
		return store.VirtualAccount{}, err
	}

	log.Info().
		Str("virtual_account_id", updated.ID).
		Str("status", string(updated.Status)).
		Msg("va response applied")
	return updated, nil
}

// nextVirtualAccount is the transition table for a pending VA. An error
// response wins over the request type. Otherwise a delete retires the VA and
// every other request activates it with the bank-assigned account number.
func nextVirtualAccount(va store.VirtualAccount, msg VAResponse) store.VirtualAccount {
	switch {
	case msg.RequestStatus == RequestError:
		va.Status = store.VaError
	case msg.RequestType == RequestDelete:
		va.Status = store.VaInactive
	default:
		va.AccountNumber = msg.AccountNumber
		va.Status = store.VaActive
	}
	return va
}
