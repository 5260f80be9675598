package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vapay/internal/store"
)

type Ledger interface {
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// Responder publishes the outcome of a registration or invoice request back
// to the producer.
type Responder interface {
	DebtorResponse(ctx context.Context, resp DebtorResponse) error
	InvoiceResponse(ctx context.Context, resp InvoiceResponse) error
}

type Config struct {
	// DefaultFeeCode is used when a request names no fee code or an unknown one.
	DefaultFeeCode store.FeeCode
}

type Service struct {
	ledger    Ledger
	responder Responder
	cfg       Config
	log       zerolog.Logger
}

func NewService(ledger Ledger, responder Responder, cfg Config, log zerolog.Logger) *Service {
	return &Service{ledger: ledger, responder: responder, cfg: cfg, log: log}
}

// RegisterDebtor stores a new debtor. Validation failures and duplicates are
// answered through the responder; only store failures are returned.
func (s *Service) RegisterDebtor(ctx context.Context, req DebtorRequest) (DebtorResponse, error) {
	log := s.log.With().Str("debtor_number", req.DebtorNumber).Logger()

	if errs := req.Validate(); len(errs) > 0 {
		log.Warn().Interface("errors", errs).Msg("debtor registration rejected")
		return s.respondDebtor(ctx, DebtorResponse{Success: false, Data: errs})
	}

	d := store.Debtor{
		Number: strings.TrimSpace(req.DebtorNumber),
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
	}
	err := s.ledger.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateDebtor(ctx, d)
		return err
	})
	switch {
	case errors.Is(err, store.ErrDebtorExists):
		log.Info().Msg("debtor already registered")
		return s.respondDebtor(ctx, DebtorResponse{
			Success:      true,
			DebtorNumber: d.Number,
			Data:         fmt.Sprintf("debtor number %s already exists", d.Number),
		})
	case err != nil:
		log.Error().Err(err).Msg("debtor registration failed")
		return DebtorResponse{}, err
	}

	log.Info().Msg("debtor registered")
	return s.respondDebtor(ctx, DebtorResponse{Success: true, DebtorNumber: d.Number})
}

// CreateInvoice stores an invoice and a pending virtual account for every
// registered bank.
func (s *Service) CreateInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResponse, error) {
	req.Debtor = strings.TrimSpace(req.Debtor)
	req.InvoiceType = strings.TrimSpace(req.InvoiceType)
	req.FeeCode = strings.TrimSpace(req.FeeCode)

	log := s.log.With().
		Str("debtor_number", req.Debtor).
		Str("invoice_type", req.InvoiceType).
		Logger()

	resp := InvoiceResponse{
		Debtor:      req.Debtor,
		InvoiceType: req.InvoiceType,
		FeeCode:     req.FeeCode,
		Amount:      req.Amount,
		Description: req.Description,
		DueDate:     req.DueDate,
	}

	if errs := req.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		resp.Error = strings.Join(msgs, "; ")
		log.Warn().Str("error", resp.Error).Msg("invoice request rejected")
		return s.respondInvoice(ctx, resp)
	}

	var refused string
	err := s.ledger.InTx(ctx, func(tx store.Tx) error {
		debtor, err := tx.GetDebtor(ctx, req.Debtor)
		if errors.Is(err, store.ErrNotFound) {
			refused = fmt.Sprintf("debtor with number %s is not registered", req.Debtor)
			return nil
		}
		if err != nil {
			return err
		}

		invoiceType, err := tx.GetInvoiceType(ctx, req.InvoiceType)
		if errors.Is(err, store.ErrNotFound) {
			refused = fmt.Sprintf("invoice type with id %s is not registered", req.InvoiceType)
			return nil
		}
		if err != nil {
			return err
		}

		feeCode, err := s.resolveFeeCode(ctx, tx, req.FeeCode, log)
		if err != nil {
			return err
		}

		banks, err := tx.ListBanks(ctx)
		if err != nil {
			return err
		}
		bankIDs := make([]string, 0, len(banks))
		for _, b := range banks {
			bankIDs = append(bankIDs, b.ID)
		}

		inv, _, err := tx.CreateInvoice(ctx, store.CreateInvoiceInput{
			DebtorNumber:  debtor.Number,
			InvoiceTypeID: invoiceType.ID,
			FeeCodeID:     feeCode.ID,
			AmountDue:     req.Amount,
			Description:   req.Description,
			DueDate:       req.DueDate.Time,
			BankIDs:       bankIDs,
		})
		if err != nil {
			return err
		}

		resp.InvoiceNumber = inv.Number
		resp.FeeCode = feeCode.ID
		resp.BankIDs = bankIDs
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("invoice request failed")
		return InvoiceResponse{}, err
	}

	if refused != "" {
		log.Warn().Str("error", refused).Msg("invoice request rejected")
		resp.Error = refused
		return s.respondInvoice(ctx, resp)
	}

	resp.Success = true
	log.Info().
		Str("invoice_number", resp.InvoiceNumber).
		Str("fee_code", resp.FeeCode).
		Strs("banks", resp.BankIDs).
		Msg("invoice created")
	return s.respondInvoice(ctx, resp)
}

// RefuseDebtorPayload answers a registration entry that could not be decoded.
func (s *Service) RefuseDebtorPayload(ctx context.Context, cause error) DebtorResponse {
	s.log.Warn().Err(cause).Msg("debtor registration undecodable")
	resp, _ := s.respondDebtor(ctx, DebtorResponse{Success: false, Data: cause.Error()})
	return resp
}

// RefuseInvoicePayload answers an invoice entry that could not be decoded,
// echoing whatever fields were read before decoding failed.
func (s *Service) RefuseInvoicePayload(ctx context.Context, partial InvoiceRequest, cause error) InvoiceResponse {
	s.log.Warn().Err(cause).Str("debtor_number", partial.Debtor).Msg("invoice request undecodable")
	resp, _ := s.respondInvoice(ctx, InvoiceResponse{
		Error:       cause.Error(),
		Debtor:      partial.Debtor,
		InvoiceType: partial.InvoiceType,
		FeeCode:     partial.FeeCode,
		Amount:      partial.Amount,
		Description: partial.Description,
		DueDate:     partial.DueDate,
	})
	return resp
}

func (s *Service) resolveFeeCode(ctx context.Context, tx store.Tx, id string, log zerolog.Logger) (store.FeeCode, error) {
	if id == "" {
		return s.cfg.DefaultFeeCode, nil
	}
	feeCode, err := tx.GetFeeCode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("fee_code", id).Msg("unknown fee code, using default")
		return s.cfg.DefaultFeeCode, nil
	}
	return feeCode, err
}

func (s *Service) respondDebtor(ctx context.Context, resp DebtorResponse) (DebtorResponse, error) {
	if err := s.responder.DebtorResponse(ctx, resp); err != nil {
		s.log.Error().Err(err).Str("debtor_number", resp.DebtorNumber).Msg("debtor response not published")
	}
	return resp, nil
}

func (s *Service) respondInvoice(ctx context.Context, resp InvoiceResponse) (InvoiceResponse, error) {
	if err := s.responder.InvoiceResponse(ctx, resp); err != nil {
		s.log.Error().Err(err).Str("invoice_number", resp.InvoiceNumber).Msg("invoice response not published")
	}
	return resp, nil
}
