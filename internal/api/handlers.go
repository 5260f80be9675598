package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"vapay/internal/reconcile"
	"vapay/internal/store"
)

type invoiceResponse struct {
	Number          string                   `json:"number"`
	DebtorNumber    string                   `json:"debtor_number"`
	InvoiceType     string                   `json:"invoice_type"`
	FeeCode         string                   `json:"fee_code"`
	AmountDue       decimal.Decimal          `json:"amount_due"`
	AmountPaid      decimal.Decimal          `json:"amount_paid"`
	PaymentStatus   store.PaymentStatus      `json:"payment_status"`
	Status          store.InvoiceStatus      `json:"status"`
	Description     string                   `json:"description"`
	DueDate         string                   `json:"due_date"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	VirtualAccounts []virtualAccountResponse `json:"virtual_accounts"`
	Payments        []paymentResponse        `json:"payments"`
}

type virtualAccountResponse struct {
	ID            string         `json:"id"`
	InvoiceNumber string         `json:"invoice_number"`
	BankID        string         `json:"bank_id"`
	AccountNumber *string        `json:"account_number"`
	Status        store.VaStatus `json:"status"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type paymentResponse struct {
	ID               string          `json:"id"`
	BankID           string          `json:"bank_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	VirtualAccountID string          `json:"virtual_account_id"`
	Method           string          `json:"method"`
	Amount           decimal.Decimal `json:"amount"`
	Reference        string          `json:"reference"`
	Note             string          `json:"note"`
	TransactionTime  time.Time       `json:"transaction_time"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	number := c.Param("number")

	detail, err := s.invoices.GetInvoiceDetail(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "not_found")
			return
		}
		s.log.Error().Err(err).Str("invoice_number", number).Msg("get invoice failed")
		writeError(c, http.StatusInternalServerError, "internal_error")
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(detail))
}

// handleVAResponse replays a bank's VA status response through the same
// reconciler the stream listener uses.
func (s *Server) handleVAResponse(c *gin.Context) {
	var req reconcile.VAResponse
	if err := decodeStrict(c, &req); err != nil {
		s.logEvent("va_response_failed", true, map[string]any{"reason": "invalid_request"})
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	va, err := s.vaStatus.Apply(c.Request.Context(), req)
	if err != nil {
		reason := s.writeApplyError(c, err)
		s.logEvent("va_response_failed", true, map[string]any{
			"reason":         reason,
			"invoice_number": req.InvoiceNumber,
			"bank_id":        req.BankID,
		})
		return
	}

	s.logEvent("va_response_applied", false, map[string]any{
		"virtual_account_id": va.ID,
		"invoice_number":     va.InvoiceNumber,
		"status":             va.Status,
	})
	c.JSON(http.StatusOK, toVirtualAccountResponse(va))
}

func (s *Server) handleVAPayment(c *gin.Context) {
	var req reconcile.VAPayment
	if err := decodeStrict(c, &req); err != nil {
		s.logEvent("va_payment_failed", true, map[string]any{"reason": "invalid_request"})
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	payment, err := s.payments.Apply(c.Request.Context(), req)
	if err != nil {
		reason := s.writeApplyError(c, err)
		s.logEvent("va_payment_failed", true, map[string]any{
			"reason":         reason,
			"invoice_number": req.InvoiceNumber,
			"bank_id":        req.BankID,
			"amount":         req.Amount.String(),
		})
		return
	}

	s.logEvent("va_payment_applied", false, map[string]any{
		"payment_id":     payment.ID,
		"invoice_number": payment.InvoiceNumber,
		"amount":         payment.Amount.String(),
	})
	c.JSON(http.StatusCreated, toPaymentResponse(payment))
}

// writeApplyError maps a reconciler error to a response and returns the
// reason that was sent.
func (s *Server) writeApplyError(c *gin.Context, err error) string {
	if r, ok := reconcile.IsRejection(err); ok {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: string(r.Kind), Reason: r.Reason})
		return string(r.Kind)
	}
	writeError(c, http.StatusInternalServerError, "internal_error")
	return "internal_error"
}

func toInvoiceResponse(d store.InvoiceDetail) invoiceResponse {
	inv := d.Invoice
	resp := invoiceResponse{
		Number:          inv.Number,
		DebtorNumber:    inv.DebtorNumber,
		InvoiceType:     inv.InvoiceTypeID,
		FeeCode:         inv.FeeCodeID,
		AmountDue:       inv.AmountDue,
		AmountPaid:      inv.AmountPaid,
		PaymentStatus:   inv.PaymentStatus,
		Status:          inv.Status,
		Description:     inv.Description,
		DueDate:         inv.DueDate.Format("2006-01-02"),
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
		VirtualAccounts: make([]virtualAccountResponse, 0, len(d.VirtualAccounts)),
		Payments:        make([]paymentResponse, 0, len(d.Payments)),
	}
	for _, va := range d.VirtualAccounts {
		resp.VirtualAccounts = append(resp.VirtualAccounts, toVirtualAccountResponse(va))
	}
	for _, p := range d.Payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(p))
	}
	return resp
}

func toVirtualAccountResponse(va store.VirtualAccount) virtualAccountResponse {
	return virtualAccountResponse{
		ID:            va.ID,
		InvoiceNumber: va.InvoiceNumber,
		BankID:        va.BankID,
		AccountNumber: va.AccountNumber,
		Status:        va.Status,
		UpdatedAt:     va.UpdatedAt,
	}
}

func toPaymentResponse(p store.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		BankID:           p.BankID,
		InvoiceNumber:    p.InvoiceNumber,
		VirtualAccountID: p.VirtualAccountID,
		Method:           p.Method,
		Amount:           p.Amount,
		Reference:        p.Reference,
		Note:             p.Note,
		TransactionTime:  p.TransactionTime,
		CreatedAt:        p.CreatedAt,
	}
}
