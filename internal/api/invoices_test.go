package api_test

import (
	"net/http"
	"testing"
)

type invoiceBody struct {
	Number          string `json:"number"`
	AmountDue       string `json:"amount_due"`
	AmountPaid      string `json:"amount_paid"`
	PaymentStatus   string `json:"payment_status"`
	Status          string `json:"status"`
	DueDate         string `json:"due_date"`
	VirtualAccounts []struct {
		ID            string  `json:"id"`
		BankID        string  `json:"bank_id"`
		AccountNumber *string `json:"account_number"`
		Status        string  `json:"status"`
	} `json:"virtual_accounts"`
	Payments []struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	} `json:"payments"`
}

func TestGetInvoice(t *testing.T) {
	env := setupTest(t)
	seedInvoice(t, env.mem, "INV-1", 150000)
	seedVirtualAccount(t, env.mem, "INV-1", "BNI", "ACTIVE")
	seedVirtualAccount(t, env.mem, "INV-1", "BSI", "PENDING")

	resp := env.doRequest(t, http.MethodGet, "/v1/invoices/INV-1", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var got invoiceBody
	decodeBody(t, resp, &got)

	if got.Number != "INV-1" || got.AmountDue != "150000" || got.AmountPaid != "0" {
		t.Fatalf("unexpected invoice: %+v", got)
	}
	if got.PaymentStatus != "UNPAID" || got.Status != "ACTIVE" {
		t.Fatalf("unexpected status: payment=%s invoice=%s", got.PaymentStatus, got.Status)
	}
	if got.DueDate != "2024-06-30" {
		t.Fatalf("expected due date 2024-06-30, got %s", got.DueDate)
	}
	if len(got.VirtualAccounts) != 2 {
		t.Fatalf("expected 2 virtual accounts, got %d", len(got.VirtualAccounts))
	}
	if got.Payments == nil || len(got.Payments) != 0 {
		t.Fatalf("expected empty payments list, got %v", got.Payments)
	}
}

func TestGetInvoiceNotFound(t *testing.T) {
	env := setupTest(t)

	resp := env.doRequest(t, http.MethodGet, "/v1/invoices/INV-404", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	var got errorBody
	decodeBody(t, resp, &got)
	if got.Error != "not_found" {
		t.Fatalf("expected not_found, got %q", got.Error)
	}
}
