package api_test

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"vapay/internal/store"
)

type virtualAccountBody struct {
	ID            string  `json:"id"`
	BankID        string  `json:"bank_id"`
	AccountNumber *string `json:"account_number"`
	Status        string  `json:"status"`
}

type paymentBody struct {
	ID               string    `json:"id"`
	VirtualAccountID string    `json:"virtual_account_id"`
	Method           string    `json:"method"`
	Amount           string    `json:"amount"`
	Reference        string    `json:"reference"`
	Note             string    `json:"note"`
	CreatedAt        time.Time `json:"created_at"`
}

func paymentJSON(invoiceNumber string, amount int64, reference string) string {
	return fmt.Sprintf(`{
		"bankId": "BNI",
		"invoiceNumber": %q,
		"amount": %d,
		"accountNumber": "8808BNI",
		"reference": %q,
		"paymentTime": "2024-03-02T10:30:00+07:00"
	}`, invoiceNumber, amount, reference)
}

func TestVAResponseActivatesPendingAccount(t *testing.T) {
	env := setupTest(t)
	seedInvoice(t, env.mem, "INV-1", 1000)
	id := seedVirtualAccount(t, env.mem, "INV-1", "BNI", store.VaPending)

	body := `{"invoiceNumber":"INV-1","bankId":"BNI","requestType":"PROVISION","requestStatus":"SUCCESS","accountNumber":"9001"}`
	resp := env.doRequest(t, http.MethodPost, "/v1/va-responses", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var got virtualAccountBody
	decodeBody(t, resp, &got)
	if got.ID != id || got.Status != "ACTIVE" || got.AccountNumber == nil || *got.AccountNumber != "9001" {
		t.Fatalf("unexpected virtual account: %+v", got)
	}

	replay := env.doRequest(t, http.MethodPost, "/v1/va-responses", body)
	defer replay.Body.Close()

	if replay.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("replay: expected %d, got %d", http.StatusUnprocessableEntity, replay.StatusCode)
	}
	var rejected errorBody
	decodeBody(t, replay, &rejected)
	if rejected.Error != "unmatched" {
		t.Fatalf("expected unmatched, got %q", rejected.Error)
	}
}

func TestVAResponseInvalidRequest(t *testing.T) {
	env := setupTest(t)

	bodies := []string{
		`{"invoiceNumber":`,
		`{"invoiceNumber":"INV-1","bankId":"BNI","requestType":"PROVISION","requestStatus":"SUCCESS","extra":1}`,
		`{"invoiceNumber":"INV-1","bankId":"BNI","requestType":"ACTIVATE","requestStatus":"SUCCESS"}`,
		`{"invoiceNumber":"INV-1"} {"invoiceNumber":"INV-2"}`,
	}
	for _, body := range bodies {
		resp := env.doRequest(t, http.MethodPost, "/v1/va-responses", body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected %d, got %d", body, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestVAPaymentSettlesInvoice(t *testing.T) {
	env := setupTest(t)
	seedInvoice(t, env.mem, "INV-1", 1000)
	payingID := seedVirtualAccount(t, env.mem, "INV-1", "BNI", store.VaActive)
	otherID := seedVirtualAccount(t, env.mem, "INV-1", "BSI", store.VaActive)

	resp := env.doRequest(t, http.MethodPost, "/v1/va-payments", paymentJSON("INV-1", 1000, "TRX-1"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	var got paymentBody
	decodeBody(t, resp, &got)
	if got.VirtualAccountID != payingID || got.Amount != "1000" || got.Method != store.MethodVirtualAccount {
		t.Fatalf("unexpected payment: %+v", got)
	}
	if got.Note != "Payment via VA Bank BNI Number 8808BNI" {
		t.Fatalf("unexpected note: %q", got.Note)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	inv, _ := env.mem.Invoice("INV-1")
	if inv.PaymentStatus != store.PaymentPaid || inv.Status != store.InvoiceInactive {
		t.Fatalf("unexpected invoice state: payment=%s status=%s", inv.PaymentStatus, inv.Status)
	}
	paying, _ := env.mem.VirtualAccount(payingID)
	other, _ := env.mem.VirtualAccount(otherID)
	if paying.Status != store.VaInactive || other.Status != store.VaPendingDelete {
		t.Fatalf("unexpected va states: paying=%s other=%s", paying.Status, other.Status)
	}
}

func TestVAPaymentRejected(t *testing.T) {
	env := setupTest(t)
	seedInvoice(t, env.mem, "INV-1", 1000)
	seedVirtualAccount(t, env.mem, "INV-1", "BNI", store.VaActive)

	tests := []struct {
		name string
		body string
		kind string
	}{
		{"overpayment", paymentJSON("INV-1", 1001, "TRX-1"), "policy"},
		{"unknown invoice", paymentJSON("INV-9", 10, "TRX-2"), "unmatched"},
		{"zero amount", paymentJSON("INV-1", 0, "TRX-3"), "malformed"},
	}
	for _, tt := range tests {
		resp := env.doRequest(t, http.MethodPost, "/v1/va-payments", tt.body)

		if resp.StatusCode != http.StatusUnprocessableEntity {
			resp.Body.Close()
			t.Fatalf("%s: expected %d, got %d", tt.name, http.StatusUnprocessableEntity, resp.StatusCode)
		}
		var got errorBody
		decodeBody(t, resp, &got)
		resp.Body.Close()
		if got.Error != tt.kind || got.Reason == "" {
			t.Fatalf("%s: unexpected error body %+v", tt.name, got)
		}
	}

	inv, _ := env.mem.Invoice("INV-1")
	if !inv.AmountPaid.IsZero() {
		t.Fatalf("expected nothing paid, got %s", inv.AmountPaid)
	}
	if n := len(env.mem.Payments()); n != 0 {
		t.Fatalf("expected no payments, got %d", n)
	}
}

func TestConcurrentVAPayments(t *testing.T) {
	env := setupTest(t)
	seedInvoice(t, env.mem, "INV-1", 1000)
	seedVirtualAccount(t, env.mem, "INV-1", "BNI", store.VaActive)

	const workers = 8
	var wg sync.WaitGroup
	statuses := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := env.doRequest(t, http.MethodPost, "/v1/va-payments", paymentJSON("INV-1", 1000, fmt.Sprintf("TRX-%d", i)))
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusUnprocessableEntity:
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one payment to succeed, got %d", created)
	}

	inv, _ := env.mem.Invoice("INV-1")
	if inv.AmountPaid.String() != "1000" {
		t.Fatalf("expected amount paid 1000, got %s", inv.AmountPaid)
	}
}
