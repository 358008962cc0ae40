package e2e

import (
	"net/http"
	"testing"
)

type paymentView struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
}

type balanceView struct {
	AvailableBalance  int64 `json:"availableBalance"`
	ReceivableBalance int64 `json:"receivableBalance"`
}

func TestE2E_HealthCheck(t *testing.T) {
	code, _ := doJSON(t, http.MethodGet, "/health", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
}

func TestE2E_SaleSettlesAndRefundReverses(t *testing.T) {
	const seller = "e2e-seller-1"

	code, res := doJSON(t, http.MethodPost, "/api/v1/payments", map[string]any{
		"orderId":       "e2e-order-1",
		"amount":        100000,
		"currency":      "NGN",
		"paymentMethod": "card",
		"category":      "services",
		"payerId":       "e2e-buyer-1",
		"payeeId":       seller,
		"provider":      "fake",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("initialize payment: status %d: %+v", code, res.Error)
	}
	txn := decode[paymentView](t, res.Data)
	if txn.Status != "processing" {
		t.Fatalf("expected processing, got %s", txn.Status)
	}
	if txn.TotalAmount != 114100 {
		t.Fatalf("expected total 114100, got %d", txn.TotalAmount)
	}

	code, res = doJSON(t, http.MethodPost, "/api/v1/payments/callbacks/fake", map[string]any{
		"kind":      "payment",
		"reference": txn.Reference,
		"status":    "success",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("callback: status %d: %+v", code, res.Error)
	}
	if got := decode[paymentView](t, res.Data).Status; got != "completed" {
		t.Fatalf("expected completed after callback, got %s", got)
	}

	// A duplicate notification must not credit twice.
	code, _ = doJSON(t, http.MethodPost, "/api/v1/payments/callbacks/fake", map[string]any{
		"kind":      "payment",
		"reference": txn.Reference,
		"status":    "success",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("duplicate callback: status %d", code)
	}

	code, res = doJSON(t, http.MethodGet, "/api/v1/sellers/"+seller+"/balances/NGN", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("balance: status %d", code)
	}
	if got := decode[balanceView](t, res.Data).AvailableBalance; got != 97500 {
		t.Fatalf("expected available 97500, got %d", got)
	}
	if n := countRows(t, "balance_entries", "seller_id = ? AND kind = ?", seller, "credit"); n != 1 {
		t.Fatalf("expected one credit entry, got %d", n)
	}

	code, res = doJSON(t, http.MethodPost, "/api/v1/refunds", map[string]any{
		"transactionId": txn.ID,
		"amount":        40000,
		"reason":        "damaged",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("refund: status %d: %+v", code, res.Error)
	}

	code, res = doJSON(t, http.MethodGet, "/api/v1/sellers/"+seller+"/balances/NGN", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("balance after refund: status %d", code)
	}
	if got := decode[balanceView](t, res.Data).AvailableBalance; got != 58500 {
		t.Fatalf("expected available 58500 after refund, got %d", got)
	}

	code, res = doJSON(t, http.MethodPost, "/api/v1/refunds", map[string]any{
		"transactionId": txn.ID,
		"amount":        60001,
	}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for over-refund, got %d", code)
	}
	if res.Error == nil || res.Error.Type != "refund_exceeds_original" {
		t.Fatalf("unexpected error payload: %+v", res.Error)
	}
}

func TestE2E_RevenueShareChangeIsAudited(t *testing.T) {
	code, res := doJSON(t, http.MethodPost, "/api/v1/admin/revenue-shares", map[string]any{
		"name":                         "e2e-agents",
		"platformCommissionPercentage": "1",
		"platformCommissionFixed":      100,
	}, asActor("finance", "fin-1"))
	if code != http.StatusForbidden {
		t.Fatalf("finance must not create configurations, got %d", code)
	}

	code, res = doJSON(t, http.MethodPost, "/api/v1/admin/revenue-shares", map[string]any{
		"name":                         "e2e-agents",
		"platformCommissionPercentage": "1",
		"platformCommissionFixed":      100,
	}, asActor("admin", "ops-1"))
	if code != http.StatusCreated {
		t.Fatalf("create configuration: status %d: %+v", code, res.Error)
	}
	created := decode[struct {
		ID string `json:"id"`
	}](t, res.Data)

	code, res = doJSON(t, http.MethodGet, "/api/v1/admin/audit-logs?action=revenue_share.create&targetId="+created.ID, nil, asActor("finance", "fin-1"))
	if code != http.StatusOK {
		t.Fatalf("audit logs: status %d: %+v", code, res.Error)
	}
	entries := decode[[]struct {
		ActorRole string `json:"actorRole"`
		ActorID   string `json:"actorId"`
	}](t, res.Data)
	if len(entries) != 1 || entries[0].ActorRole != "admin" || entries[0].ActorID != "ops-1" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}
