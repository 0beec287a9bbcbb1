package adapter

import (
	"testing"

	"atlas/internal/service/fulfillment/domain"
)

func TestPaypalDecodeWebhook(t *testing.T) {
	payload := []byte(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-123",
			"status": "COMPLETED",
			"amount": {"currency_code": "USD", "value": "75.00"},
			"invoice_id": "link-token-abc",
			"custom_id": "order-42"
		}
	}`)

	a := NewPaypalAdapter(nil, "")
	n, err := a.DecodeWebhook(payload)
	if err != nil {
		t.Fatalf("DecodeWebhook() error = %v", err)
	}
	if n.Provider != ProviderPaypal {
		t.Errorf("Provider = %s, want %s", n.Provider, ProviderPaypal)
	}
	if n.TransactionID != "CAP-123" {
		t.Errorf("TransactionID = %s, want CAP-123", n.TransactionID)
	}
	if n.Status != domain.NotificationApproved {
		t.Errorf("Status = %s, want APPROVED", n.Status)
	}
	if n.AmountMinor != 7500 {
		t.Errorf("AmountMinor = %d, want 7500", n.AmountMinor)
	}
	if n.Reference != "link-token-abc" || n.OrderRef != "order-42" {
		t.Errorf("refs = %s/%s, want link-token-abc/order-42", n.Reference, n.OrderRef)
	}
}

func TestPaypalStatusNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.NotificationStatus
	}{
		{"COMPLETED", domain.NotificationApproved},
		{"DECLINED", domain.NotificationDeclined},
		{"FAILED", domain.NotificationDeclined},
		{"REFUNDED", domain.NotificationVoided},
		{"REVERSED", domain.NotificationVoided},
		{"PENDING", domain.NotificationPending},
		{"SOMETHING_NEW", domain.NotificationPending},
	}
	for _, tt := range tests {
		if got := paypalStatus(tt.raw); got != tt.want {
			t.Errorf("paypalStatus(%s) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestPaypalDecodeWebhookRejectsMissingID(t *testing.T) {
	a := NewPaypalAdapter(nil, "")
	if _, err := a.DecodeWebhook([]byte(`{"resource": {"status": "COMPLETED", "amount": {"value": "1.00"}}}`)); err == nil {
		t.Error("expected error for webhook without capture id")
	}
	if _, err := a.DecodeWebhook([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestMidtransDecodeWebhook(t *testing.T) {
	payload := []byte(`{
		"transaction_id": "mt-789",
		"transaction_status": "settlement",
		"gross_amount": "150000.00",
		"order_id": "link-token-xyz",
		"custom_field1": "order-99"
	}`)

	a := NewMidtransAdapter(nil, "")
	n, err := a.DecodeWebhook(payload)
	if err != nil {
		t.Fatalf("DecodeWebhook() error = %v", err)
	}
	if n.Provider != ProviderMidtrans {
		t.Errorf("Provider = %s, want %s", n.Provider, ProviderMidtrans)
	}
	if n.TransactionID != "mt-789" {
		t.Errorf("TransactionID = %s, want mt-789", n.TransactionID)
	}
	if n.Status != domain.NotificationApproved {
		t.Errorf("Status = %s, want APPROVED", n.Status)
	}
	if n.AmountMinor != 15000000 {
		t.Errorf("AmountMinor = %d, want 15000000", n.AmountMinor)
	}
	if n.Reference != "link-token-xyz" || n.OrderRef != "order-99" {
		t.Errorf("refs = %s/%s, want link-token-xyz/order-99", n.Reference, n.OrderRef)
	}
}

func TestMidtransStatusNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.NotificationStatus
	}{
		{"capture", domain.NotificationApproved},
		{"settlement", domain.NotificationApproved},
		{"deny", domain.NotificationDeclined},
		{"cancel", domain.NotificationVoided},
		{"expire", domain.NotificationVoided},
		{"refund", domain.NotificationVoided},
		{"pending", domain.NotificationPending},
		{"authorize", domain.NotificationPending},
	}
	for _, tt := range tests {
		if got := midtransStatus(tt.raw); got != tt.want {
			t.Errorf("midtransStatus(%s) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestMidtransDecodeWebhookRejectsMissingTransaction(t *testing.T) {
	a := NewMidtransAdapter(nil, "")
	if _, err := a.DecodeWebhook([]byte(`{"transaction_status": "settlement", "gross_amount": "1.00"}`)); err == nil {
		t.Error("expected error for webhook without transaction_id")
	}
}
