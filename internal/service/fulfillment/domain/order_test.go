package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testItems() []OrderItem {
	return []OrderItem{
		{VariantID: "variant-a", ProductName: "Mug", UnitPriceMinor: 1500, Quantity: 2},
		{VariantID: "variant-b", ProductName: "Shirt", UnitPriceMinor: 4000, Quantity: 1},
	}
}

func TestNewOrder(t *testing.T) {
	order, err := NewOrder("tenant-1", "cust-1", testItems(), 7000, 700, 500, "coupon-1", testNow)
	if err != nil {
		t.Fatalf("NewOrder() error = %v", err)
	}
	if order.Status != StatusPending {
		t.Errorf("Status = %s, want %s", order.Status, StatusPending)
	}
	if order.TotalMinor != 6800 {
		t.Errorf("TotalMinor = %d, want 6800", order.TotalMinor)
	}
	if order.ID == "" {
		t.Error("order ID must be assigned")
	}
	for _, it := range order.Items {
		if it.OrderID != order.ID {
			t.Errorf("item OrderID = %s, want %s", it.OrderID, order.ID)
		}
		if it.ID == "" {
			t.Error("item ID must be assigned")
		}
	}
}

func TestNewOrderValidation(t *testing.T) {
	tests := []struct {
		name       string
		tenantID   string
		customerID string
		items      []OrderItem
	}{
		{"missing tenant", "", "cust-1", testItems()},
		{"missing customer", "tenant-1", "", testItems()},
		{"empty cart", "tenant-1", "cust-1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.tenantID, tt.customerID, tt.items, 0, 0, 0, "", testNow)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("NewOrder() error = %v, want ErrInvalidOrder", err)
			}
		})
	}
}

func TestApplyTransition(t *testing.T) {
	order, _ := NewOrder("tenant-1", "cust-1", testItems(), 7000, 0, 0, "", testNow)

	entry, err := order.ApplyTransition(StatusPaid, "payment confirmed", "reconciler", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}
	if order.Status != StatusPaid {
		t.Errorf("Status = %s, want %s", order.Status, StatusPaid)
	}
	if entry.FromStatus != StatusPending || entry.ToStatus != StatusPaid {
		t.Errorf("entry edge = %s->%s, want PENDING->PAID", entry.FromStatus, entry.ToStatus)
	}
	if entry.Actor != "reconciler" {
		t.Errorf("entry.Actor = %s, want reconciler", entry.Actor)
	}
}

func TestApplyTransitionRejectsIllegalEdge(t *testing.T) {
	order, _ := NewOrder("tenant-1", "cust-1", testItems(), 7000, 0, 0, "", testNow)

	_, err := order.ApplyTransition(StatusDelivered, "", "ops", testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ApplyTransition() error = %v, want ErrInvalidTransition", err)
	}
	// 被拒绝的流转不得修改实体
	if order.Status != StatusPending {
		t.Errorf("Status = %s, want unchanged %s", order.Status, StatusPending)
	}
}

func TestQuantitiesAggregatesDuplicateVariants(t *testing.T) {
	items := []OrderItem{
		{VariantID: "variant-a", Quantity: 2},
		{VariantID: "variant-a", Quantity: 3},
		{VariantID: "variant-b", Quantity: 1},
	}
	order, _ := NewOrder("tenant-1", "cust-1", items, 0, 0, 0, "", testNow)

	got := order.Quantities()
	if got["variant-a"] != 5 || got["variant-b"] != 1 {
		t.Errorf("Quantities() = %v, want variant-a:5 variant-b:1", got)
	}
}
