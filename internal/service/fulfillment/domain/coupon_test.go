package domain

import (
	"testing"
	"time"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"summer10", "SUMMER10"},
		{"  Summer10  ", "SUMMER10"},
		{"SUMMER10", "SUMMER10"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCouponDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{"percentage", Coupon{DiscountType: DiscountTypePercentage, DiscountValue: 10}, 10000, 1000},
		{"percentage rounds down", Coupon{DiscountType: DiscountTypePercentage, DiscountValue: 10}, 105, 10},
		{"fixed amount", Coupon{DiscountType: DiscountTypeFixedAmount, DiscountValue: 500}, 10000, 500},
		{"fixed amount clamped to subtotal", Coupon{DiscountType: DiscountTypeFixedAmount, DiscountValue: 5000}, 3000, 3000},
		{"hundred percent", Coupon{DiscountType: DiscountTypePercentage, DiscountValue: 100}, 3000, 3000},
		{"zero subtotal", Coupon{DiscountType: DiscountTypeFixedAmount, DiscountValue: 500}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coupon.Discount(tt.subtotal); got != tt.want {
				t.Errorf("Discount(%d) = %d, want %d", tt.subtotal, got, tt.want)
			}
		})
	}
}

func TestCouponInWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{"no bounds", Coupon{}, true},
		{"inside both bounds", Coupon{StartDate: &before, EndDate: &after}, true},
		{"not started", Coupon{StartDate: &after}, false},
		{"already ended", Coupon{EndDate: &before}, false},
		{"only start passed", Coupon{StartDate: &before}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coupon.InWindow(now); got != tt.want {
				t.Errorf("InWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCouponLimitReached(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		count  int
		want   bool
	}{
		{"unlimited", 0, 1000, false},
		{"below limit", 5, 4, false},
		{"at limit", 5, 5, true},
		{"over limit", 5, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Coupon{UsageLimit: tt.limit, UsageCount: tt.count}
			if got := c.LimitReached(); got != tt.want {
				t.Errorf("LimitReached() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCartFact(t *testing.T) {
	cart := Cart{Items: []CartItem{
		{VariantID: "v1", CategoryID: "books", UnitPriceMinor: 1200, Quantity: 2},
		{VariantID: "v2", UnitPriceMinor: 800, Quantity: 1},
	}}

	fact := cart.Fact("cust-9")
	if fact.Subtotal != 3200 {
		t.Errorf("Subtotal = %d, want 3200", fact.Subtotal)
	}
	if fact.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", fact.Quantity)
	}
	if len(fact.VariantIDs) != 2 {
		t.Errorf("VariantIDs = %v, want 2 entries", fact.VariantIDs)
	}
	// 空类目不进入事实对象
	if len(fact.CategoryIDs) != 1 || fact.CategoryIDs[0] != "books" {
		t.Errorf("CategoryIDs = %v, want [books]", fact.CategoryIDs)
	}
	if fact.CustomerID != "cust-9" {
		t.Errorf("CustomerID = %s, want cust-9", fact.CustomerID)
	}
}
