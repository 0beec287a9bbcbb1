// internal/service/fulfillment/application/dto.go
package application

import (
	"time"

	"atlas/internal/service/fulfillment/domain"
)

// CheckoutRequest 是结算请求体。购物车由上游目录服务完成定价，
// 这里只负责预留、优惠、建单与支付链接。
type CheckoutRequest struct {
	CustomerID string             `json:"customer_id"`
	Items      []CheckoutItem     `json:"items"`
	CouponCode string             `json:"coupon_code,omitempty"`
	Delivery   int64              `json:"delivery_fee_minor"`
}

// CheckoutItem 是一条已定价的购物车条目。
type CheckoutItem struct {
	VariantID      string `json:"variant_id"`
	ProductName    string `json:"product_name"`
	CategoryID     string `json:"category_id,omitempty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int    `json:"quantity"`
}

// CheckoutResponse 是结算成功后的响应体。
type CheckoutResponse struct {
	OrderID       string        `json:"order_id"`
	Status        domain.Status `json:"status"`
	SubtotalMinor int64         `json:"subtotal_minor"`
	DiscountMinor int64         `json:"discount_minor"`
	TotalMinor    int64         `json:"total_minor"`
	PaymentLink   *LinkResponse `json:"payment_link,omitempty"`
}

// TransitionRequest 是订单状态流转的请求体。
type TransitionRequest struct {
	OrderID  string        `json:"order_id"`
	ToStatus domain.Status `json:"to_status"`
	Notes    string        `json:"notes,omitempty"`
	Actor    string        `json:"actor"`
}

// LinkResponse 是支付链接的对外视图。
type LinkResponse struct {
	Token         string        `json:"token"`
	OrderID       string        `json:"order_id"`
	Status        string        `json:"status"`
	ExpiresAt     time.Time     `json:"expires_at"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// ReconcileResult 描述一次对账处理的结论。
type ReconcileResult struct {
	Outcome domain.AttemptOutcome `json:"outcome"`
	OrderID string                `json:"order_id,omitempty"`
	// Replayed 为 true 表示这是一笔重放的通知，本次未产生任何新效果
	Replayed bool `json:"replayed,omitempty"`
}

// QuoteResponse 是优惠试算（不核销）的响应体。
type QuoteResponse struct {
	CouponCode    string `json:"coupon_code"`
	SubtotalMinor int64  `json:"subtotal_minor"`
	DiscountMinor int64  `json:"discount_minor"`
}

func (r CheckoutRequest) cart() domain.Cart {
	cart := domain.Cart{Items: make([]domain.CartItem, 0, len(r.Items))}
	for _, it := range r.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			VariantID:      it.VariantID,
			ProductName:    it.ProductName,
			CategoryID:     it.CategoryID,
			UnitPriceMinor: it.UnitPriceMinor,
			Quantity:       it.Quantity,
		})
	}
	return cart
}

func (r CheckoutRequest) quantities() map[string]int {
	m := make(map[string]int, len(r.Items))
	for _, it := range r.Items {
		m[it.VariantID] += it.Quantity
	}
	return m
}
