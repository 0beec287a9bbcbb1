// internal/service/fulfillment/domain/order.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order 是订单聚合的根实体。
// 金额一律使用最小货币单位（分）的 int64，避免浮点误差。
type Order struct {
	ID             string
	TenantID       string
	CustomerID     string
	Status         Status
	SubtotalMinor  int64
	DiscountMinor  int64
	DeliveryMinor  int64
	TotalMinor     int64
	CouponID       string // 为空表示未使用优惠券
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem 是下单时刻商品信息的不可变快照。
// 商品后续改名改价不影响已生成的订单。
type OrderItem struct {
	ID             string
	OrderID        string
	VariantID      string
	ProductName    string
	UnitPriceMinor int64
	Quantity       int
}

// TimelineEntry 是订单时间线上的一条只追加记录，写入后永不修改或删除。
type TimelineEntry struct {
	ID         string
	TenantID   string
	OrderID    string
	FromStatus Status
	ToStatus   Status
	Notes      string
	Actor      string
	At         time.Time
}

// NewOrder 工厂函数：由定价完成的购物车创建一个待支付订单。
func NewOrder(tenantID, customerID string, items []OrderItem, subtotal, discount, delivery int64, couponID string, now time.Time) (*Order, error) {
	if tenantID == "" || customerID == "" || len(items) == 0 {
		return nil, ErrInvalidOrder
	}
	o := &Order{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		CustomerID:    customerID,
		Status:        StatusPending,
		SubtotalMinor: subtotal,
		DiscountMinor: discount,
		DeliveryMinor: delivery,
		TotalMinor:    subtotal - discount + delivery,
		CouponID:      couponID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].OrderID = o.ID
	}
	o.Items = items
	return o, nil
}

// ApplyTransition 按状态机流转订单并产出对应的时间线条目。
// 非法的边返回 ErrInvalidTransition，实体保持不变。
func (o *Order) ApplyTransition(to Status, notes, actor string, now time.Time) (TimelineEntry, error) {
	if !CanTransition(o.Status, to) {
		return TimelineEntry{}, ErrInvalidTransition
	}
	entry := TimelineEntry{
		ID:         uuid.New().String(),
		TenantID:   o.TenantID,
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   to,
		Notes:      notes,
		Actor:      actor,
		At:         now,
	}
	o.Status = to
	o.UpdatedAt = now
	return entry, nil
}

// Quantities 返回该订单按变体聚合的购买数量，供库存台账使用。
func (o *Order) Quantities() map[string]int {
	m := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		m[it.VariantID] += it.Quantity
	}
	return m
}

// GenesisEntry 是订单创建时写入时间线的第一条记录。
func (o *Order) GenesisEntry(actor string, now time.Time) TimelineEntry {
	return TimelineEntry{
		ID:         uuid.New().String(),
		TenantID:   o.TenantID,
		OrderID:    o.ID,
		FromStatus: "",
		ToStatus:   StatusPending,
		Notes:      "order created",
		Actor:      actor,
		At:         now,
	}
}
