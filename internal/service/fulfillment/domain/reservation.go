// internal/service/fulfillment/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus 标记一笔预留的归宿。
// RESERVED 表示“在途”；RELEASED/COMMITTED 都是终态，到达终态的预留不再参与清扫。
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

// StockReservation 把一次下单尝试映射到一组 (variantID -> 数量) 的库存占用。
// 支付确认后 Commit（扣减库存），取消或超时后 Release（仅解除占用）。
type StockReservation struct {
	ID         string
	TenantID   string
	OrderID    string
	Quantities map[string]int
	Status     ReservationStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// NewStockReservation 为订单创建一条在途预留记录。
func NewStockReservation(tenantID, orderID string, quantities map[string]int, ttl time.Duration, now time.Time) *StockReservation {
	return &StockReservation{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		OrderID:    orderID,
		Quantities: quantities,
		Status:     ReservationReserved,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
}

// ReservationResult 是一次多变体预留尝试的结果。
// Success 为 true 时所有变体都已占用；为 false 时不产生任何可见的占用。
type ReservationResult struct {
	Success            bool
	ReservedVariantIDs []string
	FailedVariantIDs   []string
}

// ProductVariant 持有一个商品变体的库存计数。
// 不变量：0 <= Reserved <= Stock。
type ProductVariant struct {
	ID       string
	TenantID string
	Stock    int
	Reserved int
}

// Available 返回可供新预留使用的数量。
func (v *ProductVariant) Available() int {
	return v.Stock - v.Reserved
}
