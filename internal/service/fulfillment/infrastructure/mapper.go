// internal/service/fulfillment/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"

	"github.com/pkg/errors"

	"atlas/internal/service/fulfillment/domain"
)

// 数据库模型与领域模型之间的双向转换。
// 领域层对 GORM 零感知，所有标签与表结构细节都留在本包内。

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.ID,
		TenantID:      m.TenantID,
		CustomerID:    m.CustomerID,
		Status:        domain.Status(m.Status),
		SubtotalMinor: m.SubtotalMinor,
		DiscountMinor: m.DiscountMinor,
		DeliveryMinor: m.DeliveryMinor,
		TotalMinor:    m.TotalMinor,
		CouponID:      m.CouponID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, im := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:             im.ID,
			OrderID:        im.OrderID,
			VariantID:      im.VariantID,
			ProductName:    im.ProductName,
			UnitPriceMinor: im.UnitPriceMinor,
			Quantity:       im.Quantity,
		})
	}
	return o
}

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:            o.ID,
		TenantID:      o.TenantID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		SubtotalMinor: o.SubtotalMinor,
		DiscountMinor: o.DiscountMinor,
		DeliveryMinor: o.DeliveryMinor,
		TotalMinor:    o.TotalMinor,
		CouponID:      o.CouponID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ID:             it.ID,
			OrderID:        it.OrderID,
			VariantID:      it.VariantID,
			ProductName:    it.ProductName,
			UnitPriceMinor: it.UnitPriceMinor,
			Quantity:       it.Quantity,
		})
	}
	return m
}

func toTimelineModel(e domain.TimelineEntry) *TimelineModel {
	return &TimelineModel{
		ID:         e.ID,
		TenantID:   e.TenantID,
		OrderID:    e.OrderID,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		Notes:      e.Notes,
		Actor:      e.Actor,
		At:         e.At,
	}
}

func toDomainTimeline(m *TimelineModel) domain.TimelineEntry {
	return domain.TimelineEntry{
		ID:         m.ID,
		TenantID:   m.TenantID,
		OrderID:    m.OrderID,
		FromStatus: domain.Status(m.FromStatus),
		ToStatus:   domain.Status(m.ToStatus),
		Notes:      m.Notes,
		Actor:      m.Actor,
		At:         m.At,
	}
}

func toDomainCoupon(m *CouponModel) *domain.Coupon {
	c := &domain.Coupon{
		ID:            m.CouponID,
		TenantID:      m.TenantID,
		Code:          m.Code,
		DiscountType:  domain.DiscountType(m.DiscountType),
		DiscountValue: m.DiscountValue,
		UsageLimit:    m.UsageLimit,
		UsageCount:    m.UsageCount,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		IsActive:      m.IsActive,
	}
	for _, rm := range m.Rules {
		c.Rules = append(c.Rules, domain.CouponRule{
			ID:       rm.ID,
			CouponID: rm.CouponID,
			RuleType: domain.RuleType(rm.RuleType),
			Value:    rm.Value,
		})
	}
	return c
}

func toDomainLink(m *PaymentLinkModel) *domain.PaymentLink {
	return &domain.PaymentLink{
		ID:        m.ID,
		TenantID:  m.TenantID,
		OrderID:   m.OrderID,
		Token:     m.Token,
		Status:    domain.LinkStatus(m.Status),
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func toLinkModel(l *domain.PaymentLink) *PaymentLinkModel {
	return &PaymentLinkModel{
		ID:        l.ID,
		TenantID:  l.TenantID,
		OrderID:   l.OrderID,
		Token:     l.Token,
		Status:    string(l.Status),
		ExpiresAt: l.ExpiresAt,
		CreatedAt: l.CreatedAt,
	}
}

func toReservationModel(r *domain.StockReservation) (*ReservationModel, error) {
	quantities, err := json.Marshal(r.Quantities)
	if err != nil {
		return nil, errors.Wrap(err, "marshal reservation quantities")
	}
	return &ReservationModel{
		ID:         r.ID,
		TenantID:   r.TenantID,
		OrderID:    r.OrderID,
		Quantities: string(quantities),
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func toDomainReservation(m *ReservationModel) (*domain.StockReservation, error) {
	quantities := make(map[string]int)
	if err := json.Unmarshal([]byte(m.Quantities), &quantities); err != nil {
		return nil, errors.Wrapf(err, "unmarshal quantities of reservation %s", m.ID)
	}
	return &domain.StockReservation{
		ID:         m.ID,
		TenantID:   m.TenantID,
		OrderID:    m.OrderID,
		Quantities: quantities,
		Status:     domain.ReservationStatus(m.Status),
		ExpiresAt:  m.ExpiresAt,
		CreatedAt:  m.CreatedAt,
	}, nil
}

func toAttemptModel(r *domain.PaymentAttemptRecord) *PaymentAttemptModel {
	return &PaymentAttemptModel{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Provider:      r.Provider,
		TransactionID: r.TransactionID,
		OrderID:       r.OrderID,
		Outcome:       string(r.Outcome),
		AmountMinor:   r.AmountMinor,
		CreatedAt:     r.CreatedAt,
	}
}

func toDomainAttempt(m *PaymentAttemptModel) *domain.PaymentAttemptRecord {
	return &domain.PaymentAttemptRecord{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Provider:      m.Provider,
		TransactionID: m.TransactionID,
		OrderID:       m.OrderID,
		Outcome:       domain.AttemptOutcome(m.Outcome),
		AmountMinor:   m.AmountMinor,
		CreatedAt:     m.CreatedAt,
	}
}
