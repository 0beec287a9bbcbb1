// internal/service/fulfillment/domain/events.go
package domain

import "time"

// OrphanedNotification 是无法匹配到任何订单的渠道通知。
// 发布到人工审核主题而不是静默丢弃，同时回调本身仍然确认成功，避免渠道重试风暴。
type OrphanedNotification struct {
	TenantID      string    `json:"tenantId"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transactionId"`
	AmountMinor   int64     `json:"amountMinor"`
	Reference     string    `json:"reference"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// OrderPaidEvent 在订单支付确认后发布，供下游（通知、报表）消费。
type OrderPaidEvent struct {
	TenantID   string    `json:"tenantId"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	TotalMinor int64     `json:"totalMinor"`
	Provider   string    `json:"provider"`
	PaidAt     time.Time `json:"paidAt"`
}
