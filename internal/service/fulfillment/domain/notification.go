// internal/service/fulfillment/domain/notification.go
package domain

import "time"

// NotificationStatus 是两个支付渠道各自回调状态归一化之后的取值。
type NotificationStatus string

const (
	NotificationApproved NotificationStatus = "APPROVED"
	NotificationDeclined NotificationStatus = "DECLINED"
	NotificationVoided   NotificationStatus = "VOIDED"
	NotificationPending  NotificationStatus = "PENDING"
)

// PaymentNotification 是对账协调器的统一输入，
// 由各渠道适配器把自己的 webhook 载荷或主动查询结果翻译成这个形状。
type PaymentNotification struct {
	Provider      string             `json:"provider"`
	TransactionID string             `json:"transactionId"`
	Status        NotificationStatus `json:"status"`
	AmountMinor   int64              `json:"amountMinor"`
	// Reference 通常携带支付链接令牌
	Reference string `json:"reference"`
	// OrderRef 是渠道侧记录的我方订单号，作为 Reference 缺失时的备选匹配键
	OrderRef string `json:"orderRef,omitempty"`
}

// PaymentSnapshot 是主动向渠道查询单笔交易得到的状态快照。
type PaymentSnapshot struct {
	Status      NotificationStatus
	AmountMinor int64
	CreatedAt   time.Time
	PaidAt      *time.Time
}

// AttemptOutcome 记录一次对账处理的最终结论。
type AttemptOutcome string

const (
	OutcomeApplied  AttemptOutcome = "APPLIED"  // 订单已流转为已支付
	OutcomeDeclined AttemptOutcome = "DECLINED" // 渠道拒绝，订单保持待支付
	OutcomeMismatch AttemptOutcome = "MISMATCH" // 金额不符，订单未动
	OutcomeOrphan   AttemptOutcome = "ORPHAN"   // 无法匹配到订单，待人工处理
)

// IsTerminal 判断该结论是否已经终结：重放同一笔通知时直接短路返回。
// DECLINED 不是终结结论，同一笔交易后续仍可能成功。
func (o AttemptOutcome) IsTerminal() bool {
	return o == OutcomeApplied || o == OutcomeMismatch
}

// PaymentAttemptRecord 以 (Provider, TransactionID) 唯一地记录每一次对账处理，
// 是整个协调器幂等性的根基：同一笔渠道通知重放不会让订单二次流转。
type PaymentAttemptRecord struct {
	ID            string
	TenantID      string
	Provider      string
	TransactionID string
	OrderID       string // 孤儿通知该字段为空
	Outcome       AttemptOutcome
	AmountMinor   int64
	CreatedAt     time.Time
}
