// internal/service/fulfillment/domain/ports.go
package domain

import (
	"context"
	"time"
)

// StockLedger 是每变体库存计数的原子操作抽象。
// 它是全系统唯一的热点共享资源：实现必须保证单个变体上的修改是线性化的
// （行级条件更新或 per-key Lua），并且绝不持有跨变体的全局锁。
type StockLedger interface {
	// TryReserve 以稳定的升序遍历变体，逐个做 Stock-Reserved >= qty 的原子检查并占用。
	// 任何一个变体不满足时，之前的占用全部回滚，调用方看不到部分预留。
	TryReserve(ctx context.Context, tenantID string, quantities map[string]int) (ReservationResult, error)
	// Release 解除占用而不动库存。幂等：Reserved 永不为负。
	Release(ctx context.Context, tenantID string, quantities map[string]int) error
	// Commit 在支付确认后同时扣减 Stock 与 Reserved。
	Commit(ctx context.Context, tenantID string, quantities map[string]int) error
}

// CouponRedemption 描述一次核销：在订单创建事务内原子地
// 递增 UsageCount（受 UsageLimit 约束）并写入一条 CouponUsage。
type CouponRedemption struct {
	CouponID string
	Usage    CouponUsage
}

// OrderRepository 是订单聚合（含条目与时间线）的持久化接口。
type OrderRepository interface {
	// Create 在一个事务内落库订单、条目、时间线首条记录，以及可选的优惠券核销。
	// 核销受限失败时返回 ErrCouponLimitReached 并回滚一切。
	Create(ctx context.Context, order *Order, genesis TimelineEntry, redemption *CouponRedemption) error
	FindByID(ctx context.Context, tenantID, orderID string) (*Order, error)
	// Transition 以 from 状态为条件更新订单状态并在同一事务内追加时间线。
	// 条件不满足（并发抢先或非法边）时返回 ErrInvalidTransition。
	Transition(ctx context.Context, tenantID, orderID string, from, to Status, entry TimelineEntry) error
	Timeline(ctx context.Context, tenantID, orderID string) ([]TimelineEntry, error)
}

// CouponRepository 提供优惠券定义的读取，核销走 OrderRepository 的事务。
type CouponRepository interface {
	// FindByCode 按归一化后的券码做大小写不敏感查找。
	FindByCode(ctx context.Context, tenantID, code string) (*Coupon, error)
}

// PaymentLinkRepository 是支付链接的持久化接口。
type PaymentLinkRepository interface {
	Create(ctx context.Context, link *PaymentLink) error
	FindByToken(ctx context.Context, tenantID, token string) (*PaymentLink, error)
	FindActiveByOrder(ctx context.Context, tenantID, orderID string) (*PaymentLink, error)
	// UpdateStatus 以 from 状态为条件更新，返回是否真的更新了一行。
	UpdateStatus(ctx context.Context, tenantID, linkID string, from, to LinkStatus) (bool, error)
	// ExpireDue 批量把 Active 且已过期的链接置为 Expired，返回影响行数。幂等。
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// ReservationRepository 持久化在途预留，供支付确认与超时清扫定位。
type ReservationRepository interface {
	Create(ctx context.Context, reservation *StockReservation) error
	FindByOrder(ctx context.Context, tenantID, orderID string) (*StockReservation, error)
	// Resolve 以 RESERVED 为条件置为终态，返回是否真的更新了一行（幂等护栏）。
	Resolve(ctx context.Context, tenantID, reservationID string, to ReservationStatus) (bool, error)
	// ListExpired 返回已超过 TTL 仍在途的预留，供清扫任务强制释放。
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*StockReservation, error)
}

// PaymentAttemptRepository 持久化对账处理记录。
type PaymentAttemptRepository interface {
	// Record 插入一条处理记录；(provider, transactionId) 冲突时返回 false 且不报错。
	Record(ctx context.Context, record *PaymentAttemptRecord) (bool, error)
	// UpdateOutcome 把尚未终结的记录升级为给定结论，已终结的行保持不变。
	// 条件更新，返回是否真的改了一行。
	UpdateOutcome(ctx context.Context, provider, transactionID, orderID string, outcome AttemptOutcome) (bool, error)
	FindByTransaction(ctx context.Context, provider, transactionID string) (*PaymentAttemptRecord, error)
}

// ProviderClient 是单个支付渠道的逻辑契约，HTTP 细节在适配器内。
type ProviderClient interface {
	Name() string
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (PaymentSnapshot, error)
}

// RuleEngine 对一条规则表达式求值。具体实现见基础设施层的 CEL 适配器。
type RuleEngine interface {
	Evaluate(expression string, fact RuleFact) (bool, error)
}

// EventPublisher 把对账产生的事件投递给下游。
// 孤儿通知进入人工审核主题；支付成功事件供通知、报表等系统消费。
type EventPublisher interface {
	PublishOrphan(ctx context.Context, orphan OrphanedNotification) error
	PublishOrderPaid(ctx context.Context, event OrderPaidEvent) error
}

// Clock 抽象当前时间，测试中注入假时钟以获得确定性。
type Clock interface {
	Now() time.Time
}

// SystemClock 是生产环境使用的真实时钟。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
