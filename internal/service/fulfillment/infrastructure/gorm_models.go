// internal/service/fulfillment/infrastructure/gorm_models.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// OrderModel 对应数据库中的 orders 表。
type OrderModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	TenantID      string `gorm:"size:36;index:idx_orders_tenant;not null"`
	CustomerID    string `gorm:"size:36;index;not null"`
	Status        string `gorm:"size:16;index;not null"`
	SubtotalMinor int64  `gorm:"not null"`
	DiscountMinor int64  `gorm:"not null"`
	DeliveryMinor int64  `gorm:"not null"`
	TotalMinor    int64  `gorm:"not null"`
	CouponID      string `gorm:"size:36"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 是下单时刻的商品快照行。
type OrderItemModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrderID        string `gorm:"size:36;index;not null"`
	VariantID      string `gorm:"size:36;index;not null"`
	ProductName    string `gorm:"size:255;not null"`
	UnitPriceMinor int64  `gorm:"not null"`
	Quantity       int    `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// TimelineModel 是订单状态流转的只追加事件行，没有 UpdatedAt，落库后不再变更。
type TimelineModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	TenantID   string `gorm:"size:36;index;not null"`
	OrderID    string `gorm:"size:36;index:idx_timeline_order;not null"`
	FromStatus string `gorm:"size:16"`
	ToStatus   string `gorm:"size:16;not null"`
	Notes      string `gorm:"type:text"`
	Actor      string `gorm:"size:64;not null"`
	At         time.Time
}

func (TimelineModel) TableName() string { return "order_timeline" }

// VariantModel 持有每个商品变体的库存计数，是全系统唯一的热点行。
// 所有修改都走条件 UPDATE（行级 CAS），绝不读出再写回。
type VariantModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	TenantID  string `gorm:"primaryKey;size:36"`
	Stock     int    `gorm:"not null"`
	Reserved  int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (VariantModel) TableName() string { return "product_variants" }

// ReservationModel 把一次下单尝试的库存占用持久化，供提交/释放/超时清扫定位。
type ReservationModel struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"size:36;index;not null"`
	OrderID  string `gorm:"size:36;uniqueIndex;not null"`
	// Quantities 是 variantID -> 数量 的 JSON 编码
	Quantities string    `gorm:"type:text;not null"`
	Status     string    `gorm:"size:16;index:idx_reservations_sweep;not null"`
	ExpiresAt  time.Time `gorm:"index:idx_reservations_sweep"`
	CreatedAt  time.Time
}

func (ReservationModel) TableName() string { return "stock_reservations" }

// CouponModel 对应 coupons 表。UsageLimit 为 0 表示不限量。
type CouponModel struct {
	gorm.Model
	CouponID      string `gorm:"size:36;uniqueIndex;not null"`
	TenantID      string `gorm:"size:36;uniqueIndex:idx_coupons_tenant_code;not null"`
	Code          string `gorm:"size:64;uniqueIndex:idx_coupons_tenant_code;not null"`
	DiscountType  string `gorm:"size:16;not null"`
	DiscountValue int64  `gorm:"not null"`
	UsageLimit    int    `gorm:"not null;default:0"`
	UsageCount    int    `gorm:"not null;default:0"`
	StartDate     *time.Time
	EndDate       *time.Time
	IsActive      bool `gorm:"not null;default:true"`

	Rules []CouponRuleModel `gorm:"foreignKey:CouponID;references:CouponID"`
}

func (CouponModel) TableName() string { return "coupons" }

// CouponRuleModel 是一条适用条件行。
type CouponRuleModel struct {
	ID       string `gorm:"primaryKey;size:36"`
	CouponID string `gorm:"size:36;index;not null"`
	RuleType string `gorm:"size:32;not null"`
	Value    string `gorm:"type:text;not null"`
}

func (CouponRuleModel) TableName() string { return "coupon_rules" }

// CouponUsageModel 是一次核销记录，(coupon_id, order_id) 唯一，写入后不可变。
type CouponUsageModel struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"size:36;index;not null"`
	CouponID string `gorm:"size:36;uniqueIndex:idx_usage_coupon_order;not null"`
	OrderID  string `gorm:"size:36;uniqueIndex:idx_usage_coupon_order;not null"`
	At       time.Time
}

func (CouponUsageModel) TableName() string { return "coupon_usages" }

// PaymentLinkModel 对应 payment_links 表。
type PaymentLinkModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TenantID  string    `gorm:"size:36;index;not null"`
	OrderID   string    `gorm:"size:36;index;not null"`
	Token     string    `gorm:"size:128;uniqueIndex;not null"`
	Status    string    `gorm:"size:16;index:idx_links_sweep;not null"`
	ExpiresAt time.Time `gorm:"index:idx_links_sweep"`
	CreatedAt time.Time
}

func (PaymentLinkModel) TableName() string { return "payment_links" }

// PaymentAttemptModel 以 (provider, transaction_id) 唯一地记录每次对账处理，
// 唯一索引就是协调器幂等性的数据库兜底。
type PaymentAttemptModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	TenantID      string `gorm:"size:36;index;not null"`
	Provider      string `gorm:"size:32;uniqueIndex:idx_attempts_txn;not null"`
	TransactionID string `gorm:"size:128;uniqueIndex:idx_attempts_txn;not null"`
	OrderID       string `gorm:"size:36;index"`
	Outcome       string `gorm:"size:16;not null"`
	AmountMinor   int64  `gorm:"not null"`
	CreatedAt     time.Time
}

func (PaymentAttemptModel) TableName() string { return "payment_attempts" }

// AutoMigrate 建表。生产环境由独立的迁移流程负责，这里服务于本地与测试环境。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OrderModel{},
		&OrderItemModel{},
		&TimelineModel{},
		&VariantModel{},
		&ReservationModel{},
		&CouponModel{},
		&CouponRuleModel{},
		&CouponUsageModel{},
		&PaymentLinkModel{},
		&PaymentAttemptModel{},
	)
}
