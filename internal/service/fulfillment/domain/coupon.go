// internal/service/fulfillment/domain/coupon.go
package domain

import (
	"strings"
	"time"
)

// DiscountType 定义了优惠的计算方式。
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "PERCENTAGE"   // 按比例折扣，DiscountValue 为百分比
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT" // 立减，DiscountValue 为最小货币单位金额
)

// RuleType 是优惠券适用条件的种类。
type RuleType string

const (
	RuleMinSubtotal   RuleType = "MIN_SUBTOTAL"   // 满额门槛，Value 为最小货币单位金额
	RuleProductScope  RuleType = "PRODUCT_SCOPE"  // 仅限指定商品，Value 为逗号分隔的变体 ID
	RuleCategoryScope RuleType = "CATEGORY_SCOPE" // 仅限指定类目，Value 为逗号分隔的类目 ID
	RuleExpression    RuleType = "CEL"            // 通用 CEL 表达式，交给 RuleEngine 求值
)

// Coupon 是租户配置的一张优惠券定义。
// Code 全局大写存储，匹配时对输入做 trim + 大写归一。
type Coupon struct {
	ID            string
	TenantID      string
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	UsageLimit    int // 0 表示不限量
	UsageCount    int
	StartDate     *time.Time
	EndDate       *time.Time
	IsActive      bool
	Rules         []CouponRule
}

// CouponRule 约束一张券的适用范围。
type CouponRule struct {
	ID       string
	CouponID string
	RuleType RuleType
	Value    string
}

// CouponUsage 是一次核销记录，按 (CouponID, OrderID) 唯一，写入后不可变。
type CouponUsage struct {
	ID       string
	TenantID string
	CouponID string
	OrderID  string
	At       time.Time
}

// NormalizeCode 对用户输入的券码做归一化。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InWindow 判断 now 是否落在有效期内；未设置的边界不参与判断。
func (c *Coupon) InWindow(now time.Time) bool {
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// LimitReached 判断核销次数是否已达上限。
func (c *Coupon) LimitReached() bool {
	return c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit
}

// Discount 计算折扣金额，上限为小计本身，保证总价在运费之前不会为负。
func (c *Coupon) Discount(subtotalMinor int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountTypePercentage:
		d = subtotalMinor * c.DiscountValue / 100
	case DiscountTypeFixedAmount:
		d = c.DiscountValue
	}
	if d > subtotalMinor {
		d = subtotalMinor
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Cart 是优惠计算的输入：一份已定价的购物车。
type Cart struct {
	Items []CartItem
}

// CartItem 携带规则求值所需的商品维度信息。
type CartItem struct {
	VariantID      string
	ProductName    string
	CategoryID     string
	UnitPriceMinor int64
	Quantity       int
}

// SubtotalMinor 计算购物车小计。
func (c Cart) SubtotalMinor() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.UnitPriceMinor * int64(it.Quantity)
	}
	return sum
}

// RuleFact 是交给规则引擎求值的事实对象。
type RuleFact struct {
	Subtotal    int64    `json:"subtotal"`
	Quantity    int      `json:"quantity"`
	VariantIDs  []string `json:"variantIds"`
	CategoryIDs []string `json:"categoryIds"`
	CustomerID  string   `json:"customerId"`
}

// Fact 从购物车构造规则事实。
func (c Cart) Fact(customerID string) RuleFact {
	fact := RuleFact{
		Subtotal:   c.SubtotalMinor(),
		CustomerID: customerID,
	}
	for _, it := range c.Items {
		fact.Quantity += it.Quantity
		fact.VariantIDs = append(fact.VariantIDs, it.VariantID)
		if it.CategoryID != "" {
			fact.CategoryIDs = append(fact.CategoryIDs, it.CategoryID)
		}
	}
	return fact
}
