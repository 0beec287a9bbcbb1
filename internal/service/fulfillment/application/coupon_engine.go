// internal/service/fulfillment/application/coupon_engine.go
package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/service/fulfillment/domain"
)

// CouponEngine 负责校验一张优惠券并计算折扣金额。
// Evaluate 是纯读取（试算与结算共用）；核销的写副作用发生在订单创建事务内。
type CouponEngine struct {
	coupons    domain.CouponRepository
	ruleEngine domain.RuleEngine
	tracer     trace.Tracer
}

// NewCouponEngine 创建优惠引擎实例。
func NewCouponEngine(coupons domain.CouponRepository, ruleEngine domain.RuleEngine, tracer trace.Tracer) *CouponEngine {
	return &CouponEngine{coupons: coupons, ruleEngine: ruleEngine, tracer: tracer}
}

// Evaluate 校验券码并返回券定义与折扣金额。
// 所有校验失败都以类型化的业务错误返回，调用方据此区分展示文案。
func (e *CouponEngine) Evaluate(ctx context.Context, tenantID, code string, cart domain.Cart, customerID string, now time.Time) (*domain.Coupon, int64, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Evaluate")
	defer span.End()

	normalized := domain.NormalizeCode(code)
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("coupon.code", normalized),
	)

	coupon, err := e.coupons.FindByCode(ctx, tenantID, normalized)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}

	if !coupon.IsActive {
		return nil, 0, domain.ErrCouponInactive
	}
	if !coupon.InWindow(now) {
		return nil, 0, domain.ErrCouponOutOfWindow
	}
	if coupon.LimitReached() {
		return nil, 0, domain.ErrCouponLimitReached
	}

	fact := cart.Fact(customerID)
	for _, rule := range coupon.Rules {
		ok, err := e.checkRule(rule, cart, fact)
		if err != nil {
			span.RecordError(err)
			return nil, 0, err
		}
		if !ok {
			return nil, 0, &domain.RuleNotSatisfiedError{RuleType: rule.RuleType}
		}
	}

	discount := coupon.Discount(cart.SubtotalMinor())
	span.SetAttributes(attribute.Int64("coupon.discount_minor", discount))
	return coupon, discount, nil
}

// checkRule 对单条规则求值。内置三种结构化规则，其余交给 CEL 引擎。
func (e *CouponEngine) checkRule(rule domain.CouponRule, cart domain.Cart, fact domain.RuleFact) (bool, error) {
	switch rule.RuleType {
	case domain.RuleMinSubtotal:
		min, err := strconv.ParseInt(strings.TrimSpace(rule.Value), 10, 64)
		if err != nil {
			return false, errors.Wrapf(err, "malformed MIN_SUBTOTAL rule %s", rule.ID)
		}
		return cart.SubtotalMinor() >= min, nil

	case domain.RuleProductScope:
		scope := splitScope(rule.Value)
		for _, it := range cart.Items {
			if scope[it.VariantID] {
				return true, nil
			}
		}
		return false, nil

	case domain.RuleCategoryScope:
		scope := splitScope(rule.Value)
		for _, it := range cart.Items {
			if scope[it.CategoryID] {
				return true, nil
			}
		}
		return false, nil

	case domain.RuleExpression:
		return e.ruleEngine.Evaluate(rule.Value, fact)

	default:
		return false, errors.Errorf("unknown coupon rule type %q", rule.RuleType)
	}
}

func splitScope(value string) map[string]bool {
	scope := make(map[string]bool)
	for _, id := range strings.Split(value, ",") {
		if id = strings.TrimSpace(id); id != "" {
			scope[id] = true
		}
	}
	return scope
}
