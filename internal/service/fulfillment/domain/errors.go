// internal/service/fulfillment/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 业务错误都是预期内的结果，以哨兵错误的形式返回给调用方，
// 由接口层通过 errors.Is 映射为稳定的错误码；绝不以 panic 形式外泄。
var (
	ErrInvalidOrder      = errors.New("order is missing required fields")
	ErrOrderNotFound     = errors.New("order not found")
	ErrVariantNotFound   = errors.New("product variant not found")
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrInsufficientStock = errors.New("insufficient stock for requested quantity")
	ErrInvalidQuantity   = errors.New("reservation quantity must be positive")

	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponOutOfWindow   = errors.New("coupon is outside its validity window")
	ErrCouponLimitReached  = errors.New("coupon usage limit reached")
	ErrCouponRuleNotMet    = errors.New("coupon rule not satisfied")

	ErrLinkNotFound     = errors.New("payment link not found")
	ErrOrderNotPayable  = errors.New("order is not in a payable state")
	ErrLinkTerminal     = errors.New("payment link is in a terminal state")
	ErrActiveLinkExists = errors.New("order already has an active payment link")

	ErrAmountMismatch        = errors.New("notification amount does not match order total")
	ErrUnmatchedNotification = errors.New("notification could not be matched to an order")

	ErrReservationNotFound = errors.New("stock reservation not found")
)

// RuleNotSatisfiedError 标注具体是哪一类优惠规则未满足。
// errors.Is(err, ErrCouponRuleNotMet) 对它成立。
type RuleNotSatisfiedError struct {
	RuleType RuleType
}

func (e *RuleNotSatisfiedError) Error() string {
	return fmt.Sprintf("coupon rule not satisfied: %s", e.RuleType)
}

func (e *RuleNotSatisfiedError) Is(target error) bool {
	return target == ErrCouponRuleNotMet
}
