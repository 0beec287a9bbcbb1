// internal/service/fulfillment/application/checkout_service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/domain"
)

// CheckoutService 把一次购物意图编排为一笔可支付的订单：
// 预留库存 -> 计算优惠 -> 建单（含核销）-> 签发支付链接。
// 预留之后的任何一步失败都会释放本次占用，调用方看不到半成品状态。
type CheckoutService struct {
	ledger       domain.StockLedger
	orders       domain.OrderRepository
	reservations domain.ReservationRepository
	coupons      *CouponEngine
	links        *PaymentLinkService
	clock        domain.Clock
	tracer       trace.Tracer

	reservationTTL time.Duration
	linkTTL        time.Duration
}

// NewCheckoutService 创建结算服务实例。
func NewCheckoutService(
	ledger domain.StockLedger,
	orders domain.OrderRepository,
	reservations domain.ReservationRepository,
	coupons *CouponEngine,
	links *PaymentLinkService,
	clock domain.Clock,
	tracer trace.Tracer,
	reservationTTL, linkTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		ledger: ledger, orders: orders, reservations: reservations,
		coupons: coupons, links: links, clock: clock, tracer: tracer,
		reservationTTL: reservationTTL, linkTTL: linkTTL,
	}
}

// Checkout 执行完整的结算编排。
func (s *CheckoutService) Checkout(ctx context.Context, tenantID string, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("cart.items", len(req.Items)),
	)

	quantities := req.quantities()
	for _, qty := range quantities {
		if qty <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
	}

	// 1. 原子预留库存，全有或全无
	result, err := s.ledger.TryReserve(ctx, tenantID, quantities)
	if err != nil {
		reservationAttempts.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}
	if !result.Success {
		reservationAttempts.WithLabelValues("insufficient").Inc()
		span.SetAttributes(attribute.StringSlice("stock.failed_variants", result.FailedVariantIDs))
		return nil, domain.ErrInsufficientStock
	}
	reservationAttempts.WithLabelValues("reserved").Inc()

	// 预留之后的失败都要走这条补偿路径
	release := func(cause error) {
		if err := s.ledger.Release(ctx, tenantID, quantities); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release reservation during checkout rollback")
		}
		span.SetStatus(codes.Error, cause.Error())
	}

	now := s.clock.Now()
	cart := req.cart()
	subtotal := cart.SubtotalMinor()

	// 2. 优惠计算（可选）
	var discount int64
	var redemption *domain.CouponRedemption
	var couponID string
	if req.CouponCode != "" {
		coupon, d, err := s.coupons.Evaluate(ctx, tenantID, req.CouponCode, cart, req.CustomerID, now)
		if err != nil {
			couponRedemptions.WithLabelValues("rejected").Inc()
			release(err)
			return nil, err
		}
		discount = d
		couponID = coupon.ID
		redemption = &domain.CouponRedemption{CouponID: coupon.ID}
	}

	// 3. 建单
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			VariantID:      it.VariantID,
			ProductName:    it.ProductName,
			UnitPriceMinor: it.UnitPriceMinor,
			Quantity:       it.Quantity,
		})
	}
	order, err := domain.NewOrder(tenantID, req.CustomerID, items, subtotal, discount, req.Delivery, couponID, now)
	if err != nil {
		release(err)
		return nil, err
	}
	if redemption != nil {
		redemption.Usage = domain.CouponUsage{
			ID:       uuid.New().String(),
			TenantID: tenantID,
			CouponID: redemption.CouponID,
			OrderID:  order.ID,
			At:       now,
		}
	}

	// 4. 预留记录先落库，清扫任务靠它定位超时的占用
	reservation := domain.NewStockReservation(tenantID, order.ID, quantities, s.reservationTTL, now)
	if err := s.reservations.Create(ctx, reservation); err != nil {
		release(err)
		return nil, err
	}

	// 5. 订单 + 条目 + 时间线首条 + 核销，单事务写入
	if err := s.orders.Create(ctx, order, order.GenesisEntry(req.CustomerID, now), redemption); err != nil {
		if _, resolveErr := s.reservations.Resolve(ctx, tenantID, reservation.ID, domain.ReservationReleased); resolveErr != nil {
			logger.Ctx(ctx).Error().Err(resolveErr).Msg("failed to resolve reservation during checkout rollback")
		}
		if redemption != nil {
			couponRedemptions.WithLabelValues("rejected").Inc()
		}
		release(err)
		return nil, err
	}
	if redemption != nil {
		couponRedemptions.WithLabelValues("redeemed").Inc()
	}

	resp := &CheckoutResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		SubtotalMinor: order.SubtotalMinor,
		DiscountMinor: order.DiscountMinor,
		TotalMinor:    order.TotalMinor,
	}

	// 6. 签发支付链接。失败不回滚订单：订单仍可通过链接接口补发
	link, err := s.links.Create(ctx, tenantID, order.ID, s.linkTTL)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("order created but payment link issuing failed")
		return resp, nil
	}
	resp.PaymentLink = &LinkResponse{
		Token:         link.Token,
		OrderID:       link.OrderID,
		Status:        string(link.Status),
		ExpiresAt:     link.ExpiresAt,
		TimeRemaining: link.TimeRemaining(now),
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Int64("total_minor", order.TotalMinor).
		Msg("checkout completed, order pending payment")
	return resp, nil
}

// Quote 只做优惠试算，不产生任何写副作用。
func (s *CheckoutService) Quote(ctx context.Context, tenantID string, req CheckoutRequest) (*QuoteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer span.End()

	cart := req.cart()
	_, discount, err := s.coupons.Evaluate(ctx, tenantID, req.CouponCode, cart, req.CustomerID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &QuoteResponse{
		CouponCode:    domain.NormalizeCode(req.CouponCode),
		SubtotalMinor: cart.SubtotalMinor(),
		DiscountMinor: discount,
	}, nil
}
