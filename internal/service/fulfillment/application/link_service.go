// internal/service/fulfillment/application/link_service.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/domain"
)

// PaymentLinkService 管理支付链接的签发、查询与批量过期。
type PaymentLinkService struct {
	links  domain.PaymentLinkRepository
	orders domain.OrderRepository
	clock  domain.Clock
	tracer trace.Tracer
}

// NewPaymentLinkService 创建支付链接服务实例。
func NewPaymentLinkService(links domain.PaymentLinkRepository, orders domain.OrderRepository, clock domain.Clock, tracer trace.Tracer) *PaymentLinkService {
	return &PaymentLinkService{links: links, orders: orders, clock: clock, tracer: tracer}
}

// Create 为订单签发支付链接。
// 订单已有 Active 链接时直接返回已有链接而不是创建第二条；
// 订单已支付或已取消时拒绝签发。
func (s *PaymentLinkService) Create(ctx context.Context, tenantID, orderID string, ttl time.Duration) (*domain.PaymentLink, error) {
	ctx, span := s.tracer.Start(ctx, "link.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
	)

	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrOrderNotPayable
	}

	if existing, err := s.links.FindActiveByOrder(ctx, tenantID, orderID); err == nil {
		span.AddEvent("Reusing existing active payment link.")
		return existing, nil
	} else if !errors.Is(err, domain.ErrLinkNotFound) {
		return nil, err
	}

	link := domain.NewPaymentLink(tenantID, orderID, ttl, s.clock.Now())
	if err := s.links.Create(ctx, link); err != nil {
		// 并发签发时另一条链接抢先落库，读回它
		if errors.Is(err, domain.ErrActiveLinkExists) {
			return s.links.FindActiveByOrder(ctx, tenantID, orderID)
		}
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Time("expires_at", link.ExpiresAt).
		Msg("payment link issued")
	return link, nil
}

// Find 按令牌查询链接，并计算剩余有效时长。
func (s *PaymentLinkService) Find(ctx context.Context, tenantID, token string) (*LinkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "link.Find")
	defer span.End()

	link, err := s.links.FindByToken(ctx, tenantID, token)
	if err != nil {
		return nil, err
	}
	return &LinkResponse{
		Token:         link.Token,
		OrderID:       link.OrderID,
		Status:        string(link.Status),
		ExpiresAt:     link.ExpiresAt,
		TimeRemaining: link.TimeRemaining(s.clock.Now()),
	}, nil
}

// Cancel 手动作废一条 Active 链接。
func (s *PaymentLinkService) Cancel(ctx context.Context, tenantID, token string) error {
	ctx, span := s.tracer.Start(ctx, "link.Cancel")
	defer span.End()

	link, err := s.links.FindByToken(ctx, tenantID, token)
	if err != nil {
		return err
	}
	if link.IsTerminal() {
		return domain.ErrLinkTerminal
	}
	updated, err := s.links.UpdateStatus(ctx, tenantID, link.ID, domain.LinkActive, domain.LinkCancelled)
	if err != nil {
		return err
	}
	if !updated {
		// 并发下已被支付或清扫过期
		return domain.ErrLinkTerminal
	}
	return nil
}

// ExpireDue 批量把已到期的 Active 链接置为 Expired。
// 纯幂等：同一瞬间跑两次，第二次影响 0 行且不报错。
func (s *PaymentLinkService) ExpireDue(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "link.ExpireDue")
	defer span.End()

	n, err := s.links.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if n > 0 {
		linksExpired.Add(float64(n))
		logger.Ctx(ctx).Info().Int64("count", n).Msg("expired due payment links")
	}
	return n, nil
}
