// internal/service/fulfillment/application/sweep_service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/domain"
)

// staleReservationBatch 限制单次清扫处理的在途预留数量，避免长事务
const staleReservationBatch = 200

// SweepService 是周期清扫任务的业务逻辑：
// 1) 批量过期到期的支付链接；2) 强制释放超过 TTL 的在途库存预留并取消其订单。
// 两步都是幂等的，调度器重复触发或多实例并发执行都不会产生双重效果。
type SweepService struct {
	links        *PaymentLinkService
	orderSvc     *OrderService
	reservations domain.ReservationRepository
	clock        domain.Clock
	tracer       trace.Tracer
}

// NewSweepService 创建清扫服务实例。
func NewSweepService(links *PaymentLinkService, orderSvc *OrderService, reservations domain.ReservationRepository, clock domain.Clock, tracer trace.Tracer) *SweepService {
	return &SweepService{links: links, orderSvc: orderSvc, reservations: reservations, clock: clock, tracer: tracer}
}

// Run 执行一轮完整清扫。
func (s *SweepService) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "sweep.Run")
	defer span.End()

	expired, err := s.links.ExpireDue(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "expire due payment links")
	}

	released, err := s.forceReleaseStale(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "force release stale reservations")
	}

	span.SetAttributes(
		attribute.Int64("sweep.links_expired", expired),
		attribute.Int("sweep.reservations_released", released),
	)
	return nil
}

// forceReleaseStale 处理预留已超时的订单。
// 待支付订单走取消通道；已取消但当时释放失败的订单在这里补齐释放；
// 已支付订单的预留归支付确认路径提交，清扫不碰。
func (s *SweepService) forceReleaseStale(ctx context.Context) (int, error) {
	stale, err := s.reservations.ListExpired(ctx, s.clock.Now(), staleReservationBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range stale {
		order, err := s.orderSvc.Get(ctx, r.TenantID, r.OrderID)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", r.OrderID).
				Msg("failed to load order for stale reservation")
			continue
		}

		switch order.Status {
		case domain.StatusPending:
			err := s.orderSvc.cancelIfPending(ctx, r.TenantID, r.OrderID,
				"payment window elapsed; reservation force-released", ActorSystem)
			switch {
			case err == nil:
				released++
				reservationsForceReleased.Inc()
			case errors.Is(err, domain.ErrInvalidTransition):
				// 读取之后被支付或取消抢先，下一轮按新状态处理
				continue
			default:
				logger.Ctx(ctx).Error().Err(err).
					Str("order_id", r.OrderID).
					Msg("failed to cancel order with stale reservation")
			}
		case domain.StatusCanceled:
			if err := s.orderSvc.releaseReservation(ctx, r.TenantID, r.OrderID); err != nil {
				logger.Ctx(ctx).Error().Err(err).
					Str("order_id", r.OrderID).
					Msg("failed to release reservation of canceled order")
				continue
			}
			released++
			reservationsForceReleased.Inc()
		default:
			continue
		}
	}
	if released > 0 {
		logger.Ctx(ctx).Info().Int("count", released).Msg("force-released stale reservations")
	}
	return released, nil
}
