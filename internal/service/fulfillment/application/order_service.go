// internal/service/fulfillment/application/order_service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/domain"
)

// ActorSystem 是后台任务（超时清扫、对账）写入时间线时使用的操作者标识。
const ActorSystem = "system"

// OrderService 是订单状态机的应用层入口。
// 对外的 Transition 拒绝 Paid 目标态，支付确认只能由对账协调器驱动。
type OrderService struct {
	orders       domain.OrderRepository
	reservations domain.ReservationRepository
	ledger       domain.StockLedger
	clock        domain.Clock
	tracer       trace.Tracer
}

// NewOrderService 创建订单服务实例。
func NewOrderService(orders domain.OrderRepository, reservations domain.ReservationRepository, ledger domain.StockLedger, clock domain.Clock, tracer trace.Tracer) *OrderService {
	return &OrderService{orders: orders, reservations: reservations, ledger: ledger, clock: clock, tracer: tracer}
}

// Transition 按状态机流转订单并追加时间线。
// 流转到 Canceled 时自动处理库存预留：Pending 取消释放占用；
// Paid 取消（退款路径）不自动回补库存，仅在时间线上留下补偿说明。
func (s *OrderService) Transition(ctx context.Context, tenantID, orderID string, to domain.Status, notes, actor string) error {
	ctx, span := s.tracer.Start(ctx, "order.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
		attribute.String("order.to_status", string(to)),
	)

	// 支付确认不走客户端通道
	if to == domain.StatusPaid {
		return domain.ErrInvalidTransition
	}

	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return err
	}

	from := order.Status
	if to == domain.StatusCanceled && from == domain.StatusPaid && notes == "" {
		notes = "canceled after payment; stock not restocked automatically"
	}

	entry, err := order.ApplyTransition(to, notes, actor, s.clock.Now())
	if err != nil {
		span.SetStatus(codes.Error, "transition rejected")
		return err
	}

	if err := s.orders.Transition(ctx, tenantID, orderID, from, to, entry); err != nil {
		span.RecordError(err)
		return err
	}

	if to == domain.StatusCanceled && from == domain.StatusPending {
		if err := s.releaseReservation(ctx, tenantID, orderID); err != nil {
			// 状态已取消成功，释放失败留给 TTL 清扫兜底
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("failed to release reservation after cancel")
		}
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor).
		Msg("order transitioned")
	return nil
}

// Timeline 返回订单的完整状态流转历史。
func (s *OrderService) Timeline(ctx context.Context, tenantID, orderID string) ([]domain.TimelineEntry, error) {
	return s.orders.Timeline(ctx, tenantID, orderID)
}

// Get 返回订单聚合。
func (s *OrderService) Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	return s.orders.FindByID(ctx, tenantID, orderID)
}

// cancelIfPending 是超时清扫专用的取消通道：以读到的 Pending 为条件流转到 Canceled。
// 支付在读取之后抢先时，仓储的条件更新影响 0 行并返回 ErrInvalidTransition，
// 已支付的订单绝不会被清扫取消。
func (s *OrderService) cancelIfPending(ctx context.Context, tenantID, orderID, notes, actor string) error {
	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}

	entry, err := order.ApplyTransition(domain.StatusCanceled, notes, actor, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.orders.Transition(ctx, tenantID, orderID, domain.StatusPending, domain.StatusCanceled, entry); err != nil {
		return err
	}
	if err := s.releaseReservation(ctx, tenantID, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("failed to release reservation after cancel")
	}
	return nil
}

// markPaid 是对账协调器专用的支付确认通道：
// 流转订单到 Paid，并在同一逻辑操作内提交库存预留（Stock 与 Reserved 一起扣减）。
// 订单已处于 Paid 时视为幂等成功。
func (s *OrderService) markPaid(ctx context.Context, tenantID, orderID, provider string) error {
	ctx, span := s.tracer.Start(ctx, "order.markPaid")
	defer span.End()

	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if order.Status == domain.StatusPaid {
		// 上一次确认可能在提交预留前中断，重放时补齐提交；
		// Resolve 的条件更新保证台账不会被重复扣减
		span.AddEvent("Order already paid; ensuring the reservation is committed.")
		return s.commitReservation(ctx, tenantID, orderID)
	}

	from := order.Status
	entry, err := order.ApplyTransition(domain.StatusPaid, "payment confirmed via "+provider, "reconciler", s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.orders.Transition(ctx, tenantID, orderID, from, domain.StatusPaid, entry); err != nil {
		return err
	}

	return s.commitReservation(ctx, tenantID, orderID)
}

// commitReservation 以 RESERVED 为条件把预留置为 COMMITTED，再扣减台账。
// 条件更新保证并发/重放下台账只被扣减一次。
func (s *OrderService) commitReservation(ctx context.Context, tenantID, orderID string) error {
	reservation, err := s.reservations.FindByOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	resolved, err := s.reservations.Resolve(ctx, tenantID, reservation.ID, domain.ReservationCommitted)
	if err != nil {
		return err
	}
	if !resolved {
		return nil // 已经被提交或释放过
	}
	return s.ledger.Commit(ctx, tenantID, reservation.Quantities)
}

// releaseReservation 与 commitReservation 对称：解除占用但不动库存。
func (s *OrderService) releaseReservation(ctx context.Context, tenantID, orderID string) error {
	reservation, err := s.reservations.FindByOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		return err
	}
	resolved, err := s.reservations.Resolve(ctx, tenantID, reservation.ID, domain.ReservationReleased)
	if err != nil {
		return err
	}
	if !resolved {
		return nil
	}
	return s.ledger.Release(ctx, tenantID, reservation.Quantities)
}
