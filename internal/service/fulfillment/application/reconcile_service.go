// internal/service/fulfillment/application/reconcile_service.go
package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/domain"
)

// ReconciliationService 把渠道支付通知匹配到订单并恰好一次地施加其效果。
// 幂等性由两层护栏共同保证：(provider, transactionId) 唯一的处理记录做重放短路，
// 订单状态的条件更新做最后兜底。
type ReconciliationService struct {
	attempts  domain.PaymentAttemptRepository
	links     domain.PaymentLinkRepository
	orders    domain.OrderRepository
	orderSvc  *OrderService
	publisher domain.EventPublisher
	providers map[string]domain.ProviderClient
	clock     domain.Clock
	tracer    trace.Tracer
}

// NewReconciliationService 创建对账协调器实例。
func NewReconciliationService(
	attempts domain.PaymentAttemptRepository,
	links domain.PaymentLinkRepository,
	orders domain.OrderRepository,
	orderSvc *OrderService,
	publisher domain.EventPublisher,
	providers []domain.ProviderClient,
	clock domain.Clock,
	tracer trace.Tracer,
) *ReconciliationService {
	byName := make(map[string]domain.ProviderClient, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &ReconciliationService{
		attempts: attempts, links: links, orders: orders, orderSvc: orderSvc,
		publisher: publisher, providers: byName, clock: clock, tracer: tracer,
	}
}

// Reconcile 处理一条归一化后的支付通知（webhook 推送或主动查询均走这里）。
// 孤儿通知返回成功结论而不是错误，接口层据此确认回调，避免渠道重试风暴。
func (s *ReconciliationService) Reconcile(ctx context.Context, tenantID string, n domain.PaymentNotification) (*ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.Reconcile", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("payment.provider", n.Provider),
		attribute.String("payment.transaction_id", n.TransactionID),
		attribute.String("payment.status", string(n.Status)),
	)

	// 1. 重放短路：同一笔交易已有终结结论时直接返回成功
	if existing, err := s.attempts.FindByTransaction(ctx, n.Provider, n.TransactionID); err == nil && existing != nil {
		if existing.Outcome.IsTerminal() {
			span.AddEvent("Replay of an already reconciled notification.")
			reconciliations.WithLabelValues(n.Provider, "replayed").Inc()
			return &ReconcileResult{Outcome: existing.Outcome, OrderID: existing.OrderID, Replayed: true}, nil
		}
	}

	// 2. 匹配订单：优先支付链接令牌，其次渠道侧订单号
	order, link, err := s.match(ctx, tenantID, n)
	if err != nil {
		if errors.Is(err, domain.ErrUnmatchedNotification) {
			return s.handleOrphan(ctx, tenantID, n)
		}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	// 3. 金额必须与订单总价严格相等（最小货币单位）
	if n.AmountMinor != order.TotalMinor {
		s.record(ctx, tenantID, n, order.ID, domain.OutcomeMismatch)
		reconciliations.WithLabelValues(n.Provider, "mismatch").Inc()
		span.SetStatus(codes.Error, "amount mismatch")
		logger.Ctx(ctx).Warn().
			Str("order_id", order.ID).
			Int64("order_total", order.TotalMinor).
			Int64("notified_amount", n.AmountMinor).
			Msg("reconciliation amount mismatch")
		return &ReconcileResult{Outcome: domain.OutcomeMismatch, OrderID: order.ID}, domain.ErrAmountMismatch
	}

	// 4. 施加效果
	switch n.Status {
	case domain.NotificationApproved:
		return s.applyApproved(ctx, tenantID, n, order, link)

	case domain.NotificationDeclined, domain.NotificationVoided:
		// 订单保持待支付，后续仍可重试
		s.record(ctx, tenantID, n, order.ID, domain.OutcomeDeclined)
		reconciliations.WithLabelValues(n.Provider, "declined").Inc()
		logger.Ctx(ctx).Info().
			Str("order_id", order.ID).
			Str("provider", n.Provider).
			Msg("payment declined by provider; order stays pending")
		return &ReconcileResult{Outcome: domain.OutcomeDeclined, OrderID: order.ID}, nil

	default:
		// Pending 等中间状态不改变任何东西，也不记账，等待终态通知
		span.AddEvent("Non-final provider status; nothing to apply.")
		return &ReconcileResult{Outcome: domain.OutcomeDeclined, OrderID: order.ID}, nil
	}
}

// LookupAndReconcile 是主动对账入口：按交易号查询渠道，再走统一的 Reconcile。
func (s *ReconciliationService) LookupAndReconcile(ctx context.Context, tenantID, provider, transactionID, reference string) (*ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.LookupAndReconcile")
	defer span.End()

	client, ok := s.providers[provider]
	if !ok {
		return nil, errors.Errorf("unknown payment provider %q", provider)
	}
	snapshot, err := client.FindPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.Reconcile(ctx, tenantID, domain.PaymentNotification{
		Provider:      provider,
		TransactionID: transactionID,
		Status:        snapshot.Status,
		AmountMinor:   snapshot.AmountMinor,
		Reference:     reference,
	})
}

// match 解析通知归属的订单与（可选的）支付链接。
func (s *ReconciliationService) match(ctx context.Context, tenantID string, n domain.PaymentNotification) (*domain.Order, *domain.PaymentLink, error) {
	if n.Reference != "" {
		link, err := s.links.FindByToken(ctx, tenantID, n.Reference)
		if err == nil {
			order, err := s.orders.FindByID(ctx, tenantID, link.OrderID)
			if err != nil {
				return nil, nil, err
			}
			return order, link, nil
		}
		if !errors.Is(err, domain.ErrLinkNotFound) {
			return nil, nil, err
		}
	}
	if n.OrderRef != "" {
		order, err := s.orders.FindByID(ctx, tenantID, n.OrderRef)
		if err == nil {
			return order, nil, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, domain.ErrUnmatchedNotification
}

// applyApproved 执行支付成功的全部效果：订单 Paid + 预留提交 + 链接 Paid。
func (s *ReconciliationService) applyApproved(ctx context.Context, tenantID string, n domain.PaymentNotification, order *domain.Order, link *domain.PaymentLink) (*ReconcileResult, error) {
	if err := s.orderSvc.markPaid(ctx, tenantID, order.ID, n.Provider); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// 订单已取消/发货等，支付来迟了：记为孤儿等价问题交人工处理
			logger.Ctx(ctx).Warn().
				Str("order_id", order.ID).
				Str("status", string(order.Status)).
				Msg("approved payment arrived for a non-pending order")
			return s.handleOrphan(ctx, tenantID, n)
		}
		return nil, err
	}

	if link != nil {
		if _, err := s.links.UpdateStatus(ctx, tenantID, link.ID, domain.LinkActive, domain.LinkPaid); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("link_id", link.ID).Msg("failed to mark payment link paid")
		}
	}

	s.record(ctx, tenantID, n, order.ID, domain.OutcomeApplied)
	reconciliations.WithLabelValues(n.Provider, "applied").Inc()

	if err := s.publisher.PublishOrderPaid(ctx, domain.OrderPaidEvent{
		TenantID:   tenantID,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalMinor: order.TotalMinor,
		Provider:   n.Provider,
		PaidAt:     s.clock.Now(),
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order paid event")
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("provider", n.Provider).
		Int64("amount_minor", n.AmountMinor).
		Msg("payment reconciled, order paid")
	return &ReconcileResult{Outcome: domain.OutcomeApplied, OrderID: order.ID}, nil
}

// handleOrphan 记录并发布孤儿通知，回调本身视为处理成功。
func (s *ReconciliationService) handleOrphan(ctx context.Context, tenantID string, n domain.PaymentNotification) (*ReconcileResult, error) {
	s.record(ctx, tenantID, n, "", domain.OutcomeOrphan)
	reconciliations.WithLabelValues(n.Provider, "orphan").Inc()

	orphan := domain.OrphanedNotification{
		TenantID:      tenantID,
		Provider:      n.Provider,
		TransactionID: n.TransactionID,
		AmountMinor:   n.AmountMinor,
		Reference:     n.Reference,
		ReceivedAt:    s.clock.Now(),
	}
	if err := s.publisher.PublishOrphan(ctx, orphan); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("provider", n.Provider).
			Str("transaction_id", n.TransactionID).
			Msg("failed to publish orphaned notification")
	}
	logger.Ctx(ctx).Warn().
		Str("provider", n.Provider).
		Str("transaction_id", n.TransactionID).
		Msg("orphaned payment notification queued for manual review")
	return &ReconcileResult{Outcome: domain.OutcomeOrphan}, nil
}

// record 落一条处理记录；唯一键冲突（并发重放）不是错误。
// 插入输给了已有的非终结记录（DECLINED 之后同一笔交易支付成功）时升级其结论，
// 终结结论落库后重放短路才能挡住后续重放。
func (s *ReconciliationService) record(ctx context.Context, tenantID string, n domain.PaymentNotification, orderID string, outcome domain.AttemptOutcome) {
	won, err := s.attempts.Record(ctx, &domain.PaymentAttemptRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Provider:      n.Provider,
		TransactionID: n.TransactionID,
		OrderID:       orderID,
		Outcome:       outcome,
		AmountMinor:   n.AmountMinor,
		CreatedAt:     s.clock.Now(),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("provider", n.Provider).
			Str("transaction_id", n.TransactionID).
			Msg("failed to record payment attempt")
		return
	}
	if !won && outcome.IsTerminal() {
		if _, err := s.attempts.UpdateOutcome(ctx, n.Provider, n.TransactionID, orderID, outcome); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("provider", n.Provider).
				Str("transaction_id", n.TransactionID).
				Msg("failed to upgrade payment attempt outcome")
		}
	}
}
