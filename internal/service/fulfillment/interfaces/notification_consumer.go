// internal/service/fulfillment/interfaces/notification_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/fulfillment/application"
	"atlas/internal/service/fulfillment/domain"
)

// TopicPaymentNotifications 承接渠道网关转投的支付通知。
// webhook 直连与消息队列两条路最终都汇聚到同一个 Reconcile 入口。
const TopicPaymentNotifications = "payment-notifications"

// notificationEnvelope 是队列消息的信封，载荷就是归一化后的通知。
type notificationEnvelope struct {
	TenantID     string                     `json:"tenantId"`
	Notification domain.PaymentNotification `json:"notification"`
}

// NotificationConsumer 是一个驱动适配器，监听支付通知主题并驱动对账协调器。
type NotificationConsumer struct {
	reader  *kafka.Reader
	service *application.ReconciliationService
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewNotificationConsumer 创建一个新的通知消费者。
func NewNotificationConsumer(reader *kafka.Reader, service *application.ReconciliationService) *NotificationConsumer {
	return &NotificationConsumer{reader: reader, service: service}
}

// Start 开始监听通知主题。这是一个长期运行的方法。
func (c *NotificationConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("payment notification consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("payment notification consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch notification message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			c.processMessage(ctx, msg)

			// 处理完成后再提交 Offset：处理失败的消息会被重新投递，
			// 重放安全性由对账协调器的幂等层保证
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit notification offset")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (c *NotificationConsumer) Stop() {
	c.stopped.Store(true)
	c.reader.Close()
	c.wg.Wait()
}

// processMessage 反序列化消息并调用对账协调器。
func (c *NotificationConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var envelope notificationEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// 无法解析的消息跳过，生产环境应移入死信队列
		logger.Ctx(ctx).Error().Err(err).Msg("malformed notification message, skipping")
		return
	}
	if envelope.TenantID == "" {
		logger.Ctx(ctx).Error().Msg("notification message without tenant, skipping")
		return
	}

	if _, err := c.service.Reconcile(ctx, envelope.TenantID, envelope.Notification); err != nil {
		// 金额不符是业务结论，已留下处理记录，不需要重投
		if errors.Is(err, domain.ErrAmountMismatch) {
			return
		}
		logger.Ctx(ctx).Error().Err(err).
			Str("provider", envelope.Notification.Provider).
			Str("transaction_id", envelope.Notification.TransactionID).
			Msg("failed to reconcile queued notification")
	}
}
