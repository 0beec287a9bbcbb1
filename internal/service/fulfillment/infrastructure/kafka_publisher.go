// internal/service/fulfillment/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/fulfillment/domain"
)

const (
	// TopicPaymentOrphans 承接无法匹配订单的渠道通知，供人工审核流程消费。
	TopicPaymentOrphans = "payment-orphans"
	// TopicOrderPaid 承接支付确认事件，供通知与报表系统消费。
	TopicOrderPaid = "order-paid-events"
)

// KafkaEventPublisher 是 domain.EventPublisher 的 Kafka 实现。
// 消息 key 用租户加订单/交易号，保证同一聚合的事件落在同一分区内有序。
type KafkaEventPublisher struct {
	orphanWriter *kafka.Writer
	paidWriter   *kafka.Writer
}

// NewKafkaEventPublisher 创建事件发布器。
func NewKafkaEventPublisher(brokers []string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		orphanWriter: mq.NewKafkaWriter(brokers, TopicPaymentOrphans),
		paidWriter:   mq.NewKafkaWriter(brokers, TopicOrderPaid),
	}
}

func (p *KafkaEventPublisher) PublishOrphan(ctx context.Context, orphan domain.OrphanedNotification) error {
	payload, err := json.Marshal(orphan)
	if err != nil {
		return errors.Wrap(err, "marshal orphan notification")
	}
	key := []byte(orphan.Provider + ":" + orphan.TransactionID)
	if err := mq.ProduceMessage(ctx, p.orphanWriter, key, payload); err != nil {
		return errors.Wrap(err, "publish orphan notification")
	}
	logger.Ctx(ctx).Info().
		Str("provider", orphan.Provider).
		Str("transaction_id", orphan.TransactionID).
		Msg("orphan notification published for manual review")
	return nil
}

func (p *KafkaEventPublisher) PublishOrderPaid(ctx context.Context, event domain.OrderPaidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order paid event")
	}
	key := []byte(event.TenantID + ":" + event.OrderID)
	if err := mq.ProduceMessage(ctx, p.paidWriter, key, payload); err != nil {
		return errors.Wrap(err, "publish order paid event")
	}
	return nil
}

// Close 关闭底层 Writer，排空未发送的消息。
func (p *KafkaEventPublisher) Close() error {
	if err := p.orphanWriter.Close(); err != nil {
		return err
	}
	return p.paidWriter.Close()
}
