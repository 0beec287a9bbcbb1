package interfaces

import (
	"context"
	"testing"
	"time"

	"atlas/internal/pkg/mq"
)

func TestNotificationConsumerStopTerminates(t *testing.T) {
	// 指向不可达的 broker：不会有消息投递，只验证停止路径能结束消费循环
	reader := mq.NewKafkaReader([]string{"127.0.0.1:1"}, TopicPaymentNotifications, "test-group")
	consumer := NewNotificationConsumer(reader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		consumer.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not terminate after Stop")
	}
}
