// internal/service/fulfillment/interfaces/sweep_task.go
package interfaces

import (
	"context"
	"time"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/application"
)

// SweepTask 以固定间隔驱动清扫服务，直到上下文取消。
type SweepTask struct {
	service  *application.SweepService
	interval time.Duration
}

// NewSweepTask 创建周期清扫任务。
func NewSweepTask(service *application.SweepService, interval time.Duration) *SweepTask {
	return &SweepTask{service: service, interval: interval}
}

// Run 阻塞执行清扫循环。单轮失败只记录，下一个 tick 重试。
func (t *SweepTask) Run(ctx context.Context) {
	logger.Ctx(ctx).Info().Dur("interval", t.interval).Msg("sweep loop started")
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.service.Run(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("sweep round failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("sweep loop stopped")
			return
		}
	}
}
