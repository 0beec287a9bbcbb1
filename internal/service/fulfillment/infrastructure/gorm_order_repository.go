// internal/service/fulfillment/infrastructure/gorm_order_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atlas/internal/service/fulfillment/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建订单仓储实例。
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 在一个事务内写入订单、条目、时间线首条记录与可选的优惠券核销。
// 核销的用量递增是条件更新：usage_count 达到 usage_limit 时影响 0 行，
// 返回 ErrCouponLimitReached 并回滚整个事务，保证限额在并发核销下精确。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order, genesis domain.TimelineEntry, redemption *domain.CouponRedemption) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toOrderModel(order)).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.Create(toTimelineModel(genesis)).Error; err != nil {
			return errors.Wrap(err, "insert genesis timeline entry")
		}

		if redemption == nil {
			return nil
		}

		res := tx.Model(&CouponModel{}).
			Where("tenant_id = ? AND coupon_id = ? AND (usage_limit = 0 OR usage_count < usage_limit)",
				order.TenantID, redemption.CouponID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment coupon usage")
		}
		if res.RowsAffected == 0 {
			return domain.ErrCouponLimitReached
		}

		usage := redemption.Usage
		return errors.Wrap(tx.Create(&CouponUsageModel{
			ID:       usage.ID,
			TenantID: usage.TenantID,
			CouponID: usage.CouponID,
			OrderID:  usage.OrderID,
			At:       usage.At,
		}).Error, "insert coupon usage")
	})
}

// FindByID 按租户与订单号查找订单聚合（含条目）。
func (r *GormOrderRepository) FindByID(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return toDomainOrder(&model), nil
}

// Transition 以 from 状态为条件更新订单并在同一事务内追加时间线。
// 并发流转中输掉竞争（或边不合法）时条件更新影响 0 行，返回 ErrInvalidTransition。
func (r *GormOrderRepository) Transition(ctx context.Context, tenantID, orderID string, from, to domain.Status, entry domain.TimelineEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OrderModel{}).
			Where("tenant_id = ? AND id = ? AND status = ?", tenantID, orderID, string(from)).
			Updates(map[string]interface{}{"status": string(to), "updated_at": entry.At})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order status")
		}
		if res.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}
		return errors.Wrap(tx.Create(toTimelineModel(entry)).Error, "append timeline entry")
	})
}

// Timeline 返回订单时间线，按发生时间升序。
func (r *GormOrderRepository) Timeline(ctx context.Context, tenantID, orderID string) ([]domain.TimelineEntry, error) {
	var models []TimelineModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "load order timeline")
	}
	entries := make([]domain.TimelineEntry, len(models))
	for i := range models {
		entries[i] = toDomainTimeline(&models[i])
	}
	return entries, nil
}
