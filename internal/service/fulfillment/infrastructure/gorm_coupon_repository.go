// internal/service/fulfillment/infrastructure/gorm_coupon_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atlas/internal/service/fulfillment/domain"
)

// GormCouponRepository 是 domain.CouponRepository 的 GORM 实现。
// 核销的写路径在订单仓储的事务内，这里只有读取。
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository 创建优惠券仓储实例。
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// FindByCode 按券码查找。券码入库时已统一大写，调用方负责归一化输入。
func (r *GormCouponRepository) FindByCode(ctx context.Context, tenantID, code string) (*domain.Coupon, error) {
	var model CouponModel
	err := r.db.WithContext(ctx).
		Preload("Rules").
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "find coupon by code")
	}
	return toDomainCoupon(&model), nil
}
