// internal/service/fulfillment/infrastructure/gorm_reservation_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atlas/internal/service/fulfillment/domain"
)

// GormReservationRepository 是 domain.ReservationRepository 的 GORM 实现。
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository 创建预留记录仓储实例。
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, reservation *domain.StockReservation) error {
	model, err := toReservationModel(reservation)
	if err != nil {
		return err
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(model).Error, "insert reservation")
}

func (r *GormReservationRepository) FindByOrder(ctx context.Context, tenantID, orderID string) (*domain.StockReservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, errors.Wrap(err, "find reservation by order")
	}
	return toDomainReservation(&model)
}

// Resolve 以 RESERVED 为条件置为终态。影响 0 行说明别的路径已经处理过，
// 返回 false 让调用方跳过台账操作，释放/提交的幂等性依赖这一点。
func (r *GormReservationRepository) Resolve(ctx context.Context, tenantID, reservationID string, to domain.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, reservationID, string(domain.ReservationReserved)).
		UpdateColumn("status", string(to))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "resolve reservation")
	}
	return res.RowsAffected > 0, nil
}

// ListExpired 返回超过 TTL 仍在途的预留，跨租户，供清扫任务使用。
func (r *GormReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.StockReservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.ReservationReserved), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}

	out := make([]*domain.StockReservation, 0, len(models))
	for i := range models {
		reservation, err := toDomainReservation(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, reservation)
	}
	return out, nil
}
