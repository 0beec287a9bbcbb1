// internal/service/fulfillment/infrastructure/gorm_link_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atlas/internal/service/fulfillment/domain"
)

// GormPaymentLinkRepository 是 domain.PaymentLinkRepository 的 GORM 实现。
type GormPaymentLinkRepository struct {
	db *gorm.DB
}

// NewGormPaymentLinkRepository 创建支付链接仓储实例。
func NewGormPaymentLinkRepository(db *gorm.DB) *GormPaymentLinkRepository {
	return &GormPaymentLinkRepository{db: db}
}

// Create 在事务内先以 FOR UPDATE 检查同订单是否已有 Active 链接，有则返回
// ErrActiveLinkExists，应用层据此改走复用路径。行锁把并发创建串行化，
// 保证同一订单同一时刻至多一条 Active 链接。
func (r *GormPaymentLinkRepository) Create(ctx context.Context, link *domain.PaymentLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing PaymentLinkModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND order_id = ? AND status = ?",
				link.TenantID, link.OrderID, string(domain.LinkActive)).
			First(&existing).Error
		if err == nil {
			return domain.ErrActiveLinkExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "check active link")
		}
		return errors.Wrap(tx.Create(toLinkModel(link)).Error, "insert payment link")
	})
}

func (r *GormPaymentLinkRepository) FindByToken(ctx context.Context, tenantID, token string) (*domain.PaymentLink, error) {
	var model PaymentLinkModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND token = ?", tenantID, token).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, errors.Wrap(err, "find link by token")
	}
	return toDomainLink(&model), nil
}

func (r *GormPaymentLinkRepository) FindActiveByOrder(ctx context.Context, tenantID, orderID string) (*domain.PaymentLink, error) {
	var model PaymentLinkModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ? AND status = ?", tenantID, orderID, string(domain.LinkActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, errors.Wrap(err, "find active link by order")
	}
	return toDomainLink(&model), nil
}

// UpdateStatus 以 from 状态为条件更新，返回是否真的更新了一行。
func (r *GormPaymentLinkRepository) UpdateStatus(ctx context.Context, tenantID, linkID string, from, to domain.LinkStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&PaymentLinkModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, linkID, string(from)).
		UpdateColumn("status", string(to))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update link status")
	}
	return res.RowsAffected > 0, nil
}

// ExpireDue 把 Active 且已过期的链接批量置为 Expired，走 idx_links_sweep 索引。
func (r *GormPaymentLinkRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&PaymentLinkModel{}).
		Where("status = ? AND expires_at <= ?", string(domain.LinkActive), now).
		UpdateColumn("status", string(domain.LinkExpired))
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "expire due links")
	}
	return res.RowsAffected, nil
}
