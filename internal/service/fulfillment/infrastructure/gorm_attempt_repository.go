// internal/service/fulfillment/infrastructure/gorm_attempt_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atlas/internal/service/fulfillment/domain"
)

// GormPaymentAttemptRepository 是 domain.PaymentAttemptRepository 的 GORM 实现。
type GormPaymentAttemptRepository struct {
	db *gorm.DB
}

// NewGormPaymentAttemptRepository 创建处理记录仓储实例。
func NewGormPaymentAttemptRepository(db *gorm.DB) *GormPaymentAttemptRepository {
	return &GormPaymentAttemptRepository{db: db}
}

// Record 插入处理记录。(provider, transaction_id) 已存在时 ON CONFLICT DO NOTHING
// 影响 0 行，返回 false：并发重放里只有一个写入者能赢。
func (r *GormPaymentAttemptRepository) Record(ctx context.Context, record *domain.PaymentAttemptRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(toAttemptModel(record))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "insert payment attempt")
	}
	return res.RowsAffected > 0, nil
}

// UpdateOutcome 把尚未终结的处理记录升级为给定结论。
// DECLINED 之后同一笔交易支付成功时，终结结论必须覆盖进去，重放短路才挡得住后续重放。
func (r *GormPaymentAttemptRepository) UpdateOutcome(ctx context.Context, provider, transactionID, orderID string, outcome domain.AttemptOutcome) (bool, error) {
	res := r.db.WithContext(ctx).Model(&PaymentAttemptModel{}).
		Where("provider = ? AND transaction_id = ? AND outcome NOT IN ?",
			provider, transactionID,
			[]string{string(domain.OutcomeApplied), string(domain.OutcomeMismatch)}).
		Updates(map[string]interface{}{"outcome": string(outcome), "order_id": orderID})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update payment attempt outcome")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormPaymentAttemptRepository) FindByTransaction(ctx context.Context, provider, transactionID string) (*domain.PaymentAttemptRecord, error) {
	var model PaymentAttemptModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND transaction_id = ?", provider, transactionID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find payment attempt")
	}
	return toDomainAttempt(&model), nil
}
