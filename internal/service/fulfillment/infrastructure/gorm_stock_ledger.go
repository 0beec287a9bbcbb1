// internal/service/fulfillment/infrastructure/gorm_stock_ledger.go
package infrastructure

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atlas/internal/service/fulfillment/domain"
)

// GormStockLedger 基于行级条件更新（CAS）实现 domain.StockLedger。
// 每个变体的计数只在自己那一行上竞争，互不相关的变体完全并行；
// 没有任何店级大锁。
type GormStockLedger struct {
	db *gorm.DB
}

// NewGormStockLedger 创建 MySQL 库存台账实例。
func NewGormStockLedger(db *gorm.DB) *GormStockLedger {
	return &GormStockLedger{db: db}
}

// TryReserve 以变体 ID 升序逐个尝试占用，保证所有调用方的加锁顺序一致。
// 任何一个变体不满足时，把已占用的全部退回再返回，调用方观察不到部分预留。
func (l *GormStockLedger) TryReserve(ctx context.Context, tenantID string, quantities map[string]int) (domain.ReservationResult, error) {
	ids := sortedVariantIDs(quantities)

	var reserved []string
	for _, id := range ids {
		qty := quantities[id]
		if qty <= 0 {
			l.rollback(ctx, tenantID, quantities, reserved)
			return domain.ReservationResult{}, domain.ErrInvalidQuantity
		}

		res := l.db.WithContext(ctx).Model(&VariantModel{}).
			Where("tenant_id = ? AND id = ? AND stock - reserved >= ?", tenantID, id, qty).
			UpdateColumn("reserved", gorm.Expr("reserved + ?", qty))
		if res.Error != nil {
			l.rollback(ctx, tenantID, quantities, reserved)
			return domain.ReservationResult{}, errors.Wrapf(res.Error, "reserve variant %s", id)
		}
		if res.RowsAffected == 0 {
			// 库存不足或变体不存在，本次尝试整体失败
			l.rollback(ctx, tenantID, quantities, reserved)
			return domain.ReservationResult{
				Success:          false,
				FailedVariantIDs: []string{id},
			}, nil
		}
		reserved = append(reserved, id)
	}

	return domain.ReservationResult{Success: true, ReservedVariantIDs: reserved}, nil
}

// Release 解除占用而不动库存。GREATEST 把 Reserved 钳制在 0，重复释放是空操作。
func (l *GormStockLedger) Release(ctx context.Context, tenantID string, quantities map[string]int) error {
	for _, id := range sortedVariantIDs(quantities) {
		res := l.db.WithContext(ctx).Model(&VariantModel{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			UpdateColumn("reserved", gorm.Expr("GREATEST(reserved - ?, 0)", quantities[id]))
		if res.Error != nil {
			return errors.Wrapf(res.Error, "release variant %s", id)
		}
	}
	return nil
}

// Commit 在支付确认后同时扣减 Stock 与 Reserved。
// 条件 reserved >= qty 防止重复提交把计数打穿。
func (l *GormStockLedger) Commit(ctx context.Context, tenantID string, quantities map[string]int) error {
	for _, id := range sortedVariantIDs(quantities) {
		qty := quantities[id]
		res := l.db.WithContext(ctx).Model(&VariantModel{}).
			Where("tenant_id = ? AND id = ? AND reserved >= ?", tenantID, id, qty).
			Updates(map[string]interface{}{
				"stock":    gorm.Expr("stock - ?", qty),
				"reserved": gorm.Expr("reserved - ?", qty),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "commit variant %s", id)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(domain.ErrVariantNotFound, "commit variant %s", id)
		}
	}
	return nil
}

// rollback 退回本次调用已经做出的占用。
func (l *GormStockLedger) rollback(ctx context.Context, tenantID string, quantities map[string]int, reserved []string) {
	if len(reserved) == 0 {
		return
	}
	undo := make(map[string]int, len(reserved))
	for _, id := range reserved {
		undo[id] = quantities[id]
	}
	// 这里的失败只能记录：占用最终会被预留 TTL 清扫兜底释放
	_ = l.Release(ctx, tenantID, undo)
}

func sortedVariantIDs(quantities map[string]int) []string {
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
