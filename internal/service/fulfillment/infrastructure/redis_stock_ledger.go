// internal/service/fulfillment/infrastructure/redis_stock_ledger.go
package infrastructure

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"atlas/internal/pkg/redis"
	"atlas/internal/service/fulfillment/domain"
)

const (
	reserveScriptName = "stock_reserve"
	releaseScriptName = "stock_release"
	commitScriptName  = "stock_commit"
)

// RedisStockLedger 是 domain.StockLedger 的 Redis 实现，面向高并发抢购场景。
// 每个变体是一个 hash（stock / reserved 两个字段），三段逻辑各自封在一个
// Lua 脚本里原子执行：整单检查加整单占用在脚本内一步完成，不存在部分预留
// 对外可见的窗口。
type RedisStockLedger struct {
	redisClient *redis.Client
}

// NewRedisStockLedger 创建 Redis 库存台账适配器，创建时加载全部所需 Lua 脚本。
func NewRedisStockLedger(redisClient *redis.Client) (*RedisStockLedger, error) {
	scripts := map[string]string{
		reserveScriptName: reserveScript,
		releaseScriptName: releaseScript,
		commitScriptName:  commitScript,
	}
	for name, content := range scripts {
		if err := redisClient.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "load stock script %s", name)
		}
	}
	return &RedisStockLedger{redisClient: redisClient}, nil
}

func variantKey(tenantID, variantID string) string {
	return fmt.Sprintf("stock:{%s}:%s", tenantID, variantID)
}

// TryReserve 把整单的键与数量一次性传给 Lua 脚本。
// 脚本返回 0 表示全部占用成功，返回 i (>0) 表示第 i 个变体库存不足。
func (l *RedisStockLedger) TryReserve(ctx context.Context, tenantID string, quantities map[string]int) (domain.ReservationResult, error) {
	ids := sortedVariantIDs(quantities)
	keys := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if quantities[id] <= 0 {
			return domain.ReservationResult{}, domain.ErrInvalidQuantity
		}
		keys[i] = variantKey(tenantID, id)
		args[i] = quantities[id]
	}

	result, err := l.redisClient.RunScript(ctx, reserveScriptName, keys, args...)
	if err != nil {
		return domain.ReservationResult{}, errors.Wrap(err, "run stock reserve script")
	}
	code, ok := result.(int64)
	if !ok {
		return domain.ReservationResult{}, errors.Errorf("unexpected result type from reserve script: %T", result)
	}

	if code == 0 {
		return domain.ReservationResult{Success: true, ReservedVariantIDs: ids}, nil
	}
	if int(code) > len(ids) {
		return domain.ReservationResult{}, errors.Errorf("reserve script returned out-of-range index %d", code)
	}
	return domain.ReservationResult{
		Success:          false,
		FailedVariantIDs: []string{ids[code-1]},
	}, nil
}

// Release 解除占用。脚本内把扣减量钳制在当前 reserved 值，重复释放是空操作。
func (l *RedisStockLedger) Release(ctx context.Context, tenantID string, quantities map[string]int) error {
	ids := sortedVariantIDs(quantities)
	keys := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = variantKey(tenantID, id)
		args[i] = quantities[id]
	}
	_, err := l.redisClient.RunScript(ctx, releaseScriptName, keys, args...)
	return errors.Wrap(err, "run stock release script")
}

// Commit 在支付确认后同时扣减 stock 与 reserved。
func (l *RedisStockLedger) Commit(ctx context.Context, tenantID string, quantities map[string]int) error {
	ids := sortedVariantIDs(quantities)
	keys := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = variantKey(tenantID, id)
		args[i] = quantities[id]
	}
	_, err := l.redisClient.RunScript(ctx, commitScriptName, keys, args...)
	return errors.Wrap(err, "run stock commit script")
}

// PrepareVariant (测试和管理用) 初始化一个变体的库存计数。
func (l *RedisStockLedger) PrepareVariant(ctx context.Context, tenantID, variantID string, stock int) error {
	key := variantKey(tenantID, variantID)
	pipe := l.redisClient.GetClient().Pipeline()
	pipe.HSet(ctx, key, "stock", stock, "reserved", 0)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "prepare variant %s", variantID)
}

var reserveScript = `
-- KEYS[i]: 变体库存 hash, 例如: stock:{tenant_a}:variant_1
-- ARGV[i]: 对应变体要占用的数量

-- 1. 先整体检查，任何一个变体可用量不足就整单失败
for i = 1, #KEYS do
    local stock = tonumber(redis.call('hget', KEYS[i], 'stock'))
    local reserved = tonumber(redis.call('hget', KEYS[i], 'reserved')) or 0
    local qty = tonumber(ARGV[i])
    if not stock or stock - reserved < qty then
        return i -- 返回 1 起的下标, 代表第 i 个变体不足
    end
end

-- 2. 全部满足，再统一占用
for i = 1, #KEYS do
    redis.call('hincrby', KEYS[i], 'reserved', ARGV[i])
end
return 0 -- 返回 0, 代表整单占用成功
`

var releaseScript = `
-- KEYS[i]: 变体库存 hash
-- ARGV[i]: 要释放的数量, 超出当前占用量时按占用量截断

for i = 1, #KEYS do
    local reserved = tonumber(redis.call('hget', KEYS[i], 'reserved')) or 0
    local qty = tonumber(ARGV[i])
    if qty > reserved then
        qty = reserved
    end
    if qty > 0 then
        redis.call('hincrby', KEYS[i], 'reserved', -qty)
    end
end
return 1
`

var commitScript = `
-- KEYS[i]: 变体库存 hash
-- ARGV[i]: 要提交的数量, 仅在占用量足够时扣减

for i = 1, #KEYS do
    local reserved = tonumber(redis.call('hget', KEYS[i], 'reserved')) or 0
    local qty = tonumber(ARGV[i])
    if reserved >= qty then
        redis.call('hincrby', KEYS[i], 'stock', -qty)
        redis.call('hincrby', KEYS[i], 'reserved', -qty)
    end
end
return 1
`
