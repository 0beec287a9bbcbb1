// internal/service/fulfillment/domain/status.go
package domain

// Status 定义了订单的生命周期状态。
type Status string

const (
	StatusPending   Status = "PENDING"   // 已创建，等待支付
	StatusPaid      Status = "PAID"      // 已支付，库存已扣减
	StatusShipped   Status = "SHIPPED"   // 已发货
	StatusDelivered Status = "DELIVERED" // 已送达（终态）
	StatusCanceled  Status = "CANCELED"  // 已取消（终态，用户主动、超时或退款）
)

// validNext 在编译期枚举了所有允许的状态流转边。
// 状态机的唯一事实来源，任何地方不得绕过它散落 if 判断。
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCanceled: true},
	StatusPaid:      {StatusShipped: true, StatusCanceled: true}, // Paid -> Canceled 是退款路径
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCanceled:  {},
}

// CanTransition 判断一条流转边是否合法。
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal 判断一个状态是否为终态。
func (s Status) IsTerminal() bool {
	return len(validNext[s]) == 0
}
