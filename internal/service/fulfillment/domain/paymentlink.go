// internal/service/fulfillment/domain/paymentlink.go
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LinkStatus 定义了支付链接的生命周期状态。
// Active 之外的三个状态都是终态，不允许再发生任何流转。
type LinkStatus string

const (
	LinkActive    LinkStatus = "ACTIVE"
	LinkPaid      LinkStatus = "PAID"
	LinkExpired   LinkStatus = "EXPIRED"
	LinkCancelled LinkStatus = "CANCELLED"
)

// PaymentLink 是一个有时效、一次性的支付入口令牌。
// 同一订单同一时刻最多只能有一条 Active 链接。
type PaymentLink struct {
	ID        string
	TenantID  string
	OrderID   string
	Token     string
	Status    LinkStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPaymentLink 为订单签发一条新的支付链接。
func NewPaymentLink(tenantID, orderID string, ttl time.Duration, now time.Time) *PaymentLink {
	return &PaymentLink{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		OrderID:   orderID,
		Token:     newLinkToken(),
		Status:    LinkActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// newLinkToken 生成不可猜测的链接令牌：uuid 去掉连字符再拼上 16 字节随机数。
func newLinkToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return strings.ReplaceAll(uuid.New().String(), "-", "") + hex.EncodeToString(buf)
}

// IsTerminal 判断链接是否已进入终态。
func (l *PaymentLink) IsTerminal() bool {
	return l.Status != LinkActive
}

// TimeRemaining 计算剩余有效时长，已过期则为 0。
func (l *PaymentLink) TimeRemaining(now time.Time) time.Duration {
	if remaining := l.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// MarkPaid 将链接置为已支付。
func (l *PaymentLink) MarkPaid() error {
	return l.transition(LinkPaid)
}

// MarkCancelled 手动作废链接。
func (l *PaymentLink) MarkCancelled() error {
	return l.transition(LinkCancelled)
}

func (l *PaymentLink) transition(to LinkStatus) error {
	if l.IsTerminal() {
		return ErrLinkTerminal
	}
	l.Status = to
	return nil
}
