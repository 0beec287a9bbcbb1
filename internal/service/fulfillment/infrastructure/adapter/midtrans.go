// internal/service/fulfillment/infrastructure/adapter/midtrans.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"atlas/internal/pkg/httpclient"
	"atlas/internal/service/fulfillment/domain"
)

// ProviderMidtrans 是该渠道在处理记录与指标中使用的名字。
const ProviderMidtrans = "midtrans"

// MidtransAdapter 把 Midtrans 的 webhook 载荷与查询接口翻译成统一的通知形状，
// 实现 domain.ProviderClient。
type MidtransAdapter struct {
	client   *httpclient.Client
	endpoint string
}

// NewMidtransAdapter 创建 Midtrans 渠道适配器。
func NewMidtransAdapter(client *httpclient.Client, endpoint string) *MidtransAdapter {
	return &MidtransAdapter{client: client, endpoint: endpoint}
}

func (a *MidtransAdapter) Name() string { return ProviderMidtrans }

// midtransNotification 是 webhook 推送与状态查询共用的响应形状。
// order_id 携带我方支付链接令牌，custom_field1 携带订单号。
type midtransNotification struct {
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	GrossAmount       string `json:"gross_amount"`
	OrderID           string `json:"order_id"`
	CustomField1      string `json:"custom_field1"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

// DecodeWebhook 把一个 webhook 请求体归一化为 PaymentNotification。
func (a *MidtransAdapter) DecodeWebhook(body []byte) (domain.PaymentNotification, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return domain.PaymentNotification{}, errors.Wrap(err, "decode midtrans webhook")
	}
	if n.TransactionID == "" {
		return domain.PaymentNotification{}, errors.New("midtrans webhook missing transaction_id")
	}
	amount, err := parseDecimalMinor(n.GrossAmount)
	if err != nil {
		return domain.PaymentNotification{}, err
	}
	return domain.PaymentNotification{
		Provider:      ProviderMidtrans,
		TransactionID: n.TransactionID,
		Status:        midtransStatus(n.TransactionStatus),
		AmountMinor:   amount,
		Reference:     n.OrderID,
		OrderRef:      n.CustomField1,
	}, nil
}

// FindPaymentByTransactionID 主动向 Midtrans 查询一笔交易的当前状态。
func (a *MidtransAdapter) FindPaymentByTransactionID(ctx context.Context, transactionID string) (domain.PaymentSnapshot, error) {
	var n midtransNotification
	serviceURL := fmt.Sprintf("%s/v2/%s/status", a.endpoint, url.PathEscape(transactionID))
	if err := a.client.GetJSON(ctx, serviceURL, nil, nil, &n); err != nil {
		return domain.PaymentSnapshot{}, errors.Wrap(err, "lookup midtrans transaction")
	}

	amount, err := parseDecimalMinor(n.GrossAmount)
	if err != nil {
		return domain.PaymentSnapshot{}, err
	}
	snapshot := domain.PaymentSnapshot{
		Status:      midtransStatus(n.TransactionStatus),
		AmountMinor: amount,
		CreatedAt:   midtransTime(n.TransactionTime),
	}
	if paid := midtransTime(n.SettlementTime); !paid.IsZero() {
		snapshot.PaidAt = &paid
	}
	return snapshot, nil
}

// midtransStatus 把 Midtrans 的 transaction_status 归一化。
// capture 与 settlement 都算成功；deny 算拒绝；cancel 与 expire 算作废。
func midtransStatus(s string) domain.NotificationStatus {
	switch s {
	case "capture", "settlement":
		return domain.NotificationApproved
	case "deny":
		return domain.NotificationDeclined
	case "cancel", "expire", "refund":
		return domain.NotificationVoided
	default:
		return domain.NotificationPending
	}
}

// midtransTime 解析 Midtrans 的 "2006-01-02 15:04:05" 时间格式，解析失败返回零值。
func midtransTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
