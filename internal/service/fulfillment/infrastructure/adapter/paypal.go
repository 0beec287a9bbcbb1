// internal/service/fulfillment/infrastructure/adapter/paypal.go
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

// ProviderPaypal 是该渠道在处理记录与指标中使用的名字。
const ProviderPaypal = "paypal"

// PaypalAdapter 把 PayPal 的 webhook 载荷与查询接口翻译成统一的通知形状，
// 实现 domain.ProviderClient。
type PaypalAdapter struct {
	client   *httpclient.Client
	endpoint string
}

// NewPaypalAdapter 创建 PayPal 渠道适配器。
func NewPaypalAdapter(client *httpclient.Client, endpoint string) *PaypalAdapter {
	return &PaypalAdapter{client: client, endpoint: endpoint}
}

func (a *PaypalAdapter) Name() string { return ProviderPaypal }

// paypalCapture 是 PayPal 侧一笔交易的形状，webhook 的 resource 字段与
// 查询接口的响应体共用。invoice_id 携带我方支付链接令牌，custom_id 携带订单号。
type paypalCapture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
	InvoiceID  string     `json:"invoice_id"`
	CustomID   string     `json:"custom_id"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime *time.Time `json:"update_time"`
}

// paypalWebhookEvent 是 webhook 推送的外层信封。
type paypalWebhookEvent struct {
	EventType string        `json:"event_type"`
	Resource  paypalCapture `json:"resource"`
}

// DecodeWebhook 把一个 webhook 请求体归一化为 PaymentNotification。
func (a *PaypalAdapter) DecodeWebhook(body []byte) (domain.PaymentNotification, error) {
	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.PaymentNotification{}, errors.Wrap(err, "decode paypal webhook")
	}
	return a.normalize(event.Resource)
}

// FindPaymentByTransactionID 主动向 PayPal 查询一笔交易的当前状态。
func (a *PaypalAdapter) FindPaymentByTransactionID(ctx context.Context, transactionID string) (domain.PaymentSnapshot, error) {
	var capture paypalCapture
	serviceURL := fmt.Sprintf("%s/v2/payments/captures/%s", a.endpoint, url.PathEscape(transactionID))
	if err := a.client.GetJSON(ctx, serviceURL, nil, nil, &capture); err != nil {
		return domain.PaymentSnapshot{}, errors.Wrap(err, "lookup paypal capture")
	}

	amount, err := parseDecimalMinor(capture.Amount.Value)
	if err != nil {
		return domain.PaymentSnapshot{}, err
	}
	snapshot := domain.PaymentSnapshot{
		Status:      paypalStatus(capture.Status),
		AmountMinor: amount,
		CreatedAt:   capture.CreateTime,
	}
	if snapshot.Status == domain.NotificationApproved {
		snapshot.PaidAt = capture.UpdateTime
	}
	return snapshot, nil
}

func (a *PaypalAdapter) normalize(capture paypalCapture) (domain.PaymentNotification, error) {
	if capture.ID == "" {
		return domain.PaymentNotification{}, errors.New("paypal webhook missing capture id")
	}
	amount, err := parseDecimalMinor(capture.Amount.Value)
	if err != nil {
		return domain.PaymentNotification{}, err
	}
	return domain.PaymentNotification{
		Provider:      ProviderPaypal,
		TransactionID: capture.ID,
		Status:        paypalStatus(capture.Status),
		AmountMinor:   amount,
		Reference:     capture.InvoiceID,
		OrderRef:      capture.CustomID,
	}, nil
}

// paypalStatus 把 PayPal 的交易状态归一化。未知状态按 PENDING 处理，
// 协调器对 PENDING 不做任何动作，等待后续通知。
func paypalStatus(s string) domain.NotificationStatus {
	switch s {
	case "COMPLETED":
		return domain.NotificationApproved
	case "DECLINED", "FAILED":
		return domain.NotificationDeclined
	case "REFUNDED", "REVERSED":
		return domain.NotificationVoided
	default:
		return domain.NotificationPending
	}
}
