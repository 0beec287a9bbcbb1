// internal/service/fulfillment/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/fulfillment/application"
	"atlas/internal/service/fulfillment/domain"
)

// tenantHeader 携带上游网关解析好的租户标识，缺失时请求直接拒绝。
const tenantHeader = "X-Tenant-ID"

// WebhookDecoder 把单个渠道的原始回调载荷翻译成统一的通知形状。
type WebhookDecoder interface {
	Name() string
	DecodeWebhook(body []byte) (domain.PaymentNotification, error)
}

// FulfillmentHandler 封装了履约服务的 HTTP 处理器。
type FulfillmentHandler struct {
	checkout  *application.CheckoutService
	orders    *application.OrderService
	links     *application.PaymentLinkService
	reconcile *application.ReconciliationService
	decoders  map[string]WebhookDecoder
	linkTTL   time.Duration
}

// NewFulfillmentHandler 创建一个新的 HTTP 处理器实例。
func NewFulfillmentHandler(
	checkout *application.CheckoutService,
	orders *application.OrderService,
	links *application.PaymentLinkService,
	reconcile *application.ReconciliationService,
	decoders []WebhookDecoder,
	linkTTL time.Duration,
) *FulfillmentHandler {
	byName := make(map[string]WebhookDecoder, len(decoders))
	for _, d := range decoders {
		byName[d.Name()] = d
	}
	return &FulfillmentHandler{
		checkout:  checkout,
		orders:    orders,
		links:     links,
		reconcile: reconcile,
		decoders:  byName,
		linkTTL:   linkTTL,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *FulfillmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/checkout", h.handleCheckout)
	mux.HandleFunc("/checkout/quote", h.handleQuote)
	mux.HandleFunc("/orders/get", h.handleGetOrder)
	mux.HandleFunc("/orders/timeline", h.handleTimeline)
	mux.HandleFunc("/orders/transition", h.handleTransition)
	mux.HandleFunc("/payment_links/create", h.handleCreateLink)
	mux.HandleFunc("/payment_links/find", h.handleFindLink)
	mux.HandleFunc("/payment_links/cancel", h.handleCancelLink)
	mux.HandleFunc("/webhooks/paypal", h.webhookHandler("paypal"))
	mux.HandleFunc("/webhooks/midtrans", h.webhookHandler("midtrans"))
	mux.HandleFunc("/reconcile/lookup", h.handleLookup)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// extract 恢复追踪上下文并取出租户标识。
func extract(r *http.Request) (context.Context, string) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return ctx, r.Header.Get(tenantHeader)
}

func (h *FulfillmentHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.checkout.Checkout(ctx, tenantID, req)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *FulfillmentHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.checkout.Quote(ctx, tenantID, req)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *FulfillmentHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	orderID := r.URL.Query().Get("order_id")
	if tenantID == "" || orderID == "" {
		http.Error(w, "tenant header and order_id are required", http.StatusBadRequest)
		return
	}

	order, err := h.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *FulfillmentHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	orderID := r.URL.Query().Get("order_id")
	if tenantID == "" || orderID == "" {
		http.Error(w, "tenant header and order_id are required", http.StatusBadRequest)
		return
	}

	entries, err := h.orders.Timeline(ctx, tenantID, orderID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (h *FulfillmentHandler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req application.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		http.Error(w, "actor is required", http.StatusBadRequest)
		return
	}

	if err := h.orders.Transition(ctx, tenantID, req.OrderID, req.ToStatus, req.Notes, req.Actor); err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (h *FulfillmentHandler) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.links.Create(ctx, tenantID, req.OrderID, h.linkTTL)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, application.LinkResponse{
		Token:         link.Token,
		OrderID:       link.OrderID,
		Status:        string(link.Status),
		ExpiresAt:     link.ExpiresAt,
		TimeRemaining: link.TimeRemaining(time.Now().UTC()),
	})
}

func (h *FulfillmentHandler) handleFindLink(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	token := r.URL.Query().Get("token")
	if tenantID == "" || token == "" {
		http.Error(w, "tenant header and token are required", http.StatusBadRequest)
		return
	}

	resp, err := h.links.Find(ctx, tenantID, token)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *FulfillmentHandler) handleCancelLink(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.links.Cancel(ctx, tenantID, req.Token); err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

// webhookHandler 构造单个渠道的回调处理器。
// 孤儿通知与渠道拒绝都确认成功，只有金额不符和基础设施故障让渠道重试。
func (h *FulfillmentHandler) webhookHandler(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, tenantID := extract(r)
		if tenantID == "" {
			http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
			return
		}

		decoder, ok := h.decoders[provider]
		if !ok {
			http.Error(w, "unknown provider", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}
		notification, err := decoder.DecodeWebhook(body)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("provider", provider).Msg("malformed webhook payload")
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}

		result, err := h.reconcile.Reconcile(ctx, tenantID, notification)
		if err != nil {
			writeBusinessError(w, err)
			return
		}
		writeJSON(w, result)
	}
}

func (h *FulfillmentHandler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx, tenantID := extract(r)
	if tenantID == "" {
		http.Error(w, "missing "+tenantHeader+" header", http.StatusBadRequest)
		return
	}

	var req struct {
		Provider      string `json:"provider"`
		TransactionID string `json:"transaction_id"`
		Reference     string `json:"reference,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.reconcile.LookupAndReconcile(ctx, tenantID, req.Provider, req.TransactionID, req.Reference)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeBusinessError 根据错误类型返回不同的 HTTP 状态码。
func writeBusinessError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrCouponNotFound),
		errors.Is(err, domain.ErrLinkNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrActiveLinkExists):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrLinkTerminal),
		errors.Is(err, domain.ErrOrderNotPayable):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrCouponInactive),
		errors.Is(err, domain.ErrCouponOutOfWindow),
		errors.Is(err, domain.ErrCouponLimitReached),
		errors.Is(err, domain.ErrCouponRuleNotMet):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrAmountMismatch):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}
