package application

import (
	"context"
	"errors"
	"testing"

	"atlas/internal/service/fulfillment/domain"
)

type reconcileEnv struct {
	*checkoutEnv
	attempts  *fakeAttemptRepo
	publisher *fakePublisher
	provider  *fakeProvider
	service   *ReconciliationService
}

func newReconcileEnv(t *testing.T) (*reconcileEnv, *CheckoutResponse) {
	t.Helper()
	base := newCheckoutEnv(map[string]int{"variant-a": 10, "variant-b": 10})
	env := &reconcileEnv{
		checkoutEnv: base,
		attempts:    newFakeAttemptRepo(),
		publisher:   &fakePublisher{},
		provider:    &fakeProvider{name: "paypal", snapshots: make(map[string]domain.PaymentSnapshot)},
	}
	env.service = NewReconciliationService(
		env.attempts, env.linkRepo, env.orders, env.orderSvc, env.publisher,
		[]domain.ProviderClient{env.provider}, env.clock, testTracer,
	)

	resp, err := base.service.Checkout(context.Background(), "tenant-1", basicRequest())
	if err != nil {
		t.Fatalf("seed checkout failed: %v", err)
	}
	return env, resp
}

func approvedNotification(resp *CheckoutResponse, txnID string) domain.PaymentNotification {
	return domain.PaymentNotification{
		Provider:      "paypal",
		TransactionID: txnID,
		Status:        domain.NotificationApproved,
		AmountMinor:   resp.TotalMinor,
		Reference:     resp.PaymentLink.Token,
	}
}

func TestReconcileApprovedAppliesExactlyOnce(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	result, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-1"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Outcome != domain.OutcomeApplied || result.OrderID != resp.OrderID {
		t.Fatalf("result = %+v, want APPLIED for %s", result, resp.OrderID)
	}

	order, _ := env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusPaid {
		t.Errorf("order status = %s, want PAID", order.Status)
	}
	// 库存已提交：Stock 与 Reserved 一起扣减
	if stock, reserved := env.ledger.snapshot("variant-a"); stock != 8 || reserved != 0 {
		t.Errorf("variant-a stock/reserved = %d/%d, want 8/0", stock, reserved)
	}
	if got := env.reservations.statusOf(resp.OrderID); got != domain.ReservationCommitted {
		t.Errorf("reservation status = %s, want COMMITTED", got)
	}
	link, _ := env.linkRepo.FindByToken(ctx, "tenant-1", resp.PaymentLink.Token)
	if link.Status != domain.LinkPaid {
		t.Errorf("link status = %s, want PAID", link.Status)
	}
	if env.publisher.paidCount() != 1 {
		t.Errorf("paid events = %d, want 1", env.publisher.paidCount())
	}

	// 同一笔通知重放：短路成功，不产生任何新效果
	replay, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-1"))
	if err != nil {
		t.Fatalf("replay Reconcile() error = %v", err)
	}
	if !replay.Replayed || replay.Outcome != domain.OutcomeApplied {
		t.Errorf("replay result = %+v, want replayed APPLIED", replay)
	}
	if stock, _ := env.ledger.snapshot("variant-a"); stock != 8 {
		t.Errorf("stock after replay = %d, want 8", stock)
	}
	if env.publisher.paidCount() != 1 {
		t.Errorf("paid events after replay = %d, want 1", env.publisher.paidCount())
	}
	entries, _ := env.orders.Timeline(ctx, "tenant-1", resp.OrderID)
	if len(entries) != 2 {
		t.Errorf("timeline entries = %d, want 2 (genesis + paid)", len(entries))
	}
}

func TestReconcileAmountMismatchLeavesOrderUntouched(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	n := approvedNotification(resp, "txn-bad")
	n.AmountMinor = resp.TotalMinor - 1

	result, err := env.service.Reconcile(ctx, "tenant-1", n)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("Reconcile() error = %v, want ErrAmountMismatch", err)
	}
	if result.Outcome != domain.OutcomeMismatch {
		t.Errorf("outcome = %s, want MISMATCH", result.Outcome)
	}

	order, _ := env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusPending {
		t.Errorf("order status = %s, want PENDING", order.Status)
	}
	if got := env.reservations.statusOf(resp.OrderID); got != domain.ReservationReserved {
		t.Errorf("reservation status = %s, want still RESERVED", got)
	}
}

func TestReconcileDeclinedIsRetryable(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	n := approvedNotification(resp, "txn-2")
	n.Status = domain.NotificationDeclined

	result, err := env.service.Reconcile(ctx, "tenant-1", n)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Outcome != domain.OutcomeDeclined {
		t.Errorf("outcome = %s, want DECLINED", result.Outcome)
	}
	order, _ := env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusPending {
		t.Errorf("order status = %s, want PENDING after decline", order.Status)
	}

	// DECLINED 不是终结结论：同一笔交易的后续成功通知必须生效
	retry, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-2"))
	if err != nil {
		t.Fatalf("retry Reconcile() error = %v", err)
	}
	if retry.Outcome != domain.OutcomeApplied {
		t.Errorf("retry outcome = %s, want APPLIED", retry.Outcome)
	}
	order, _ = env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusPaid {
		t.Errorf("order status = %s, want PAID after retry", order.Status)
	}
}

func TestReconcileApprovedAfterDeclineReplaysOnce(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	declined := approvedNotification(resp, "txn-6")
	declined.Status = domain.NotificationDeclined
	if _, err := env.service.Reconcile(ctx, "tenant-1", declined); err != nil {
		t.Fatalf("declined Reconcile() error = %v", err)
	}

	if _, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-6")); err != nil {
		t.Fatalf("approved Reconcile() error = %v", err)
	}
	// 成功结论必须覆盖之前的 DECLINED 记录
	record, _ := env.attempts.FindByTransaction(ctx, "paypal", "txn-6")
	if record == nil || record.Outcome != domain.OutcomeApplied {
		t.Fatalf("attempt record = %+v, want outcome APPLIED", record)
	}

	// 同一笔成功通知再来两次：重放短路，支付事件只发布一次
	for i := 0; i < 2; i++ {
		replay, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-6"))
		if err != nil {
			t.Fatalf("replay %d Reconcile() error = %v", i, err)
		}
		if !replay.Replayed {
			t.Errorf("replay %d: Replayed = false, want true", i)
		}
	}
	if env.publisher.paidCount() != 1 {
		t.Errorf("paid events = %d, want 1", env.publisher.paidCount())
	}
}

func TestReconcilePendingStatusIsNoOp(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	n := approvedNotification(resp, "txn-3")
	n.Status = domain.NotificationPending

	if _, err := env.service.Reconcile(ctx, "tenant-1", n); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	order, _ := env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusPending {
		t.Errorf("order status = %s, want PENDING", order.Status)
	}
	if record, _ := env.attempts.FindByTransaction(ctx, "paypal", "txn-3"); record != nil {
		t.Error("pending notification must not be recorded as an attempt")
	}
}

func TestReconcileOrphanIsAckedAndPublished(t *testing.T) {
	env, _ := newReconcileEnv(t)
	ctx := context.Background()

	result, err := env.service.Reconcile(ctx, "tenant-1", domain.PaymentNotification{
		Provider:      "paypal",
		TransactionID: "txn-ghost",
		Status:        domain.NotificationApproved,
		AmountMinor:   999,
		Reference:     "no-such-token",
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v, orphan must not fail the webhook", err)
	}
	if result.Outcome != domain.OutcomeOrphan {
		t.Errorf("outcome = %s, want ORPHAN", result.Outcome)
	}
	if env.publisher.orphanCount() != 1 {
		t.Errorf("orphans published = %d, want 1", env.publisher.orphanCount())
	}
}

func TestReconcileMatchesByOrderRef(t *testing.T) {
	env, resp := newReconcileEnv(t)

	result, err := env.service.Reconcile(context.Background(), "tenant-1", domain.PaymentNotification{
		Provider:      "paypal",
		TransactionID: "txn-4",
		Status:        domain.NotificationApproved,
		AmountMinor:   resp.TotalMinor,
		OrderRef:      resp.OrderID,
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Outcome != domain.OutcomeApplied {
		t.Errorf("outcome = %s, want APPLIED via order ref", result.Outcome)
	}
}

func TestReconcileLatePaymentForCanceledOrder(t *testing.T) {
	env, resp := newReconcileEnv(t)
	ctx := context.Background()

	if err := env.orderSvc.Transition(ctx, "tenant-1", resp.OrderID, domain.StatusCanceled, "changed my mind", "cust-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	result, err := env.service.Reconcile(ctx, "tenant-1", approvedNotification(resp, "txn-late"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Outcome != domain.OutcomeOrphan {
		t.Errorf("outcome = %s, want ORPHAN for late payment", result.Outcome)
	}
	if env.publisher.orphanCount() != 1 {
		t.Errorf("orphans published = %d, want 1", env.publisher.orphanCount())
	}
	order, _ := env.orders.FindByID(ctx, "tenant-1", resp.OrderID)
	if order.Status != domain.StatusCanceled {
		t.Errorf("order status = %s, want still CANCELED", order.Status)
	}
}

func TestLookupAndReconcile(t *testing.T) {
	env, resp := newReconcileEnv(t)
	env.provider.snapshots["txn-5"] = domain.PaymentSnapshot{
		Status:      domain.NotificationApproved,
		AmountMinor: resp.TotalMinor,
	}

	result, err := env.service.LookupAndReconcile(context.Background(), "tenant-1", "paypal", "txn-5", resp.PaymentLink.Token)
	if err != nil {
		t.Fatalf("LookupAndReconcile() error = %v", err)
	}
	if result.Outcome != domain.OutcomeApplied {
		t.Errorf("outcome = %s, want APPLIED", result.Outcome)
	}
}

func TestLookupAndReconcileUnknownProvider(t *testing.T) {
	env, _ := newReconcileEnv(t)
	if _, err := env.service.LookupAndReconcile(context.Background(), "tenant-1", "stripe", "txn-x", ""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
