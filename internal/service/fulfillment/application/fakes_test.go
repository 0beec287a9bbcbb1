package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"atlas/internal/service/fulfillment/domain"
)

// 本文件提供全部仓储端口的内存实现，行为与 GORM 实现保持一致：
// 条件更新返回是否真的改了一行，唯一键冲突不报错，所有操作在互斥锁下线性化。

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLedger 复刻全有或全无的预留语义。
type fakeLedger struct {
	mu       sync.Mutex
	stock    map[string]int // variantID -> stock
	reserved map[string]int
}

func newFakeLedger(stock map[string]int) *fakeLedger {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &fakeLedger{stock: s, reserved: make(map[string]int)}
}

func (l *fakeLedger) TryReserve(_ context.Context, _ string, quantities map[string]int) (domain.ReservationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if quantities[id] <= 0 {
			return domain.ReservationResult{}, domain.ErrInvalidQuantity
		}
		if l.stock[id]-l.reserved[id] < quantities[id] {
			return domain.ReservationResult{Success: false, FailedVariantIDs: []string{id}}, nil
		}
	}
	for _, id := range ids {
		l.reserved[id] += quantities[id]
	}
	return domain.ReservationResult{Success: true, ReservedVariantIDs: ids}, nil
}

func (l *fakeLedger) Release(_ context.Context, _ string, quantities map[string]int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, qty := range quantities {
		l.reserved[id] -= qty
		if l.reserved[id] < 0 {
			l.reserved[id] = 0
		}
	}
	return nil
}

func (l *fakeLedger) Commit(_ context.Context, _ string, quantities map[string]int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, qty := range quantities {
		if l.reserved[id] >= qty {
			l.stock[id] -= qty
			l.reserved[id] -= qty
		}
	}
	return nil
}

func (l *fakeLedger) snapshot(variantID string) (stock, reserved int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[variantID], l.reserved[variantID]
}

// fakeOrderRepo 带条件流转与优惠券限额语义的内存订单仓储。
type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	timeline map[string][]domain.TimelineEntry
	coupons  *fakeCouponRepo // 核销时递增其用量，可为 nil
	failNext error
}

func newFakeOrderRepo(coupons *fakeCouponRepo) *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[string]*domain.Order),
		timeline: make(map[string][]domain.TimelineEntry),
		coupons:  coupons,
	}
}

func (r *fakeOrderRepo) Create(_ context.Context, order *domain.Order, genesis domain.TimelineEntry, redemption *domain.CouponRedemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if redemption != nil && r.coupons != nil {
		if err := r.coupons.increment(redemption.CouponID); err != nil {
			return err
		}
	}
	clone := *order
	r.orders[order.ID] = &clone
	r.timeline[order.ID] = append(r.timeline[order.ID], genesis)
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, _ string, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) Transition(_ context.Context, _ string, orderID string, from, to domain.Status, entry domain.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrInvalidTransition
	}
	order.Status = to
	order.UpdatedAt = entry.At
	r.timeline[orderID] = append(r.timeline[orderID], entry)
	return nil
}

func (r *fakeOrderRepo) Timeline(_ context.Context, _ string, orderID string) ([]domain.TimelineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TimelineEntry(nil), r.timeline[orderID]...), nil
}

// fakeCouponRepo 带并发精确限额的内存优惠券仓储。
type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*domain.Coupon // code -> coupon
}

func newFakeCouponRepo(coupons ...*domain.Coupon) *fakeCouponRepo {
	m := make(map[string]*domain.Coupon, len(coupons))
	for _, c := range coupons {
		m[c.Code] = c
	}
	return &fakeCouponRepo{coupons: m}
}

func (r *fakeCouponRepo) FindByCode(_ context.Context, _ string, code string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[code]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	clone := *coupon
	return &clone, nil
}

func (r *fakeCouponRepo) increment(couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if c.ID == couponID {
			if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
				return domain.ErrCouponLimitReached
			}
			c.UsageCount++
			return nil
		}
	}
	return domain.ErrCouponNotFound
}

func (r *fakeCouponRepo) usage(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coupons[code].UsageCount
}

// fakeLinkRepo 是内存支付链接仓储。
type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*domain.PaymentLink // id -> link
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*domain.PaymentLink)}
}

func (r *fakeLinkRepo) Create(_ context.Context, link *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.TenantID == link.TenantID && l.OrderID == link.OrderID && l.Status == domain.LinkActive {
			return domain.ErrActiveLinkExists
		}
	}
	clone := *link
	r.links[link.ID] = &clone
	return nil
}

func (r *fakeLinkRepo) FindByToken(_ context.Context, tenantID, token string) (*domain.PaymentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.TenantID == tenantID && l.Token == token {
			clone := *l
			return &clone, nil
		}
	}
	return nil, domain.ErrLinkNotFound
}

func (r *fakeLinkRepo) FindActiveByOrder(_ context.Context, tenantID, orderID string) (*domain.PaymentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.TenantID == tenantID && l.OrderID == orderID && l.Status == domain.LinkActive {
			clone := *l
			return &clone, nil
		}
	}
	return nil, domain.ErrLinkNotFound
}

func (r *fakeLinkRepo) UpdateStatus(_ context.Context, tenantID, linkID string, from, to domain.LinkStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[linkID]
	if !ok || l.TenantID != tenantID || l.Status != from {
		return false, nil
	}
	l.Status = to
	return true, nil
}

func (r *fakeLinkRepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.links {
		if l.Status == domain.LinkActive && !l.ExpiresAt.After(now) {
			l.Status = domain.LinkExpired
			n++
		}
	}
	return n, nil
}

// fakeReservationRepo 是内存预留仓储，Resolve 的条件语义与 SQL 实现一致。
type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*domain.StockReservation // id -> reservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[string]*domain.StockReservation)}
}

func (r *fakeReservationRepo) Create(_ context.Context, reservation *domain.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *reservation
	r.reservations[reservation.ID] = &clone
	return nil
}

func (r *fakeReservationRepo) FindByOrder(_ context.Context, tenantID, orderID string) (*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.TenantID == tenantID && res.OrderID == orderID {
			clone := *res
			return &clone, nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (r *fakeReservationRepo) Resolve(_ context.Context, tenantID, reservationID string, to domain.ReservationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok || res.TenantID != tenantID || res.Status != domain.ReservationReserved {
		return false, nil
	}
	res.Status = to
	return true, nil
}

func (r *fakeReservationRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockReservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationReserved && !res.ExpiresAt.After(now) {
			clone := *res
			out = append(out, &clone)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) statusOf(orderID string) domain.ReservationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.OrderID == orderID {
			return res.Status
		}
	}
	return ""
}

// fakeAttemptRepo 是内存处理记录仓储，(provider, transactionID) 唯一。
type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]*domain.PaymentAttemptRecord
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[string]*domain.PaymentAttemptRecord)}
}

func attemptKey(provider, transactionID string) string { return provider + "|" + transactionID }

func (r *fakeAttemptRepo) Record(_ context.Context, record *domain.PaymentAttemptRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey(record.Provider, record.TransactionID)
	if _, exists := r.attempts[key]; exists {
		return false, nil
	}
	clone := *record
	r.attempts[key] = &clone
	return true, nil
}

func (r *fakeAttemptRepo) UpdateOutcome(_ context.Context, provider, transactionID, orderID string, outcome domain.AttemptOutcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.attempts[attemptKey(provider, transactionID)]
	if !ok || record.Outcome.IsTerminal() {
		return false, nil
	}
	record.Outcome = outcome
	record.OrderID = orderID
	return true, nil
}

func (r *fakeAttemptRepo) FindByTransaction(_ context.Context, provider, transactionID string) (*domain.PaymentAttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.attempts[attemptKey(provider, transactionID)]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// fakePublisher 收集发布的事件。
type fakePublisher struct {
	mu      sync.Mutex
	orphans []domain.OrphanedNotification
	paid    []domain.OrderPaidEvent
}

func (p *fakePublisher) PublishOrphan(_ context.Context, orphan domain.OrphanedNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orphans = append(p.orphans, orphan)
	return nil
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, event domain.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, event)
	return nil
}

func (p *fakePublisher) orphanCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orphans)
}

func (p *fakePublisher) paidCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paid)
}

// fakeRuleEngine 按预设结果表求值。
type fakeRuleEngine struct {
	results map[string]bool
}

func (e *fakeRuleEngine) Evaluate(expression string, _ domain.RuleFact) (bool, error) {
	return e.results[expression], nil
}

// fakeProvider 是预设快照的渠道客户端。
type fakeProvider struct {
	name      string
	snapshots map[string]domain.PaymentSnapshot
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) FindPaymentByTransactionID(_ context.Context, transactionID string) (domain.PaymentSnapshot, error) {
	return p.snapshots[transactionID], nil
}
