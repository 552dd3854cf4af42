package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
)

func TestDispatchSendsFallbackBeforeProviders(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-1"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !status.Fallback.Sent {
		t.Fatalf("expected fallback to be sent")
	}

	calls := f.log.snapshot()
	if len(calls) < 2 || calls[0] != "fallback" {
		t.Fatalf("expected fallback before provider calls, got %v", calls)
	}

	ps, ok := status.ProviderState(domain.ProviderLoyverse)
	if !ok || ps.State != domain.DeliveryDelivered {
		t.Fatalf("expected loyverse delivered, got %+v", ps)
	}
	if status.Degraded {
		t.Fatalf("expected non-degraded status after full delivery")
	}
}

func TestDispatchRetriesExhaustedKeepsOrderAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.loyverse.failWith(
		domain.ErrProviderUnreachable,
		domain.ErrProviderUnreachable,
		domain.ErrProviderUnreachable,
	)
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-2"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !status.Fallback.Sent {
		t.Fatalf("expected fallback sent even when provider fails")
	}

	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryFailed {
		t.Fatalf("expected failed state, got %s", ps.State)
	}
	if ps.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ps.Attempts)
	}
	if !status.Degraded {
		t.Fatalf("expected degraded status")
	}
	if !f.outbox.hasEventType("pos.order.delivery_failed") {
		t.Fatalf("expected delivery_failed operational event")
	}
}

func TestDispatchNonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.loyverse.failWith(domain.ErrProviderUnauthorized)
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-3"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryRejected {
		t.Fatalf("expected rejected state, got %s", ps.State)
	}
	if ps.Attempts != 1 {
		t.Fatalf("expected a single attempt on auth failure, got %d", ps.Attempts)
	}
}

func TestDispatchSkipsDisabledProvider(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-4"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ps, ok := status.ProviderState(domain.ProviderOdoo)
	if !ok || ps.State != domain.DeliverySkipped {
		t.Fatalf("expected odoo skipped, got %+v", ps)
	}
	if f.odoo.createCalls() != 0 {
		t.Fatalf("disabled provider must never be called, got %d calls", f.odoo.createCalls())
	}
	if status.Degraded {
		t.Fatalf("skipped providers must not degrade the order")
	}
}

func TestDispatchRedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	order := testOrder("ord-5")

	if _, err := f.service.Dispatch(ctx, order); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	status, err := f.service.Dispatch(ctx, order)
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}

	if f.loyverse.createCalls() != 1 {
		t.Fatalf("delivered provider must not be re-sent, got %d calls", f.loyverse.createCalls())
	}
	if f.fallback.sends() != 1 {
		t.Fatalf("fallback must fire once per order, got %d sends", f.fallback.sends())
	}
	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryDelivered {
		t.Fatalf("expected delivered state to survive redelivery, got %s", ps.State)
	}
}

func TestDispatchHoldsProviderWithAutoProcessingOff(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.source.set(snapshotWithLoyverseAutoProcess(false))
	if err := f.service.ReloadConfig(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	status, err := f.service.Dispatch(ctx, testOrder("ord-held-1"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ps, ok := status.ProviderState(domain.ProviderLoyverse)
	if !ok || ps.State != domain.DeliveryHeld {
		t.Fatalf("expected loyverse held, got %+v", ps)
	}
	if f.loyverse.createCalls() != 0 {
		t.Fatalf("held provider must never be forwarded to, got %d calls", f.loyverse.createCalls())
	}
	if !status.Fallback.Sent {
		t.Fatalf("held orders still go out on the fallback channel")
	}
	if status.Degraded {
		t.Fatalf("holding a provider is an operator choice, not a degradation")
	}
}

func TestDispatchForwardsHeldOrderOnceAutoProcessingEnabled(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	order := testOrder("ord-held-2")

	f.source.set(snapshotWithLoyverseAutoProcess(false))
	if err := f.service.ReloadConfig(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, err := f.service.Dispatch(ctx, order); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	if f.loyverse.createCalls() != 0 {
		t.Fatalf("expected no provider call while held")
	}

	f.source.set(snapshotWithLoyverseAutoProcess(true))
	if err := f.service.ReloadConfig(ctx); err != nil {
		t.Fatalf("second reload failed: %v", err)
	}
	status, err := f.service.Dispatch(ctx, order)
	if err != nil {
		t.Fatalf("re-dispatch failed: %v", err)
	}

	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryDelivered {
		t.Fatalf("expected delivery after enabling auto processing, got %s", ps.State)
	}
	if f.loyverse.createCalls() != 1 {
		t.Fatalf("expected exactly one provider call, got %d", f.loyverse.createCalls())
	}
}

func TestDispatchRetriesFallbackWhenAllProvidersFail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fallback.failOnce(errors.New("whatsapp timeout"))
	f.loyverse.failWith(domain.ErrProviderUnauthorized)
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-fb-retry"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryRejected {
		t.Fatalf("expected rejected provider, got %s", ps.State)
	}
	if !status.Fallback.Sent {
		t.Fatalf("all-failed dispatch must re-attempt the fallback send")
	}
	if f.fallback.sends() != 1 {
		t.Fatalf("expected exactly one successful fallback send, got %d", f.fallback.sends())
	}
}

func TestDispatchUnknownLocation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	order := testOrder("ord-6")
	order.LocationID = "loc-missing"

	if _, err := f.service.Dispatch(context.Background(), order); !errors.Is(err, domain.ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
}

func TestIngestRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	if _, err := f.service.Dispatch(ctx, testOrder("ord-7")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	payload := webhookPayload("evt-1", "order-status", "store-1", "loyverse-ord-7", "cancelled", f.clock.Now().Add(time.Minute))
	headers := http.Header{}
	headers.Set("X-Test-Signature", "wrong-secret")

	_, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, headers)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	status, err := f.service.Status(ctx, "ord-7")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryDelivered {
		t.Fatalf("unverified event must not mutate state, got %s", ps.State)
	}
	if f.events.count() != 0 {
		t.Fatalf("unverified event must not be stored")
	}
}

func TestIngestAppliesStatusAndDeduplicatesReplay(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	if _, err := f.service.Dispatch(ctx, testOrder("ord-8")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	payload := webhookPayload("evt-2", "order-status", "store-1", "loyverse-ord-8", "cancelled", f.clock.Now().Add(time.Minute))
	headers := signedHeaders()

	first, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, headers)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if !first.Accepted || first.Duplicate {
		t.Fatalf("expected first delivery applied, got %+v", first)
	}

	second, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, headers)
	if err != nil {
		t.Fatalf("replay ingest failed: %v", err)
	}
	if !second.Accepted || !second.Duplicate {
		t.Fatalf("expected replay acknowledged as duplicate, got %+v", second)
	}

	status, _ := f.service.Status(ctx, "ord-8")
	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryFailed {
		t.Fatalf("expected cancelled webhook to mark provider failed, got %s", ps.State)
	}
}

func TestIngestDurableDedupWhenCacheUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dedup.err = errors.New("redis down")
	ctx := context.Background()
	if _, err := f.service.Dispatch(ctx, testOrder("ord-9")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	payload := webhookPayload("evt-3", "order-status", "store-1", "loyverse-ord-9", "completed", f.clock.Now().Add(time.Minute))
	if _, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, signedHeaders()); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, signedHeaders())
	if err != nil {
		t.Fatalf("replay ingest failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("event table must dedup when the cache is down, got %+v", second)
	}
}

func TestIngestStaleEventIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	if _, err := f.service.Dispatch(ctx, testOrder("ord-10")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	stale := webhookPayload("evt-4", "order-status", "store-1", "loyverse-ord-10", "cancelled", f.clock.Now().Add(-time.Hour))
	res, err := f.service.Ingest(ctx, domain.ProviderLoyverse, stale, signedHeaders())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("stale events are acknowledged, got %+v", res)
	}

	status, _ := f.service.Status(ctx, "ord-10")
	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.State != domain.DeliveryDelivered {
		t.Fatalf("stale event must not regress state, got %s", ps.State)
	}
}

func TestIngestPaymentEvent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	if _, err := f.service.Dispatch(ctx, testOrder("ord-11")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	payload := paymentPayload("evt-5", "store-1", "loyverse-ord-11", "paid", f.clock.Now().Add(time.Minute))
	if _, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, signedHeaders()); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	status, _ := f.service.Status(ctx, "ord-11")
	ps, _ := status.ProviderState(domain.ProviderLoyverse)
	if ps.PaymentStatus != "paid" {
		t.Fatalf("expected payment status recorded, got %q", ps.PaymentStatus)
	}
	if ps.State != domain.DeliveryDelivered {
		t.Fatalf("payment events must not change delivery state, got %s", ps.State)
	}
}

func TestIngestTerminalFailureTriggersLateFallback(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fallback.fail(errors.New("whatsapp outage"))
	ctx := context.Background()

	status, err := f.service.Dispatch(ctx, testOrder("ord-12"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if status.Fallback.Sent {
		t.Fatalf("fallback send should have failed during dispatch")
	}

	f.fallback.fail(nil)
	payload := webhookPayload("evt-6", "order-status", "store-1", "loyverse-ord-12", "cancelled", f.clock.Now().Add(time.Minute))
	if _, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, signedHeaders()); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	status, _ = f.service.Status(ctx, "ord-12")
	if !status.Fallback.Sent {
		t.Fatalf("terminal vendor failure must trigger the fallback if it never fired")
	}
}

func TestIngestUnknownProviderOrderAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	payload := webhookPayload("evt-7", "order-status", "store-1", "loyverse-nope", "completed", f.clock.Now())
	res, err := f.service.Ingest(ctx, domain.ProviderLoyverse, payload, signedHeaders())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("unknown order references are acknowledged, got %+v", res)
	}
}

func TestReconcileSecondRunIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	first, err := f.service.Reconcile(ctx, "loc-1", domain.ProviderLoyverse)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if first.Upserted != 2 || first.Retired != 0 {
		t.Fatalf("expected 2 upserts on first run, got %+v", first)
	}

	second, err := f.service.Reconcile(ctx, "loc-1", domain.ProviderLoyverse)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Upserted != 0 || second.Retired != 0 {
		t.Fatalf("unchanged catalog must produce no provider writes, got %+v", second)
	}
	if f.loyverse.upsertCalls() != 2 {
		t.Fatalf("expected 2 total upsert calls, got %d", f.loyverse.upsertCalls())
	}
}

func TestReconcileRetiresRemovedItems(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Reconcile(ctx, "loc-1", domain.ProviderLoyverse); err != nil {
		t.Fatalf("initial reconcile failed: %v", err)
	}

	trimmed := f.source.snap
	loc := trimmed.Locations["loc-1"]
	loc.Catalog = loc.Catalog[:1]
	trimmed.Locations = map[string]domain.Location{"loc-1": loc}
	f.source.set(trimmed)
	if err := f.service.ReloadConfig(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	result, err := f.service.Reconcile(ctx, "loc-1", domain.ProviderLoyverse)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Retired != 1 {
		t.Fatalf("expected 1 retire, got %+v", result)
	}
	if f.loyverse.retireCalls() != 1 {
		t.Fatalf("expected 1 provider retire call, got %d", f.loyverse.retireCalls())
	}
}

func TestReconcileBusy(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.locks.Acquire(ctx, "loc-1", domain.ProviderLoyverse, time.Minute); err != nil {
		t.Fatalf("pre-acquire failed: %v", err)
	}
	if _, err := f.service.Reconcile(ctx, "loc-1", domain.ProviderLoyverse); !errors.Is(err, domain.ErrReconcileBusy) {
		t.Fatalf("expected ErrReconcileBusy, got %v", err)
	}
}

func TestReloadConfigKeepsPreviousSnapshotOnError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.source.err = errors.New("truncated file")
	if err := f.service.ReloadConfig(ctx); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}

	if _, err := f.service.Resolve("loc-1"); err != nil {
		t.Fatalf("previous snapshot must stay active, got %v", err)
	}
}

func testOrder(id string) domain.CanonicalOrder {
	return domain.CanonicalOrder{
		OrderID:    id,
		LocationID: "loc-1",
		Items: []domain.LineItem{
			{MenuItemID: "taco-pastor", Name: "Taco al Pastor", Quantity: 2, UnitPrice: 25},
		},
		Subtotal: 50,
		Total:    50,
		Customer: domain.Contact{Name: "Ana", Phone: "5215511112222"},
	}
}

func webhookPayload(eventID, eventType, storeID, providerOrderID, status string, occurredAt time.Time) []byte {
	raw, _ := json.Marshal(map[string]any{
		"event_id":          eventID,
		"event_type":        eventType,
		"store_id":          storeID,
		"provider_order_id": providerOrderID,
		"status":            status,
		"occurred_at":       occurredAt,
	})
	return raw
}

func paymentPayload(eventID, storeID, providerOrderID, paymentStatus string, occurredAt time.Time) []byte {
	raw, _ := json.Marshal(map[string]any{
		"event_id":          eventID,
		"event_type":        "payment",
		"store_id":          storeID,
		"provider_order_id": providerOrderID,
		"payment_status":    paymentStatus,
		"occurred_at":       occurredAt,
	})
	return raw
}

func signedHeaders() http.Header {
	headers := http.Header{}
	headers.Set("X-Test-Signature", "secret-loyverse")
	return headers
}

func newFixture() *fixture {
	log := &callLog{}
	clock := &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	source := &fakeSource{snap: testSnapshot()}
	orders := newFakeOrders()
	events := newFakeEvents()
	mappings := newFakeMappings()
	outbox := &fakeOutbox{}
	dedup := &fakeDedup{reserved: map[string]bool{}}
	locks := &fakeSyncLocks{held: map[string]bool{}}
	fallback := &fakeFallback{log: log}
	loyverse := newFakeProvider(domain.ProviderLoyverse, log)
	odoo := newFakeProvider(domain.ProviderOdoo, log)

	svc := NewService(Dependencies{
		Config: Config{
			MaxAttempts:      3,
			RetryBackoffBase: time.Millisecond,
			ProviderTimeout:  time.Second,
			DispatchBudget:   5 * time.Second,
			TimestampPolicy:  PolicyEventTimestamp,
		},
		Source:    source,
		Orders:    orders,
		Events:    events,
		Mappings:  mappings,
		Outbox:    outbox,
		Dedup:     dedup,
		SyncLocks: locks,
		Fallback:  fallback,
		Providers: []ports.ProviderClient{loyverse, odoo},
	})
	svc.nowFn = clock.Now
	if err := svc.LoadConfig(context.Background()); err != nil {
		panic(fmt.Sprintf("fixture snapshot load: %v", err))
	}

	return &fixture{
		service:  svc,
		clock:    clock,
		source:   source,
		orders:   orders,
		events:   events,
		mappings: mappings,
		outbox:   outbox,
		dedup:    dedup,
		locks:    locks,
		fallback: fallback,
		loyverse: loyverse,
		odoo:     odoo,
		log:      log,
	}
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version: "test-1",
		Locations: map[string]domain.Location{
			"loc-1": {
				ID:   "loc-1",
				Name: "Sucursal Centro",
				Providers: []domain.ProviderConfig{
					{
						Kind:               domain.ProviderLoyverse,
						Enabled:            true,
						BaseURL:            "https://api.loyverse.test",
						APIKey:             "key",
						WebhookSecret:      "secret-loyverse",
						StoreID:            "store-1",
						SyncMenu:           true,
						AutoProcessOrders:  true,
						FallbackToWhatsApp: true,
					},
					{
						Kind:    domain.ProviderOdoo,
						Enabled: false,
						BaseURL: "https://erp.test",
						StoreID: "odoo-1",
					},
				},
				Catalog: []domain.MenuItem{
					{ID: "taco-pastor", Name: "Taco al Pastor", Price: 25, Category: "Tacos", Available: true},
					{ID: "agua-horchata", Name: "Agua de Horchata", Price: 30, Category: "Bebidas", Available: true},
				},
			},
		},
	}
}

func snapshotWithLoyverseAutoProcess(auto bool) domain.Snapshot {
	snap := testSnapshot()
	loc := snap.Locations["loc-1"]
	providers := append([]domain.ProviderConfig(nil), loc.Providers...)
	providers[0].AutoProcessOrders = auto
	loc.Providers = providers
	snap.Locations = map[string]domain.Location{"loc-1": loc}
	return snap
}

type fixture struct {
	service  *Service
	clock    *testClock
	source   *fakeSource
	orders   *fakeOrders
	events   *fakeEvents
	mappings *fakeMappings
	outbox   *fakeOutbox
	dedup    *fakeDedup
	locks    *fakeSyncLocks
	fallback *fakeFallback
	loyverse *fakeProvider
	odoo     *fakeProvider
	log      *callLog
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

type fakeSource struct {
	mu   sync.Mutex
	snap domain.Snapshot
	err  error
}

func (f *fakeSource) set(snap domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeSource) LoadSnapshot(_ context.Context) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, f.err)
	}
	return f.snap, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[string]domain.CanonicalOrder
	statuses map[string]domain.DispatchStatus
	index    map[string]string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		orders:   map[string]domain.CanonicalOrder{},
		statuses: map[string]domain.DispatchStatus{},
		index:    map[string]string{},
	}
}

func (f *fakeOrders) Create(_ context.Context, order domain.CanonicalOrder, status domain.DispatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.OrderID]; ok {
		return domain.ErrOrderExists
	}
	f.orders[order.OrderID] = order
	f.statuses[order.OrderID] = status
	return nil
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID string) (domain.CanonicalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return domain.CanonicalOrder{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrders) GetStatus(_ context.Context, orderID string) (domain.DispatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[orderID]
	if !ok {
		return domain.DispatchStatus{}, domain.ErrOrderNotFound
	}
	return status, nil
}

func (f *fakeOrders) SaveStatus(_ context.Context, status domain.DispatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[status.OrderID] = status
	return nil
}

func (f *fakeOrders) IndexProviderOrder(_ context.Context, provider domain.ProviderKind, providerOrderID, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index[string(provider)+"|"+providerOrderID] = orderID
	return nil
}

func (f *fakeOrders) LookupByProviderOrder(_ context.Context, provider domain.ProviderKind, providerOrderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orderID, ok := f.index[string(provider)+"|"+providerOrderID]
	if !ok {
		return "", domain.ErrOrderNotFound
	}
	return orderID, nil
}

type fakeEvents struct {
	mu    sync.Mutex
	items map[string]domain.WebhookEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{items: map[string]domain.WebhookEvent{}}
}

func eventKey(provider domain.ProviderKind, eventID string) string {
	return string(provider) + "|" + eventID
}

func (f *fakeEvents) Insert(_ context.Context, event domain.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventKey(event.Provider, event.EventID)
	if _, ok := f.items[key]; ok {
		return domain.ErrDuplicateEvent
	}
	f.items[key] = event
	return nil
}

func (f *fakeEvents) MarkProcessed(_ context.Context, provider domain.ProviderKind, eventID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventKey(provider, eventID)
	event, ok := f.items[key]
	if !ok {
		return domain.ErrOrderNotFound
	}
	event.Processed = true
	event.ProcessedAt = &at
	f.items[key] = event
	return nil
}

func (f *fakeEvents) Get(_ context.Context, provider domain.ProviderKind, eventID string) (*domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.items[eventKey(provider, eventID)]
	if !ok {
		return nil, nil
	}
	return &event, nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeMappings struct {
	mu    sync.Mutex
	items map[string]domain.ProviderMapping
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{items: map[string]domain.ProviderMapping{}}
}

func mappingKey(locationID string, provider domain.ProviderKind, canonicalItemID string) string {
	return locationID + "|" + string(provider) + "|" + canonicalItemID
}

func (f *fakeMappings) List(_ context.Context, locationID string, provider domain.ProviderKind) ([]domain.ProviderMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ProviderMapping, 0, len(f.items))
	for _, m := range f.items {
		if m.LocationID == locationID && m.Provider == provider {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMappings) Upsert(_ context.Context, mapping domain.ProviderMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[mappingKey(mapping.LocationID, mapping.Provider, mapping.CanonicalItemID)] = mapping
	return nil
}

func (f *fakeMappings) Retire(_ context.Context, locationID string, provider domain.ProviderKind, canonicalItemID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := mappingKey(locationID, provider, canonicalItemID)
	mapping, ok := f.items[key]
	if !ok {
		return domain.ErrOrderNotFound
	}
	mapping.Retired = true
	mapping.SyncedAt = at
	f.items[key] = mapping
	return nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) hasEventType(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

type fakeDedup struct {
	mu       sync.Mutex
	reserved map[string]bool
	err      error
}

func (f *fakeDedup) Reserve(_ context.Context, provider domain.ProviderKind, eventID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	key := eventKey(provider, eventID)
	if f.reserved[key] {
		return false, nil
	}
	f.reserved[key] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, provider domain.ProviderKind, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reserved, eventKey(provider, eventID))
	return nil
}

type fakeSyncLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeSyncLocks) Acquire(_ context.Context, locationID string, provider domain.ProviderKind, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := locationID + "|" + string(provider)
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeSyncLocks) Release(_ context.Context, locationID string, provider domain.ProviderKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, locationID+"|"+string(provider))
	return nil
}

type fakeFallback struct {
	mu    sync.Mutex
	log   *callLog
	err   error
	once  []error
	count int
}

func (f *fakeFallback) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFallback) failOnce(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once = append(f.once, err)
}

func (f *fakeFallback) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeFallback) Send(_ context.Context, _ domain.Location, _ domain.CanonicalOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.once) > 0 {
		err := f.once[0]
		f.once = f.once[1:]
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.count++
	f.log.add("fallback")
	return nil
}

type fakeProvider struct {
	kind domain.ProviderKind
	log  *callLog

	mu      sync.Mutex
	errs    []error
	creates int
	upserts int
	retires int
}

func newFakeProvider(kind domain.ProviderKind, log *callLog) *fakeProvider {
	return &fakeProvider{kind: kind, log: log}
}

func (f *fakeProvider) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeProvider) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeProvider) upsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *fakeProvider) retireCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retires
}

func (f *fakeProvider) Kind() domain.ProviderKind {
	return f.kind
}

func (f *fakeProvider) CreateOrder(_ context.Context, _ domain.ProviderConfig, order domain.CanonicalOrder) (ports.ProviderOrderRef, error) {
	f.mu.Lock()
	f.creates++
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	f.log.add("provider:" + string(f.kind))
	if err != nil {
		return ports.ProviderOrderRef{}, err
	}
	return ports.ProviderOrderRef{
		Provider:        f.kind,
		ProviderOrderID: string(f.kind) + "-" + order.OrderID,
	}, nil
}

func (f *fakeProvider) UpsertCatalogItem(_ context.Context, _ domain.ProviderConfig, _ domain.MenuItem, _ domain.ProviderMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return nil
}

func (f *fakeProvider) RetireCatalogItem(_ context.Context, _ domain.ProviderConfig, _ domain.ProviderMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retires++
	return nil
}

func (f *fakeProvider) VerifyWebhookSignature(_ []byte, headers http.Header, sharedSecret string) bool {
	return sharedSecret != "" && headers.Get("X-Test-Signature") == sharedSecret
}

func (f *fakeProvider) ParseWebhook(rawPayload []byte) (domain.WebhookEvent, error) {
	var p struct {
		EventID         string    `json:"event_id"`
		EventType       string    `json:"event_type"`
		StoreID         string    `json:"store_id"`
		ProviderOrderID string    `json:"provider_order_id"`
		Status          string    `json:"status"`
		PaymentStatus   string    `json:"payment_status"`
		OccurredAt      time.Time `json:"occurred_at"`
	}
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return domain.WebhookEvent{}, err
	}
	return domain.WebhookEvent{
		Provider:        f.kind,
		EventID:         p.EventID,
		EventType:       domain.WebhookEventType(p.EventType),
		LocationID:      p.StoreID,
		ProviderOrderID: p.ProviderOrderID,
		Status:          p.Status,
		PaymentStatus:   p.PaymentStatus,
		OccurredAt:      p.OccurredAt,
	}, nil
}
