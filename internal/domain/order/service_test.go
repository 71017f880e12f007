package order

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// mockOrderRepo is an in-memory store. CreateForBuyer serializes per store;
// Create and CountByBuyer do not, mirroring a plain document store.
type mockOrderRepo struct {
	mu        sync.Mutex
	buyerLock sync.Mutex
	byID      map[string]*Order
	createErr error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) CreateForBuyer(ctx context.Context, buyerID string, build func(int) (*Order, error)) (*Order, error) {
	m.buyerLock.Lock()
	defer m.buyerLock.Unlock()

	prior, err := m.CountByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	// Widen the window between count and write.
	runtime.Gosched()

	o, err := build(prior)
	if err != nil {
		return nil, err
	}
	if err := m.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByBuyer(_ context.Context, buyerID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) CountByBuyer(_ context.Context, buyerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.byID {
		if o.BuyerID == buyerID {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) Update(_ context.Context, id string, mutate func(*Order) error) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.History = append([]StatusRecord(nil), o.History...)
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	cp.Version++
	m.byID[id] = &cp
	out := cp
	return &out, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *mockPublisher) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

// --- Helpers ---

var (
	dripBag = product.Product{
		ID:       "drip-bag",
		Name:     "Drip bag filter pack",
		Price:    decimal.NewFromInt(100),
		Category: product.CategoryFilterPack,
	}
	houseBlend = product.Product{
		ID:       "house-blend",
		Name:     "House blend 250g",
		Price:    decimal.NewFromInt(450),
		Category: "beans",
	}
)

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

type testEnv struct {
	svc    *Service
	orders *mockOrderRepo
	events *mockPublisher
}

func newTestEnv() *testEnv {
	orders := newOrderRepo()
	events := &mockPublisher{}
	svc := NewService(newProductRepo(dripBag, houseBlend), orders, NewGenerator(), events)

	var (
		mu   sync.Mutex
		tick = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return &testEnv{svc: svc, orders: orders, events: events}
}

func validRequest(items ...CartItem) SubmitRequest {
	return SubmitRequest{
		Cart: CartSession{Items: items},
		Shipping: ShippingInfo{
			Name:  "Lin Mei",
			Phone: "0912345678",
			Email: "mei@example.com",
		},
		PaymentMethod: PaymentCashTaipei,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Tests ---

func TestCreate_GuestCheckout(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.Create(context.Background(), validRequest(CartItem{ProductID: "drip-bag", Quantity: 4}), auth.Guest())
	require.NoError(t, err)

	assert.True(t, dec("400").Equal(o.Subtotal))
	assert.True(t, dec("20").Equal(o.ItemDiscount))
	assert.True(t, decimal.Zero.Equal(o.MemberDiscount))
	assert.True(t, dec("380").Equal(o.Total))
	assert.True(t, o.IsGuest())
	assert.Regexp(t, numberPattern, o.Number)
	assert.NotEmpty(t, o.ID)

	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].Status)
	assert.Equal(t, o.CreatedAt, o.History[0].Timestamp)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Drip bag filter pack", o.Items[0].ProductName)
	assert.True(t, dec("95").Equal(o.Items[0].UnitPrice))
	assert.True(t, dec("380").Equal(o.Items[0].LineTotal))

	stored, err := env.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)
	assert.Equal(t, []EventType{EventCreated}, env.events.types())
}

func TestCreate_FirstOrderMemberDiscount(t *testing.T) {
	env := newTestEnv()
	buyer := auth.Buyer("acc-1")
	req := validRequest(CartItem{ProductID: "drip-bag", Quantity: 4})

	first, err := env.svc.Create(context.Background(), req, buyer)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", first.BuyerID)
	assert.True(t, dec("20").Equal(first.ItemDiscount))
	assert.True(t, dec("38").Equal(first.MemberDiscount))
	assert.True(t, dec("342").Equal(first.Total))

	second, err := env.svc.Create(context.Background(), req, buyer)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(second.MemberDiscount))
	assert.True(t, dec("380").Equal(second.Total))
}

func TestCreate_AdminChecksOutAsGuest(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.Create(context.Background(), validRequest(CartItem{ProductID: "drip-bag", Quantity: 4}), auth.Admin("coffee"))
	require.NoError(t, err)
	assert.True(t, o.IsGuest())
	assert.True(t, decimal.Zero.Equal(o.MemberDiscount))
}

func TestCreate_ConcurrentFirstOrders(t *testing.T) {
	env := newTestEnv()
	buyer := auth.Buyer("acc-new")
	req := validRequest(CartItem{ProductID: "house-blend", Quantity: 1})

	const n = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		orders []*Order
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := env.svc.Create(context.Background(), req, buyer)
			assert.NoError(t, err)
			mu.Lock()
			orders = append(orders, o)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, orders, n)
	discounted := 0
	for _, o := range orders {
		if o.MemberDiscount.IsPositive() {
			discounted++
			assert.True(t, dec("45").Equal(o.MemberDiscount))
		}
	}
	assert.Equal(t, 1, discounted, "exactly one order may carry the first-order discount")
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SubmitRequest)
		field  string
	}{
		{name: "empty cart", mutate: func(r *SubmitRequest) { r.Cart.Items = nil }, field: "items"},
		{name: "blank product", mutate: func(r *SubmitRequest) { r.Cart.Items[0].ProductID = " " }, field: "items[0].productId"},
		{name: "zero quantity", mutate: func(r *SubmitRequest) { r.Cart.Items[0].Quantity = 0 }, field: "items[0].quantity"},
		{name: "unknown product", mutate: func(r *SubmitRequest) { r.Cart.Items[0].ProductID = "espresso-machine" }, field: "items[0].productId"},
		{name: "missing name", mutate: func(r *SubmitRequest) { r.Shipping.Name = "" }, field: "shippingInfo.name"},
		{name: "missing phone", mutate: func(r *SubmitRequest) { r.Shipping.Phone = "  " }, field: "shippingInfo.phone"},
		{name: "missing email", mutate: func(r *SubmitRequest) { r.Shipping.Email = "" }, field: "shippingInfo.email"},
		{name: "bad email", mutate: func(r *SubmitRequest) { r.Shipping.Email = "mei@" }, field: "shippingInfo.email"},
		{name: "unknown payment", mutate: func(r *SubmitRequest) { r.PaymentMethod = "credit-card" }, field: "paymentMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			req := validRequest(CartItem{ProductID: "drip-bag", Quantity: 1})
			tt.mutate(&req)

			_, err := env.svc.Create(context.Background(), req, auth.Guest())

			var ve *validation.Error
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, env.orders.byID, "nothing may be persisted")
			assert.Empty(t, env.events.types())
		})
	}
}

func TestCreate_PersistenceFailure(t *testing.T) {
	env := newTestEnv()
	env.orders.createErr = errors.New("db write failed")

	_, err := env.svc.Create(context.Background(), validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Guest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, env.events.types())
}

func TestCreate_CatalogFailure(t *testing.T) {
	env := newTestEnv()
	env.svc.products = &mockProductRepo{getErr: errors.New("catalog offline")}

	_, err := env.svc.Create(context.Background(), validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Guest())
	require.Error(t, err)
	_, isValidation := validation.As(err)
	assert.False(t, isValidation)
}

func TestCreate_PublishFailureIsNotFatal(t *testing.T) {
	env := newTestEnv()
	env.events.err = errors.New("broker down")

	o, err := env.svc.Create(context.Background(), validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Guest())
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestUpdateStatus_AdminJumpsToCompleted(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 2}), auth.Guest())
	require.NoError(t, err)

	updated, err := env.svc.UpdateStatus(ctx, o.ID, StatusCompleted, auth.Admin("coffee"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	require.Len(t, updated.History, 2)
	assert.Equal(t, StatusCompleted, updated.History[1].Status)
	assert.Equal(t, 2, updated.Version)

	assert.Equal(t, []EventType{EventCreated, EventStatusChanged}, env.events.types())
}

func TestTimestampsTruncatedToMicroseconds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tick := time.Date(2025, 4, 1, 8, 0, 0, 123456789, time.UTC)
	env.svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Guest())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 8, 0, 1, 123456000, time.UTC), o.CreatedAt)
	require.Len(t, o.History, 1)
	assert.True(t, o.History[0].Timestamp.Equal(o.CreatedAt))

	updated, err := env.svc.UpdateStatus(ctx, o.ID, StatusProcessing, auth.Admin("coffee"))
	require.NoError(t, err)
	require.Len(t, updated.History, 2)
	assert.Zero(t, updated.History[1].Timestamp.Nanosecond()%int(time.Microsecond))
}

func TestUpdateStatus_Errors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 2}), auth.Buyer("acc-1"))
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(ctx, o.ID, StatusShipping, auth.Guest())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = env.svc.UpdateStatus(ctx, o.ID, StatusShipping, auth.Buyer("acc-1"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.UpdateStatus(ctx, "missing", StatusShipping, auth.Admin("coffee"))
	require.ErrorIs(t, err, ErrNotFound)

	stored, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Len(t, stored.History, 1)
}

func TestCancel(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := auth.Buyer("acc-1")

	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "house-blend", Quantity: 1}), owner)
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, o.ID, auth.Buyer("acc-2"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Cancel(ctx, o.ID, auth.Guest())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	cancelled, err := env.svc.Cancel(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Len(t, cancelled.History, 2)

	_, err = env.svc.Cancel(ctx, o.ID, owner)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusCancelled, ite.Current)

	_, err = env.svc.UpdateStatus(ctx, o.ID, StatusProcessing, auth.Admin("coffee"))
	require.ErrorAs(t, err, &ite)
}

func TestCancel_NotPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := auth.Buyer("acc-1")

	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "house-blend", Quantity: 1}), owner)
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, o.ID, StatusProcessing, auth.Admin("coffee"))
	require.NoError(t, err)

	_, err = env.svc.Cancel(ctx, o.ID, owner)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusProcessing, ite.Current)
}

func TestGet_Visibility(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Buyer("acc-1"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor auth.Actor
		want  Visibility
	}{
		{name: "owner", actor: auth.Buyer("acc-1"), want: VisibilityFull},
		{name: "admin", actor: auth.Admin("coffee"), want: VisibilityFull},
		{name: "other buyer", actor: auth.Buyer("acc-2"), want: VisibilityPublic},
		{name: "guest", actor: auth.Guest(), want: VisibilityPublic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, vis, err := env.svc.Get(ctx, o.ID, tt.actor)
			require.NoError(t, err)
			assert.Equal(t, o.ID, got.ID)
			assert.Equal(t, tt.want, vis)

			byNumber, vis, err := env.svc.GetByNumber(ctx, o.Number, tt.actor)
			require.NoError(t, err)
			assert.Equal(t, o.ID, byNumber.ID)
			assert.Equal(t, tt.want, vis)
		})
	}

	_, _, err = env.svc.Get(ctx, "missing", auth.Guest())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGuestOrderIsNeverFullyVisibleToBuyers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Guest())
	require.NoError(t, err)

	_, vis, err := env.svc.Get(ctx, o.ID, auth.Buyer("acc-1"))
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, vis)
}

func TestListings(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := validRequest(CartItem{ProductID: "drip-bag", Quantity: 1})

	a1, err := env.svc.Create(ctx, req, auth.Buyer("acc-1"))
	require.NoError(t, err)
	a2, err := env.svc.Create(ctx, req, auth.Buyer("acc-1"))
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, req, auth.Buyer("acc-2"))
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, req, auth.Guest())
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, a1.ID, StatusShipping, auth.Admin("coffee"))
	require.NoError(t, err)

	mine, err := env.svc.ListForBuyer(ctx, auth.Buyer("acc-1"))
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID, "newest first")

	_, err = env.svc.ListForBuyer(ctx, auth.Guest())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	count, err := env.svc.PriorOrderCount(ctx, auth.Buyer("acc-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := env.svc.ListAll(ctx, auth.Admin("coffee"), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	shipping, err := env.svc.ListAll(ctx, auth.Admin("coffee"), ListFilter{Status: StatusShipping})
	require.NoError(t, err)
	require.Len(t, shipping, 1)
	assert.Equal(t, a1.ID, shipping[0].ID)

	_, err = env.svc.ListAll(ctx, auth.Admin("coffee"), ListFilter{Status: "lost"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)

	_, err = env.svc.ListAll(ctx, auth.Buyer("acc-1"), ListFilter{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.ListAll(ctx, auth.Guest(), ListFilter{})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestDelete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o, err := env.svc.Create(ctx, validRequest(CartItem{ProductID: "drip-bag", Quantity: 1}), auth.Buyer("acc-1"))
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.Delete(ctx, o.ID, auth.Buyer("acc-1")), ErrForbidden)
	require.NoError(t, env.svc.Delete(ctx, o.ID, auth.Admin("coffee")))
	require.ErrorIs(t, env.svc.Delete(ctx, o.ID, auth.Admin("coffee")), ErrNotFound)

	assert.Equal(t, []EventType{EventCreated, EventDeleted}, env.events.types())
}
