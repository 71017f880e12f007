package order

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/pricing"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CartItem is a client cart entry. Prices always come from the catalog.
type CartItem struct {
	ProductID string
	Quantity  int
}

// CartSession is the cart handed over at checkout.
type CartSession struct {
	Items []CartItem
}

// SubmitRequest is a checkout submission.
type SubmitRequest struct {
	Cart          CartSession
	Shipping      ShippingInfo
	PaymentMethod PaymentMethod
}

// Validate checks the shape of the submission before any lookup runs.
func (r *SubmitRequest) Validate() error {
	if len(r.Cart.Items) == 0 {
		return validation.Errorf("items", "cart is empty")
	}
	for i, it := range r.Cart.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return validation.Errorf(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if it.Quantity <= 0 {
			return validation.Errorf(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
	}

	r.Shipping.Name = strings.TrimSpace(r.Shipping.Name)
	r.Shipping.Phone = strings.TrimSpace(r.Shipping.Phone)
	r.Shipping.Email = strings.TrimSpace(r.Shipping.Email)
	r.Shipping.Note = strings.TrimSpace(r.Shipping.Note)
	switch {
	case r.Shipping.Name == "":
		return validation.Errorf("shippingInfo.name", "is required")
	case r.Shipping.Phone == "":
		return validation.Errorf("shippingInfo.phone", "is required")
	case r.Shipping.Email == "":
		return validation.Errorf("shippingInfo.email", "is required")
	case !emailPattern.MatchString(r.Shipping.Email):
		return validation.Errorf("shippingInfo.email", "is not a valid email address")
	}

	if !r.PaymentMethod.Valid() {
		return validation.Errorf("paymentMethod", "unsupported payment method %q", r.PaymentMethod)
	}
	return nil
}

// Visibility tells callers how much of an order the actor may see.
type Visibility int

const (
	// VisibilityPublic exposes number, status, creation time, total and items.
	VisibilityPublic Visibility = iota
	// VisibilityFull exposes everything including contact details.
	VisibilityFull
)

// NumberSource issues order numbers.
type NumberSource interface {
	Next() (string, error)
}

// Service encapsulates checkout and order lifecycle business logic.
type Service struct {
	products product.Repository
	orders   Repository
	numbers  NumberSource
	events   Publisher
	now      func() time.Time
	newID    func() string
}

// NewService creates an order Service. events may be nil.
func NewService(
	products product.Repository,
	orders Repository,
	numbers NumberSource,
	events Publisher,
) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		products: products,
		orders:   orders,
		numbers:  numbers,
		events:   events,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Create validates the submission, prices it against the current catalog
// and persists the new pending order. Buyers with no prior orders receive
// the member discount; the count and the write are serialized per buyer.
func (s *Service) Create(ctx context.Context, req SubmitRequest, actor auth.Actor) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lines, err := s.resolveLines(ctx, req.Cart)
	if err != nil {
		return nil, err
	}

	buyerID := actor.BuyerID()
	var o *Order
	if buyerID == "" {
		o, err = s.assemble(lines, req, "", false)
		if err != nil {
			return nil, err
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return nil, errors.Wrap(err, "create order")
		}
	} else {
		o, err = s.orders.CreateForBuyer(ctx, buyerID, func(prior int) (*Order, error) {
			return s.assemble(lines, req, buyerID, prior == 0)
		})
		if err != nil {
			return nil, errors.Wrap(err, "create order")
		}
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.Bool("guest", o.IsGuest()),
		zap.Stringer("total", o.Total),
		zap.Stringer("member_discount", o.MemberDiscount),
	)
	s.publish(ctx, EventCreated, o)

	return o, nil
}

// resolveLines prices cart items with a single catalog lookup.
func (s *Service) resolveLines(ctx context.Context, cart CartSession) ([]pricing.CartLine, error) {
	ids := make([]string, len(cart.Items))
	for i, it := range cart.Items {
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]pricing.CartLine, len(cart.Items))
	for i, it := range cart.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, validation.Errorf(fmt.Sprintf("items[%d].productId", i), "product %s not found", it.ProductID)
		}
		lines[i] = pricing.CartLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Category:    p.Category,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
		}
	}
	return lines, nil
}

func (s *Service) assemble(lines []pricing.CartLine, req SubmitRequest, buyerID string, firstOrder bool) (*Order, error) {
	totals, err := pricing.ComputeTotals(lines, firstOrder)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next()
	if err != nil {
		return nil, errors.Wrap(err, "generate order number")
	}

	items := make([]LineItem, len(lines))
	for i, l := range lines {
		items[i] = LineItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   totals.Lines[i].UnitPrice,
			LineTotal:   totals.Lines[i].Charged,
		}
	}

	now := s.timestamp()
	o := &Order{
		ID:             s.newID(),
		Number:         number,
		BuyerID:        buyerID,
		Items:          items,
		Subtotal:       totals.Subtotal,
		ItemDiscount:   totals.ItemDiscount,
		MemberDiscount: totals.MemberDiscount,
		ShippingFee:    decimal.Zero,
		Total:          totals.Total,
		Shipping:       req.Shipping,
		PaymentMethod:  req.PaymentMethod,
		Version:        1,
		CreatedAt:      now,
	}
	start(o, now)
	return o, nil
}

// timestamp returns the current time at the precision PostgreSQL stores.
func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// UpdateStatus applies an administrative or buyer transition atomically.
func (s *Service) UpdateStatus(ctx context.Context, id string, target Status, actor auth.Actor) (*Order, error) {
	if actor.IsGuest() {
		return nil, auth.ErrUnauthenticated
	}

	var from Status
	o, err := s.orders.Update(ctx, id, func(o *Order) error {
		from = o.Status
		return Transition(o, target, actor, s.timestamp())
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.Stringer("actor", actor.Kind),
	)
	s.publish(ctx, EventStatusChanged, o)

	return o, nil
}

// Cancel cancels a pending order owned by the calling buyer.
func (s *Service) Cancel(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	return s.UpdateStatus(ctx, id, StatusCancelled, actor)
}

// Get returns an order and how much of it actor may see.
func (s *Service) Get(ctx context.Context, id string, actor auth.Actor) (*Order, Visibility, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, VisibilityPublic, err
	}
	return o, visibility(o, actor), nil
}

// GetByNumber is Get keyed by order number.
func (s *Service) GetByNumber(ctx context.Context, number string, actor auth.Actor) (*Order, Visibility, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, VisibilityPublic, err
	}
	return o, visibility(o, actor), nil
}

// GetForAdmin returns an order with full visibility. Admin only.
func (s *Service) GetForAdmin(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, id)
}

func visibility(o *Order, actor auth.Actor) Visibility {
	if actor.IsAdmin() || actor.Owns(o.BuyerID) {
		return VisibilityFull
	}
	return VisibilityPublic
}

// ListForBuyer returns the calling buyer's orders, newest first.
func (s *Service) ListForBuyer(ctx context.Context, actor auth.Actor) ([]Order, error) {
	if !actor.IsBuyer() {
		return nil, auth.ErrUnauthenticated
	}
	return s.orders.ListByBuyer(ctx, actor.ID)
}

// ListAll returns orders matching f. Admin only.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor, f ListFilter) ([]Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, validation.Errorf("status", "unknown status %q", f.Status)
	}
	return s.orders.List(ctx, f)
}

// PriorOrderCount returns how many orders the calling buyer has placed.
func (s *Service) PriorOrderCount(ctx context.Context, actor auth.Actor) (int, error) {
	if !actor.IsBuyer() {
		return 0, auth.ErrUnauthenticated
	}
	return s.orders.CountByBuyer(ctx, actor.ID)
}

// Delete removes an order outright. It is an administrative escape hatch
// outside the lifecycle.
func (s *Service) Delete(ctx context.Context, id string, actor auth.Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return err
	}

	zctx.From(ctx).Warn("Order deleted",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("admin", actor.ID),
	)
	s.publish(ctx, EventDeleted, o)
	return nil
}

func requireAdmin(actor auth.Actor) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsGuest():
		return auth.ErrUnauthenticated
	default:
		return ErrForbidden
	}
}

// publish never fails the caller: the change is already committed.
func (s *Service) publish(ctx context.Context, typ EventType, o *Order) {
	ev := Event{Type: typ, Order: *o, At: s.now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
