package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipping, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentMethod is a pickup-and-pay location.
type PaymentMethod string

const (
	PaymentCashTaipei   PaymentMethod = "cash-taipei"
	PaymentCashSanchong PaymentMethod = "cash-sanchong"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashTaipei || m == PaymentCashSanchong
}

// ShippingInfo is the contact the order is handed to. Note is optional.
type ShippingInfo struct {
	Name  string
	Phone string
	Email string
	Note  string
}

// LineItem is an immutable order line. UnitPrice is the discounted unit
// price actually charged; LineTotal is the charged amount for the line.
type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// StatusRecord is one entry of the status history.
type StatusRecord struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is the persisted order aggregate.
type Order struct {
	ID             string
	Number         string
	BuyerID        string
	Items          []LineItem
	Subtotal       decimal.Decimal
	ItemDiscount   decimal.Decimal
	MemberDiscount decimal.Decimal
	ShippingFee    decimal.Decimal
	Total          decimal.Decimal
	Shipping       ShippingInfo
	PaymentMethod  PaymentMethod
	Status         Status
	History        []StatusRecord
	// Version is bumped on every persisted mutation.
	Version   int
	CreatedAt time.Time
}

// IsGuest reports whether the order was placed without an account.
func (o *Order) IsGuest() bool {
	return o.BuyerID == ""
}

// ListFilter narrows administrative listings. Zero value lists everything.
type ListFilter struct {
	Status Status
	Limit  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a guest order.
	Create(ctx context.Context, o *Order) error
	// CreateForBuyer serializes order creation per buyer: build receives the
	// buyer's prior order count and the returned order is persisted before
	// any other CreateForBuyer call for the same buyer can count.
	CreateForBuyer(ctx context.Context, buyerID string, build func(priorOrders int) (*Order, error)) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	CountByBuyer(ctx context.Context, buyerID string) (int, error)
	// Update loads the order, applies mutate and stores the result as one
	// atomic step. Nothing is written when mutate fails.
	Update(ctx context.Context, id string, mutate func(o *Order) error) (*Order, error)
	Delete(ctx context.Context, id string) error
}
