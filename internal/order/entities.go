package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                  = errors.New("order: not found")
	ErrDuplicatePaymentReference = errors.New("order: payment reference already used")
	ErrTotalMismatch             = errors.New("order: total does not match items")
	ErrNoItems                   = errors.New("order: no items")
)

// Status representa os possíveis status de um pedido
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Order representa um pedido no sistema
type Order struct {
	ID               string          `json:"id" db:"id"`
	UserID           int64           `json:"user_id" db:"user_id"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status           Status          `json:"status" db:"status"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	Items            []OrderItem     `json:"items"`
}

// OrderItem é uma linha do pedido com o preço congelado na compra
type OrderItem struct {
	OrderID         string          `json:"order_id" db:"order_id"`
	ProductID       int64           `json:"product_id" db:"product_id"`
	ProductName     string          `json:"product_name" db:"product_name"`
	Quantity        int             `json:"quantity" db:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase" db:"price_at_purchase"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewPaidOrder cria um pedido pago com o total calculado a partir dos itens
func NewPaidOrder(id string, userID int64, paymentReference string, items []OrderItem) *Order {
	o := &Order{
		ID:               id,
		UserID:           userID,
		Status:           StatusPaid,
		PaymentReference: paymentReference,
		CreatedAt:        time.Now().UTC(),
		Items:            make([]OrderItem, len(items)),
	}
	copy(o.Items, items)
	for i := range o.Items {
		o.Items[i].OrderID = id
	}
	o.TotalAmount = o.ItemsTotal()
	return o
}

// ItemsTotal soma quantity × price_at_purchase de todos os itens
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Validate checks the invariants every persisted order must satisfy.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order: invalid status %q", o.Status)
	}
	if o.PaymentReference == "" {
		return errors.New("order: payment reference is required")
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("order: item %d has quantity %d", item.ProductID, item.Quantity)
		}
	}
	if !o.TotalAmount.Equal(o.ItemsTotal()) {
		return fmt.Errorf("%w: total %s, items %s", ErrTotalMismatch, o.TotalAmount, o.ItemsTotal())
	}
	return nil
}
