package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
)

const TypeOrderPlaced = "order.placed"

// OutboxEvent é uma linha da tabela outbox_events
type OutboxEvent struct {
	ID          int64     `db:"id"`
	AggregateID string    `db:"aggregate_id"`
	EventType   string    `db:"event_type"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

// OrderPlaced é o payload publicado quando um checkout confirma um pedido
type OrderPlaced struct {
	OrderID          string            `json:"order_id"`
	UserID           int64             `json:"user_id"`
	TotalAmount      string            `json:"total_amount"`
	PaymentReference string            `json:"payment_reference"`
	Items            []OrderPlacedItem `json:"items"`
	PlacedAt         time.Time         `json:"placed_at"`
}

type OrderPlacedItem struct {
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

// NewOrderPlaced monta o evento de outbox para um pedido recém-criado
func NewOrderPlaced(o *order.Order) (OutboxEvent, error) {
	payload := OrderPlaced{
		OrderID:          o.ID,
		UserID:           o.UserID,
		TotalAmount:      o.TotalAmount.StringFixed(2),
		PaymentReference: o.PaymentReference,
		Items:            make([]OrderPlacedItem, 0, len(o.Items)),
		PlacedAt:         o.CreatedAt,
	}
	for _, item := range o.Items {
		payload.Items = append(payload.Items, OrderPlacedItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal order placed event: %w", err)
	}
	return OutboxEvent{
		AggregateID: o.ID,
		EventType:   TypeOrderPlaced,
		Payload:     body,
	}, nil
}
