package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
)

// Ledger é a autoridade de estoque e preço usada pelo checkout
type Ledger struct {
	repository Repository
	tracer     trace.Tracer
}

// NewLedger cria uma nova instância de Ledger
func NewLedger(repository Repository, tracer trace.Tracer) *Ledger {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("inventory")
	}
	return &Ledger{
		repository: repository,
		tracer:     tracer,
	}
}

// GetProduct devolve preço e estoque atuais de um produto
func (l *Ledger) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	return l.repository.GetProduct(ctx, productID)
}

// GetProducts devolve os produtos encontrados entre os ids pedidos
func (l *Ledger) GetProducts(ctx context.Context, productIDs []int64) (map[int64]*Product, error) {
	return l.repository.GetProducts(ctx, productIDs)
}

// Reserve validates and decrements stock for every line inside tx.
//
// Rows are locked in ascending product id order, so two reservations touching the
// same products can never deadlock, and the first offending product is the lowest id
// that fails. Nothing is written unless every line fits; on error the caller must
// roll back tx.
func (l *Ledger) Reserve(ctx context.Context, tx database.Tx, lines []Line) (*Reservation, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.reserve")
	defer span.End()
	span.SetAttributes(attribute.Int("lines", len(lines)))

	ordered, err := normalize(lines)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 1. Lock every row and check stock before touching anything
	reservation := &Reservation{
		Lines: make([]ReservedLine, 0, len(ordered)),
		Total: decimal.Zero,
	}
	for _, line := range ordered {
		product, err := l.repository.GetProductForUpdate(ctx, tx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		if product.Stock < line.Quantity {
			err := &InsufficientStockError{
				ProductID: product.ID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
			span.RecordError(err)
			return nil, err
		}

		reserved := ReservedLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		}
		reservation.Lines = append(reservation.Lines, reserved)
		reservation.Total = reservation.Total.Add(reserved.Subtotal())
	}

	// 2. Decrement
	for _, line := range reservation.Lines {
		if err := l.repository.DecreaseStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.String("total", reservation.Total.StringFixed(2)))
	return reservation, nil
}

// normalize merges duplicate products, rejects non-positive quantities and sorts by id.
func normalize(lines []Line) ([]Line, error) {
	merged := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d has quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		merged[line.ProductID] += line.Quantity
	}

	out := make([]Line, 0, len(merged))
	for productID, quantity := range merged {
		out = append(out, Line{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
