package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("inventory: product not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be positive")
)

// Product representa o recorte do catálogo que o checkout consome: preço e estoque
type Product struct {
	ID        int64           `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Line é uma linha de carrinho a ser reservada
type Line struct {
	ProductID int64
	Quantity  int
}

// ReservedLine é uma linha já debitada do estoque, com o preço congelado no momento da reserva
type ReservedLine struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l ReservedLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Reservation é o resultado de Ledger.Reserve
type Reservation struct {
	Lines []ReservedLine
	Total decimal.Decimal
}

// InsufficientStockError names the product whose stock could not cover the request.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFoundError names a product id that does not exist in the catalog.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}
