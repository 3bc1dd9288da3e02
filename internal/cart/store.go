package cart

import (
	"context"
	"errors"
	"sort"
)

var ErrInvalidQuantity = errors.New("cart: quantity must be positive")

// Cart maps product id to desired quantity. It is never authoritative for price or stock.
type Cart map[int64]int

// ProductIDs devolve os ids do carrinho em ordem crescente
func (c Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Store is the per-user cart. Each product counter is atomic on its own; there is no
// transaction across products.
type Store interface {
	AddItem(ctx context.Context, userID, productID int64, delta int) (int, error)
	SetItem(ctx context.Context, userID, productID int64, quantity int) error
	GetCart(ctx context.Context, userID int64) (Cart, error)
	Clear(ctx context.Context, userID int64) error
}
