package checkout

import "github.com/vedant1711/Lumina-ecommerce-project/internal/order"

// Result is the closed outcome of a checkout: either Success or Failure.
type Result interface {
	isResult()
}

// Success carrega o pedido criado ou, quando Replayed, o pedido já existente
// para a mesma referência de pagamento.
type Success struct {
	Order    *order.Order
	Replayed bool
}

// Failure carrega a falha e a etapa em que ela ocorreu
type Failure struct {
	Err   *Error
	State State
}

func (Success) isResult() {}
func (Failure) isResult() {}
