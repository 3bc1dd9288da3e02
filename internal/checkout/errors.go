package checkout

import (
	"fmt"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

// Kind classifica as falhas de checkout; o handler HTTP mapeia cada uma para um status
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindAuth                  Kind = "auth_error"
	KindEmptyCart             Kind = "empty_cart"
	KindPaymentNotCompleted   Kind = "payment_not_completed"
	KindUnknownProduct        Kind = "unknown_product"
	KindInsufficientStock     Kind = "insufficient_stock"
	KindPaymentAmountMismatch Kind = "payment_amount_mismatch"
	KindCheckoutInProgress    Kind = "checkout_in_progress"
	KindGatewayUnavailable    Kind = "gateway_unavailable"
	KindInternal              Kind = "internal_error"
)

// Sentinels for errors.Is; comparison is by Kind only.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrEmptyCart             = &Error{Kind: KindEmptyCart}
	ErrPaymentNotCompleted   = &Error{Kind: KindPaymentNotCompleted}
	ErrUnknownProduct        = &Error{Kind: KindUnknownProduct}
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrPaymentAmountMismatch = &Error{Kind: KindPaymentAmountMismatch}
	ErrCheckoutInProgress    = &Error{Kind: KindCheckoutInProgress}
	ErrGatewayUnavailable    = &Error{Kind: KindGatewayUnavailable}
	ErrInternal              = &Error{Kind: KindInternal}
)

// Error é uma falha de checkout classificada
type Error struct {
	Kind          Kind
	ProductID     int64
	PaymentStatus payment.Status
	Err           error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindEmptyCart:
		return "cart is empty, nothing to checkout"
	case KindPaymentNotCompleted:
		if e.PaymentStatus != "" {
			return fmt.Sprintf("payment not completed, status: %s", e.PaymentStatus)
		}
		return "payment verification failed"
	case KindUnknownProduct:
		return fmt.Sprintf("product %d not found", e.ProductID)
	case KindInsufficientStock:
		return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
	case KindPaymentAmountMismatch:
		return "payment amount does not match order total"
	case KindCheckoutInProgress:
		return "a checkout is already in progress for this user"
	case KindGatewayUnavailable:
		return "payment gateway unavailable, try again later"
	case KindValidation:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "invalid request"
	default:
		return "internal error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
