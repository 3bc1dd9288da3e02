package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
)

// codeNotFound is only produced by read endpoints; checkout never fails with it.
const codeNotFound = "not_found"

// ErrorResponse é o corpo de toda resposta de erro
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind checkout.Kind) int {
	switch kind {
	case checkout.KindValidation, checkout.KindEmptyCart, checkout.KindPaymentNotCompleted, checkout.KindUnknownProduct:
		return http.StatusBadRequest
	case checkout.KindAuth:
		return http.StatusUnauthorized
	case checkout.KindInsufficientStock, checkout.KindPaymentAmountMismatch, checkout.KindCheckoutInProgress:
		return http.StatusConflict
	case checkout.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeCheckoutError maps a classified error to its HTTP response. Internal causes are
// logged by the caller and never echoed to the client.
func writeCheckoutError(c *gin.Context, err *checkout.Error) {
	var details map[string]any
	switch {
	case err.ProductID != 0:
		details = map[string]any{"product_id": err.ProductID}
	case err.PaymentStatus != "":
		details = map[string]any{"payment_status": err.PaymentStatus}
	}
	writeError(c, statusFor(err.Kind), string(err.Kind), err.Error(), details)
}

func writeValidationError(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, string(checkout.KindValidation), message, nil)
}

func writeInternalError(c *gin.Context) {
	writeError(c, http.StatusInternalServerError, string(checkout.KindInternal), "internal error", nil)
}

// money renders an amount as a JSON number with exactly two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
