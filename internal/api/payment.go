package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/auth"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/cart"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

// PaymentGateway define a interface do gateway de pagamento
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	Verify(ctx context.Context, intentID string) (*payment.Intent, error)
}

type CreateIntentResponse struct {
	ClientSecret    string      `json:"client_secret"`
	PaymentIntentID string      `json:"payment_intent_id"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
}

type VerifyResponse struct {
	PaymentIntentID string         `json:"payment_intent_id"`
	Status          payment.Status `json:"status"`
	Amount          json.Number    `json:"amount"`
	Currency        string         `json:"currency"`
	Succeeded       bool           `json:"succeeded"`
}

// PaymentHandler contém os handlers HTTP de pagamento
type PaymentHandler struct {
	carts    cart.Store
	catalog  Catalog
	gateway  PaymentGateway
	currency string
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewPaymentHandler cria uma nova instância de PaymentHandler
func NewPaymentHandler(carts cart.Store, catalog Catalog, gateway PaymentGateway, currency string, tracer trace.Tracer, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		carts:    carts,
		catalog:  catalog,
		gateway:  gateway,
		currency: currency,
		tracer:   tracer,
		logger:   logger,
	}
}

// CreateIntent cria um payment intent no valor do carrinho, calculado com os preços atuais
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment.create_intent")
	defer span.End()

	userID, _ := auth.UserID(c)
	span.SetAttributes(attribute.Int64("user_id", userID))

	items, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to load cart", zap.Error(err))
		writeInternalError(c)
		return
	}

	lines, total, err := priceCart(ctx, h.catalog, items)
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to load cart products", zap.Error(err))
		writeInternalError(c)
		return
	}
	if len(lines) == 0 {
		writeCheckoutError(c, checkout.ErrEmptyCart)
		return
	}
	if len(lines) < len(items) {
		for _, id := range items.ProductIDs() {
			if !containsProduct(lines, id) {
				writeCheckoutError(c, &checkout.Error{Kind: checkout.KindUnknownProduct, ProductID: id})
				return
			}
		}
	}

	amount := payment.ToMinorUnits(total)
	span.SetAttributes(attribute.Int64("amount", amount))

	intent, err := h.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:   amount,
		Currency: h.currency,
		UserID:   userID,
	})
	if err != nil {
		span.RecordError(err)
		h.writeGatewayError(ctx, c, err)
		return
	}
	span.SetAttributes(attribute.String("payment_intent_id", intent.ID))

	c.JSON(http.StatusOK, CreateIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          money(payment.FromMinorUnits(intent.Amount)),
		Currency:        intent.Currency,
	})
}

// Verify consulta o status normalizado de um payment intent
func (h *PaymentHandler) Verify(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment.verify")
	defer span.End()

	intentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_intent_id", intentID))

	intent, err := h.gateway.Verify(ctx, intentID)
	if err != nil {
		span.RecordError(err)
		h.writeGatewayError(ctx, c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		Amount:          money(payment.FromMinorUnits(intent.Amount)),
		Currency:        intent.Currency,
		Succeeded:       intent.Succeeded(),
	})
}

func (h *PaymentHandler) writeGatewayError(ctx context.Context, c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeCheckoutError(c, checkout.ErrGatewayUnavailable)
	case errors.Is(err, payment.ErrIntentRejected), errors.Is(err, payment.ErrInvalidAmount):
		writeValidationError(c, err.Error())
	default:
		logging.FromContext(ctx, h.logger).Error("payment gateway call failed", zap.Error(err))
		writeInternalError(c)
	}
}

func containsProduct(lines []CartLine, productID int64) bool {
	for _, line := range lines {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}
