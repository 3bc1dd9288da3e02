package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/auth"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
)

// Checkouter define a interface do finalizador de pedidos
type Checkouter interface {
	Checkout(ctx context.Context, userID int64, paymentReference string) checkout.Result
}

// OrderReader lê pedidos já gravados
type OrderReader interface {
	GetForUser(ctx context.Context, userID int64, orderID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*order.Order, error)
}

// CheckoutRequest representa a requisição de checkout
type CheckoutRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

type OrderItemResponse struct {
	ProductID       int64       `json:"product_id"`
	ProductName     string      `json:"product_name"`
	Quantity        int         `json:"quantity"`
	PriceAtPurchase json.Number `json:"price_at_purchase"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	UserID           int64               `json:"user_id"`
	TotalAmount      json.Number         `json:"total_amount"`
	Status           order.Status        `json:"status"`
	PaymentReference string              `json:"payment_reference"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []OrderItemResponse `json:"items"`
}

func newOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			PriceAtPurchase: money(item.PriceAtPurchase),
		})
	}
	return OrderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		TotalAmount:      money(o.TotalAmount),
		Status:           o.Status,
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
		Items:            items,
	}
}

// OrderHandler contém os handlers HTTP de pedidos
type OrderHandler struct {
	finalizer Checkouter
	orders    OrderReader
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(finalizer Checkouter, orders OrderReader, tracer trace.Tracer, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		finalizer: finalizer,
		orders:    orders,
		tracer:    tracer,
		logger:    logger,
	}
}

// Checkout finaliza o carrinho do usuário em um pedido pago.
// Responde 201 para um pedido novo e 200 quando a referência de pagamento já tinha pedido.
func (h *OrderHandler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "orders.checkout")
	defer span.End()

	userID, _ := auth.UserID(c)
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		writeValidationError(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("payment_reference", req.PaymentReference),
	)

	switch result := h.finalizer.Checkout(ctx, userID, req.PaymentReference).(type) {
	case checkout.Success:
		span.SetAttributes(
			attribute.String("order_id", result.Order.ID),
			attribute.Bool("replayed", result.Replayed),
		)
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		c.JSON(status, newOrderResponse(result.Order))
	case checkout.Failure:
		span.SetAttributes(attribute.String("failure", string(result.Err.Kind)))
		writeCheckoutError(c, result.Err)
	}
}

// List devolve os pedidos do usuário, mais recentes primeiro
func (h *OrderHandler) List(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "orders.list")
	defer span.End()

	userID, _ := auth.UserID(c)
	orders, err := h.orders.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to list orders", zap.Error(err))
		writeInternalError(c)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

// Get devolve um pedido do usuário
func (h *OrderHandler) Get(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "orders.get")
	defer span.End()

	userID, _ := auth.UserID(c)
	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order_id", orderID))

	o, err := h.orders.GetForUser(ctx, userID, orderID)
	if errors.Is(err, order.ErrNotFound) {
		writeError(c, http.StatusNotFound, codeNotFound, "order not found", nil)
		return
	}
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to load order", zap.Error(err))
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(o))
}
