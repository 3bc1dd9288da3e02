package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/auth"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/cart"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/inventory"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
)

// Catalog é a leitura de preço e estoque usada pelos handlers
type Catalog interface {
	GetProduct(ctx context.Context, productID int64) (*inventory.Product, error)
	GetProducts(ctx context.Context, productIDs []int64) (map[int64]*inventory.Product, error)
}

// AddToCartRequest representa a requisição para adicionar um item
type AddToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartRequest define a quantidade de um item; zero ou negativo remove
type UpdateCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  *int  `json:"quantity" binding:"required"`
}

type CartLine struct {
	ProductID int64       `json:"product_id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	Subtotal  json.Number `json:"subtotal"`
}

type CartResponse struct {
	Items       []CartLine  `json:"items"`
	TotalAmount json.Number `json:"total_amount"`
}

// CartHandler contém os handlers HTTP do carrinho
type CartHandler struct {
	store   cart.Store
	catalog Catalog
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewCartHandler cria uma nova instância de CartHandler
func NewCartHandler(store cart.Store, catalog Catalog, tracer trace.Tracer, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		store:   store,
		catalog: catalog,
		tracer:  tracer,
		logger:  logger,
	}
}

// Add incrementa a quantidade de um produto no carrinho
func (h *CartHandler) Add(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cart.add")
	defer span.End()

	userID, _ := auth.UserID(c)
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		writeValidationError(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	if _, err := h.catalog.GetProduct(ctx, req.ProductID); err != nil {
		span.RecordError(err)
		if errors.Is(err, inventory.ErrProductNotFound) {
			writeCheckoutError(c, &checkout.Error{Kind: checkout.KindUnknownProduct, ProductID: req.ProductID})
			return
		}
		logging.FromContext(ctx, h.logger).Error("failed to load product", zap.Error(err))
		writeInternalError(c)
		return
	}

	quantity, err := h.store.AddItem(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to add cart item", zap.Error(err))
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Item added to cart",
		"quantity": quantity,
	})
}

// Update define a quantidade de um produto no carrinho
func (h *CartHandler) Update(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cart.update")
	defer span.End()

	userID, _ := auth.UserID(c)
	var req UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		writeValidationError(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("product_id", req.ProductID),
		attribute.Int("quantity", *req.Quantity),
	)

	if err := h.store.SetItem(ctx, userID, req.ProductID, *req.Quantity); err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to update cart item", zap.Error(err))
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

// Clear esvazia o carrinho
func (h *CartHandler) Clear(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cart.clear")
	defer span.End()

	userID, _ := auth.UserID(c)
	if err := h.store.Clear(ctx, userID); err != nil {
		span.RecordError(err)
		logging.FromContext(ctx, h.logger).Error("failed to clear cart", zap.Error(err))
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// Get devolve o carrinho com nome, preço atual e subtotal de cada item.
// Itens cujo produto não existe mais são omitidos.
func (h *CartHandler) Get(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cart.get")
	defer span.End()

	userID, _ := auth.UserID(c)
	items, err := h.store.GetCart(ctx, userID)
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
	span.SetAttributes(attribute.Int("lines", len(lines)))

	c.JSON(http.StatusOK, CartResponse{
		Items:       lines,
		TotalAmount: money(total),
	})
}

// priceCart looks up current prices for items in product id order. Missing products
// are skipped.
func priceCart(ctx context.Context, catalog Catalog, items cart.Cart) ([]CartLine, decimal.Decimal, error) {
	lines := make([]CartLine, 0, len(items))
	total := decimal.Zero
	if items.IsEmpty() {
		return lines, total, nil
	}

	ids := items.ProductIDs()
	products, err := catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, total, err
	}

	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			continue
		}
		quantity := items[id]
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
		total = total.Add(subtotal)
		lines = append(lines, CartLine{
			ProductID: id,
			Name:      product.Name,
			Price:     money(product.Price),
			Quantity:  quantity,
			Subtotal:  money(subtotal),
		})
	}
	return lines, total, nil
}
