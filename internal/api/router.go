package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/auth"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/metrics"
)

// RouterConfig reúne o que o roteador precisa além dos handlers
type RouterConfig struct {
	ServiceName    string
	Logger         *zap.Logger
	Verifier       *auth.Verifier
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	AllowedOrigins []string
	// Ready is called by /health; a non-nil error reports the service as unhealthy.
	Ready func(ctx context.Context) error
}

// Handlers agrupa os handlers HTTP
type Handlers struct {
	Cart    *CartHandler
	Orders  *OrderHandler
	Payment *PaymentHandler
}

// NewRouter monta o roteador gin com middlewares e rotas
func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(recovery(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", health(cfg.ServiceName, cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	authenticated := r.Group("/", cfg.Verifier.Middleware(authError))

	cartGroup := authenticated.Group("/cart")
	cartGroup.POST("/add", h.Cart.Add)
	cartGroup.PUT("/update", h.Cart.Update)
	cartGroup.DELETE("/clear", h.Cart.Clear)
	cartGroup.GET("/", h.Cart.Get)

	orders := authenticated.Group("/orders")
	orders.POST("/checkout", h.Orders.Checkout)
	orders.GET("/", h.Orders.List)
	orders.GET("/:id", h.Orders.Get)

	payments := authenticated.Group("/payment")
	payments.POST("/create-intent", h.Payment.CreateIntent)
	payments.GET("/verify/:id", h.Payment.Verify)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// health verifica a saúde do serviço
func health(service string, ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": service,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": service,
		})
	}
}
