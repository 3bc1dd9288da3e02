package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Config configura o Gateway
type Config struct {
	BaseURL      string
	SecretKey    string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// BreakerFailures is the number of consecutive unavailable calls that opens the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Gateway é o cliente HTTP do gateway de pagamento (API compatível com Stripe).
// Só falhas de transporte, 429 e 5xx são retentadas.
type Gateway struct {
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker[*Intent]
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type intentResponse struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewGateway cria uma nova instância de Gateway
func NewGateway(cfg Config, meter metric.Meter, logger *zap.Logger) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("payment: base url is required")
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("payment")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.SecretKey, "").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetLogger(logger.Named("payment").Sugar()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return isUnavailable(r.StatusCode())
		})

	breaker := gobreaker.NewCircuitBreaker[*Intent](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrGatewayUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	requests, err := meter.Int64Counter("payment.gateway.requests",
		metric.WithDescription("Payment gateway calls by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("payment: create counter: %w", err)
	}
	duration, err := meter.Float64Histogram("payment.gateway.duration",
		metric.WithDescription("Payment gateway call latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("payment: create histogram: %w", err)
	}

	return &Gateway{
		client:   client,
		breaker:  breaker,
		requests: requests,
		duration: duration,
	}, nil
}

// CreateIntent cria um payment intent para o valor calculado pelo servidor
func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return g.call(ctx, "create_intent", func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", uuid.NewString()).
			SetFormData(map[string]string{
				"amount":                             strconv.FormatInt(req.Amount, 10),
				"currency":                           req.Currency,
				"automatic_payment_methods[enabled]": "true",
				"metadata[user_id]":                  strconv.FormatInt(req.UserID, 10),
			}).
			SetResult(&intentResponse{}).
			SetError(&errorResponse{}).
			Post("/v1/payment_intents")
	})
}

// Verify consulta o estado atual de um payment intent
func (g *Gateway) Verify(ctx context.Context, intentID string) (*Intent, error) {
	if intentID == "" {
		return nil, fmt.Errorf("%w: empty payment intent id", ErrIntentRejected)
	}

	return g.call(ctx, "verify_intent", func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetPathParam("id", intentID).
			SetResult(&intentResponse{}).
			SetError(&errorResponse{}).
			Get("/v1/payment_intents/{id}")
	})
}

func (g *Gateway) call(ctx context.Context, operation string, do func() (*resty.Response, error)) (*Intent, error) {
	start := time.Now()

	intent, err := g.breaker.Execute(func() (*Intent, error) {
		resp, err := do()
		return decode(ctx, resp, err)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome(err)),
	)
	g.requests.Add(ctx, 1, attrs)
	g.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	return intent, err
}

func decode(ctx context.Context, resp *resty.Response, err error) (*Intent, error) {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	status := resp.StatusCode()
	switch {
	case isUnavailable(status):
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, status)
	case resp.IsError():
		msg := http.StatusText(status)
		if e, ok := resp.Error().(*errorResponse); ok && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrIntentRejected, msg)
	}

	body, ok := resp.Result().(*intentResponse)
	if !ok || body.ID == "" {
		return nil, fmt.Errorf("%w: malformed gateway response", ErrGatewayUnavailable)
	}

	return &Intent{
		ID:            body.ID,
		ClientSecret:  body.ClientSecret,
		Status:        NormalizeStatus(body.Status),
		GatewayStatus: body.Status,
		Amount:        body.Amount,
		Currency:      body.Currency,
		UserID:        metadataUserID(body.Metadata),
	}, nil
}

func metadataUserID(metadata map[string]string) int64 {
	id, err := strconv.ParseInt(metadata["user_id"], 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func isUnavailable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrGatewayUnavailable):
		return "unavailable"
	case errors.Is(err, ErrIntentRejected):
		return "rejected"
	default:
		return "error"
	}
}
