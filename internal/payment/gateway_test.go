package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gateway, err := NewGateway(Config{
		BaseURL:         server.URL,
		SecretKey:       "sk_test_123",
		Timeout:         2 * time.Second,
		MaxRetries:      2,
		RetryWait:       time.Millisecond,
		RetryMaxWait:    5 * time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}, nil, nil)
	require.NoError(t, err)
	return gateway
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGateway_CreateIntent(t *testing.T) {
	// Arrange
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "5997", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[user_id]"))

		writeJSON(w, http.StatusOK, `{"id":"pi_123","client_secret":"pi_123_secret","status":"requires_payment_method","amount":5997,"currency":"usd"}`)
	})

	// Act
	intent, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 5997, Currency: "usd", UserID: 42})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, StatusRequiresAction, intent.Status)
	assert.Equal(t, int64(5997), intent.Amount)
}

func TestGateway_CreateIntent_RejectsNonPositiveAmount(t *testing.T) {
	var calls atomic.Int32
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "usd"})

	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Zero(t, calls.Load())
}

func TestGateway_Verify_RetriesUnavailable(t *testing.T) {
	// Arrange
	var calls atomic.Int32
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `{"error":{"message":"try again"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"pi_123","status":"succeeded","amount":1000,"currency":"usd"}`)
	})

	// Act
	intent, err := gateway.Verify(context.Background(), "pi_123")

	// Assert
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
	assert.Equal(t, int32(3), calls.Load())
}

func TestGateway_Verify_ExhaustedRetriesSurfaceUnavailable(t *testing.T) {
	var calls atomic.Int32
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `{}`)
	})

	_, err := gateway.Verify(context.Background(), "pi_123")

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "one call plus two retries")
}

func TestGateway_Verify_DefinitiveErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such payment_intent: 'pi_x'"}}`)
	})

	_, err := gateway.Verify(context.Background(), "pi_x")

	assert.ErrorIs(t, err, ErrIntentRejected)
	assert.ErrorContains(t, err, "No such payment_intent")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_Verify_DecodesMetadataUserID(t *testing.T) {
	tests := map[string]struct {
		body string
		want int64
	}{
		"present":   {`{"id":"pi_1","status":"succeeded","amount":1000,"currency":"usd","metadata":{"user_id":"42"}}`, 42},
		"absent":    {`{"id":"pi_1","status":"succeeded","amount":1000,"currency":"usd"}`, 0},
		"malformed": {`{"id":"pi_1","status":"succeeded","amount":1000,"currency":"usd","metadata":{"user_id":"abc"}}`, 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})

			intent, err := gateway.Verify(context.Background(), "pi_1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.UserID)
			assert.Equal(t, "succeeded", intent.GatewayStatus)
		})
	}
}

func TestGateway_Verify_NonSuccessStatusIsNotAnError(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"pi_123","status":"processing","amount":1000,"currency":"usd"}`)
	})

	intent, err := gateway.Verify(context.Background(), "pi_123")

	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, intent.Status)
	assert.False(t, intent.Succeeded())
}

func TestGateway_BreakerOpensAfterRepeatedUnavailability(t *testing.T) {
	var calls atomic.Int32
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gateway.Verify(ctx, "pi_123")
		require.ErrorIs(t, err, ErrGatewayUnavailable)
	}
	before := calls.Load()

	_, err := gateway.Verify(ctx, "pi_123")

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the gateway")
}

func TestGateway_Verify_EmptyID(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := gateway.Verify(context.Background(), "")

	assert.ErrorIs(t, err, ErrIntentRejected)
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"succeeded":               StatusSucceeded,
		"processing":              StatusProcessing,
		"requires_payment_method": StatusRequiresAction,
		"requires_confirmation":   StatusRequiresAction,
		"requires_action":         StatusRequiresAction,
		"requires_capture":        StatusRequiresAction,
		"canceled":                StatusFailed,
		"something_new":           StatusFailed,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5997), ToMinorUnits(decimal.RequireFromString("59.97")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, "59.97", FromMinorUnits(5997).StringFixed(2))
}
