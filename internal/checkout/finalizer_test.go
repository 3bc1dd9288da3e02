package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

func requireSuccess(t *testing.T, result Result) Success {
	t.Helper()
	success, ok := result.(Success)
	require.Truef(t, ok, "expected Success, got %#v", result)
	return success
}

func requireFailure(t *testing.T, result Result, kind Kind) Failure {
	t.Helper()
	failure, ok := result.(Failure)
	require.Truef(t, ok, "expected Failure, got %#v", result)
	require.Equal(t, kind, failure.Err.Kind)
	return failure
}

func TestCheckout_CreatesOrderAndClearsCart(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.db.addProduct(1, "19.99", 5)
	h.carts.put(42, 1, 3)
	h.payments.On("Verify", mock.Anything, "pi_a").Return(intent("pi_a", 5997, payment.StatusSucceeded), nil)

	// Act
	result := h.finalizer.Checkout(context.Background(), 42, "pi_a")

	// Assert
	success := requireSuccess(t, result)
	assert.False(t, success.Replayed)
	assert.Equal(t, "59.97", success.Order.TotalAmount.StringFixed(2))
	assert.Equal(t, order.StatusPaid, success.Order.Status)
	assert.Equal(t, "pi_a", success.Order.PaymentReference)
	require.Len(t, success.Order.Items, 1)
	assert.Equal(t, 3, success.Order.Items[0].Quantity)
	assert.Equal(t, "19.99", success.Order.Items[0].PriceAtPurchase.StringFixed(2))
	assert.Equal(t, 2, h.db.stock(1))
	assert.Equal(t, 0, h.carts.size(42))
	assert.Equal(t, 1, h.db.eventCount())
	assert.Equal(t, []string{"success"}, h.metrics.outcomes)
	h.payments.AssertExpectations(t)
}

func TestCheckout_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 2)
	h.carts.put(42, 1, 3)
	h.payments.On("Verify", mock.Anything, "pi_b").Return(intent("pi_b", 3000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_b")

	failure := requireFailure(t, result, KindInsufficientStock)
	assert.Equal(t, int64(1), failure.Err.ProductID)
	assert.Equal(t, StatePaymentVerified, failure.State)
	assert.True(t, errors.Is(failure.Err, ErrInsufficientStock))
	assert.Equal(t, 2, h.db.stock(1))
	assert.Equal(t, 0, h.db.orderCount())
	assert.Equal(t, 0, h.db.eventCount())
	assert.Equal(t, 1, h.carts.size(42))
}

func TestCheckout_FirstOffenderIsLowestProductID(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "1.00", 10)
	h.db.addProduct(5, "1.00", 0)
	h.db.addProduct(9, "1.00", 0)
	h.carts.put(42, 9, 1)
	h.carts.put(42, 5, 1)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_x").Return(intent("pi_x", 300, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_x")

	failure := requireFailure(t, result, KindInsufficientStock)
	assert.Equal(t, int64(5), failure.Err.ProductID)
	assert.Equal(t, 10, h.db.stock(1))
}

func TestCheckout_PaymentNotCompleted(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_c").Return(intent("pi_c", 1000, payment.StatusProcessing), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_c")

	failure := requireFailure(t, result, KindPaymentNotCompleted)
	assert.Equal(t, payment.StatusProcessing, failure.Err.PaymentStatus)
	assert.Equal(t, StateCartLoaded, failure.State)
	assert.Contains(t, failure.Err.Error(), "processing")
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 0, h.db.orderCount())
	assert.Equal(t, 1, h.carts.size(42))
}

func TestCheckout_RejectedIntentIsNotCompleted(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_bad").Return(nil, fmt.Errorf("%w: no such intent", payment.ErrIntentRejected))

	result := h.finalizer.Checkout(context.Background(), 42, "pi_bad")

	requireFailure(t, result, KindPaymentNotCompleted)
}

func TestCheckout_ConcurrentUsersCompeteForLastUnit(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 1)
	h.carts.put(1, 1, 1)
	h.carts.put(2, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_u1").Return(intent("pi_u1", 1000, payment.StatusSucceeded), nil)
	h.payments.On("Verify", mock.Anything, "pi_u2").Return(intent("pi_u2", 1000, payment.StatusSucceeded), nil)

	// Act
	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := int64(i + 1)
			results[i] = h.finalizer.Checkout(context.Background(), userID, fmt.Sprintf("pi_u%d", userID))
		}(i)
	}
	wg.Wait()

	// Assert
	var successes, insufficient int
	for _, r := range results {
		switch r := r.(type) {
		case Success:
			successes++
		case Failure:
			if r.Err.Kind == KindInsufficientStock {
				insufficient++
			}
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, h.db.stock(1))
	assert.Equal(t, 1, h.db.orderCount())
}

func TestCheckout_ManyConcurrentBuyersNeverOversell(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 10)
	h.payments.On("Verify", mock.Anything, mock.Anything).Return(intent("pi", 1000, payment.StatusSucceeded), nil)

	const buyers = 15
	for u := int64(1); u <= buyers; u++ {
		h.carts.put(u, 1, 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for u := int64(1); u <= buyers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			result := h.finalizer.Checkout(context.Background(), userID, fmt.Sprintf("pi_%d", userID))
			if _, ok := result.(Success); ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	assert.Equal(t, 0, h.db.stock(1))
	assert.Equal(t, 10, h.db.orderCount())
}

func TestCheckout_ReplayReturnsExistingOrder(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 2)
	h.payments.On("Verify", mock.Anything, "pi_r").Return(intent("pi_r", 2000, payment.StatusSucceeded), nil).Once()

	first := requireSuccess(t, h.finalizer.Checkout(context.Background(), 42, "pi_r"))

	// Cart is empty now, exactly as a client retry would see it.
	result := h.finalizer.Checkout(context.Background(), 42, "pi_r")

	// Assert
	second := requireSuccess(t, result)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, h.db.stock(1))
	assert.Equal(t, 1, h.db.orderCount())
	assert.Equal(t, []string{"success", "replayed"}, h.metrics.outcomes)
	h.payments.AssertNumberOfCalls(t, "Verify", 1)
}

func TestCheckout_ReplayWithItemsStillInCart(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	existing := order.NewPaidOrder("order-1", 42, "pi_r", []order.OrderItem{
		{ProductID: 1, ProductName: "product", Quantity: 1, PriceAtPurchase: h.db.products[1].Price},
	})
	h.db.insertCommitted(existing)
	h.carts.put(42, 1, 4)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_r")

	success := requireSuccess(t, result)
	assert.True(t, success.Replayed)
	assert.Equal(t, "order-1", success.Order.ID)
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 1, h.carts.size(42))
	h.payments.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestCheckout_ReplayOfAnotherUsersReference(t *testing.T) {
	h := newHarness(t)
	h.db.insertCommitted(order.NewPaidOrder("order-1", 7, "pi_r", nil))
	h.carts.put(42, 1, 1)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_r")

	failure := requireFailure(t, result, KindValidation)
	assert.Equal(t, StateCartLoaded, failure.State)
}

func TestCheckout_EmptyCart(t *testing.T) {
	h := newHarness(t)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_e")

	failure := requireFailure(t, result, KindEmptyCart)
	assert.Equal(t, StateCartLoaded, failure.State)
	h.payments.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestCheckout_BlankPaymentReference(t *testing.T) {
	h := newHarness(t)
	h.carts.put(42, 1, 1)

	result := h.finalizer.Checkout(context.Background(), 42, "   ")

	failure := requireFailure(t, result, KindValidation)
	assert.Equal(t, StateInit, failure.State)
}

func TestCheckout_GatewayUnavailable(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_g").Return(nil, fmt.Errorf("%w: 503", payment.ErrGatewayUnavailable))

	result := h.finalizer.Checkout(context.Background(), 42, "pi_g")

	requireFailure(t, result, KindGatewayUnavailable)
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 1, h.carts.size(42))
}

func TestCheckout_AmountMismatchRollsBack(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 3)
	h.payments.On("Verify", mock.Anything, "pi_m").Return(intent("pi_m", 1000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_m")

	failure := requireFailure(t, result, KindPaymentAmountMismatch)
	assert.Equal(t, StateStockReserved, failure.State)
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 0, h.db.orderCount())
}

func TestCheckout_CurrencyMismatchRollsBack(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	paid := intent("pi_jpy", 1000, payment.StatusSucceeded)
	paid.Currency = "jpy"
	h.payments.On("Verify", mock.Anything, "pi_jpy").Return(paid, nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_jpy")

	failure := requireFailure(t, result, KindPaymentAmountMismatch)
	assert.Equal(t, StateStockReserved, failure.State)
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 0, h.db.orderCount())
	assert.Equal(t, 1, h.carts.size(42))
}

func TestCheckout_CurrencyIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	paid := intent("pi_usd", 1000, payment.StatusSucceeded)
	paid.Currency = "USD"
	h.payments.On("Verify", mock.Anything, "pi_usd").Return(paid, nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_usd")

	requireSuccess(t, result)
	assert.Equal(t, 4, h.db.stock(1))
}

func TestCheckout_IntentOwnedByAnotherUser(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	paid := intent("pi_other", 1000, payment.StatusSucceeded)
	paid.UserID = 7
	h.payments.On("Verify", mock.Anything, "pi_other").Return(paid, nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_other")

	failure := requireFailure(t, result, KindPaymentNotCompleted)
	assert.Equal(t, StateCartLoaded, failure.State)
	assert.Equal(t, "payment verification failed", failure.Err.Error())
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 0, h.db.orderCount())
}

func TestCheckout_IntentOwnedByBuyer(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	paid := intent("pi_own", 1000, payment.StatusSucceeded)
	paid.UserID = 42
	h.payments.On("Verify", mock.Anything, "pi_own").Return(paid, nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_own")

	requireSuccess(t, result)
}

func TestCheckout_LogsGatewayStatus(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	pending := intent("pi_p", 1000, payment.StatusRequiresAction)
	pending.GatewayStatus = "requires_payment_method"
	h.payments.On("Verify", mock.Anything, "pi_p").Return(pending, nil)

	requireFailure(t, h.finalizer.Checkout(context.Background(), 42, "pi_p"), KindPaymentNotCompleted)

	done := h.logs.FilterMessage("checkout_done").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "requires_payment_method", fields["gateway_status"])
	assert.Equal(t, string(KindPaymentNotCompleted), fields["outcome"])
}

func TestCheckout_UnknownProduct(t *testing.T) {
	h := newHarness(t)
	h.carts.put(42, 99, 1)
	h.payments.On("Verify", mock.Anything, "pi_u").Return(intent("pi_u", 1000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_u")

	failure := requireFailure(t, result, KindUnknownProduct)
	assert.Equal(t, int64(99), failure.Err.ProductID)
}

func TestCheckout_CartClearFailureStillSucceeds(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.carts.clearErr = errors.New("redis down")
	h.payments.On("Verify", mock.Anything, "pi_k").Return(intent("pi_k", 1000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_k")

	success := requireSuccess(t, result)
	assert.False(t, success.Replayed)
	assert.Equal(t, 4, h.db.stock(1))
	assert.Equal(t, 1, h.carts.size(42))
}

func TestCheckout_CartLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.carts.getErr = errors.New("redis down")

	result := h.finalizer.Checkout(context.Background(), 42, "pi_l")

	failure := requireFailure(t, result, KindInternal)
	assert.Equal(t, StateInit, failure.State)
}

func TestCheckout_LockHeldByAnotherCheckout(t *testing.T) {
	h := newHarness(t)
	h.carts.put(42, 1, 1)
	require.NoError(t, h.mr.Set("checkout:lock:42", "someone-else"))

	result := h.finalizer.Checkout(context.Background(), 42, "pi_l")

	requireFailure(t, result, KindCheckoutInProgress)
	h.payments.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestCheckout_ReleasesLockAfterwards(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_a").Return(intent("pi_a", 1000, payment.StatusSucceeded), nil)

	requireSuccess(t, h.finalizer.Checkout(context.Background(), 42, "pi_a"))

	assert.False(t, h.mr.Exists("checkout:lock:42"))
}

func TestCheckout_CallerCancellationDoesNotAbortCommit(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.payments.On("Verify", mock.Anything, "pi_cancel").
		Run(func(mock.Arguments) { cancel() }).
		Return(intent("pi_cancel", 1000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(ctx, 42, "pi_cancel")

	requireSuccess(t, result)
	assert.Equal(t, 4, h.db.stock(1))
	assert.Equal(t, 1, h.db.orderCount())
}

func TestCheckout_ConcurrentDuplicateInsertReplays(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_d").Return(intent("pi_d", 1000, payment.StatusSucceeded), nil)
	winner := order.NewPaidOrder("winner", 42, "pi_d", nil)
	h.db.beforeCreate = func() {
		h.db.beforeCreate = nil
		h.db.insertCommitted(winner)
	}

	// Act
	result := h.finalizer.Checkout(context.Background(), 42, "pi_d")

	// Assert
	success := requireSuccess(t, result)
	assert.True(t, success.Replayed)
	assert.Equal(t, "winner", success.Order.ID)
	assert.Equal(t, 5, h.db.stock(1))
	assert.Equal(t, 1, h.db.orderCount())
}

func TestCheckout_BeginFailure(t *testing.T) {
	h := newHarness(t)
	h.db.addProduct(1, "10.00", 5)
	h.db.beginErr = errors.New("pool exhausted")
	h.carts.put(42, 1, 1)
	h.payments.On("Verify", mock.Anything, "pi_t").Return(intent("pi_t", 1000, payment.StatusSucceeded), nil)

	result := h.finalizer.Checkout(context.Background(), 42, "pi_t")

	failure := requireFailure(t, result, KindInternal)
	assert.Equal(t, StatePaymentVerified, failure.State)
	assert.Equal(t, 1, h.carts.size(42))
}
