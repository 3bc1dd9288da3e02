package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/cart"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/events"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/inventory"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

type CartStore interface {
	GetCart(ctx context.Context, userID int64) (cart.Cart, error)
	Clear(ctx context.Context, userID int64) error
}

type PaymentVerifier interface {
	Verify(ctx context.Context, intentID string) (*payment.Intent, error)
}

type TxManager interface {
	BeginTx(ctx context.Context) (database.Tx, error)
	LockUser(ctx context.Context, tx database.Tx, userID int64) error
}

type StockLedger interface {
	Reserve(ctx context.Context, tx database.Tx, lines []inventory.Line) (*inventory.Reservation, error)
}

type OrderRepository interface {
	Create(ctx context.Context, tx database.Tx, o *order.Order) error
	FindByPaymentReference(ctx context.Context, paymentReference string) (*order.Order, error)
	FindByPaymentReferenceTx(ctx context.Context, tx database.Tx, paymentReference string) (*order.Order, error)
}

type Outbox interface {
	Enqueue(ctx context.Context, tx database.Tx, event events.OutboxEvent) error
}

// UserLocker serializa checkouts do mesmo usuário
type UserLocker interface {
	Acquire(ctx context.Context, userID int64) (func(context.Context) error, error)
}

// Metrics recebe o desfecho de cada checkout
type Metrics interface {
	ObserveCheckout(outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCheckout(string, time.Duration) {}

// Dependencies agrupa os colaboradores do Finalizer
type Dependencies struct {
	Carts    CartStore
	Payments PaymentVerifier
	Tx       TxManager
	Ledger   StockLedger
	Orders   OrderRepository
	Outbox   Outbox
	Locker   UserLocker
	Metrics  Metrics
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Options controla os tempos limite do checkout
type Options struct {
	// TxTimeout bounds the stock/order transaction, which runs detached from the caller's
	// cancellation.
	TxTimeout time.Duration
	// CartClearTimeout bounds the best-effort cart clear after commit.
	CartClearTimeout time.Duration
	// Currency is the store currency; intents in any other currency never pay for an order.
	Currency string
}

// Finalizer turns a user's cart plus a verified payment into a committed order.
type Finalizer struct {
	carts    CartStore
	payments PaymentVerifier
	tx       TxManager
	ledger   StockLedger
	orders   OrderRepository
	outbox   Outbox
	locker   UserLocker
	metrics  Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
	opts     Options
	newID    func() string
}

// NewFinalizer cria uma nova instância de Finalizer
func NewFinalizer(deps Dependencies, opts Options) *Finalizer {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("checkout")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 15 * time.Second
	}
	if opts.CartClearTimeout <= 0 {
		opts.CartClearTimeout = 2 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}

	return &Finalizer{
		carts:    deps.Carts,
		payments: deps.Payments,
		tx:       deps.Tx,
		ledger:   deps.Ledger,
		orders:   deps.Orders,
		outbox:   deps.Outbox,
		locker:   deps.Locker,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		opts:     opts,
		newID:    uuid.NewString,
	}
}

// attempt acompanha uma execução do checkout
type attempt struct {
	userID           int64
	paymentReference string
	state            State
	span             trace.Span
	logger           *zap.Logger
}

func (a *attempt) advance(next State) {
	if !a.state.CanTransitionTo(next) {
		a.logger.Error("invalid checkout transition",
			zap.String("from", string(a.state)),
			zap.String("to", string(next)),
		)
	}
	a.span.AddEvent("checkout.transition", trace.WithAttributes(
		attribute.String("from", string(a.state)),
		attribute.String("to", string(next)),
	))
	a.logger.Debug("checkout transition", zap.String("from", string(a.state)), zap.String("to", string(next)))
	a.state = next
}

func (a *attempt) fail(err *Error) Result {
	failed := Failure{Err: err, State: a.state}
	a.advance(StateFailed)
	return failed
}

func (a *attempt) succeed(o *order.Order, replayed bool) Result {
	return Success{Order: o, Replayed: replayed}
}

// Checkout runs the checkout state machine for userID, using paymentReference as both the
// payment intent id and the idempotency key.
func (f *Finalizer) Checkout(ctx context.Context, userID int64, paymentReference string) Result {
	ctx, span := f.tracer.Start(ctx, "checkout.finalize")
	defer span.End()

	paymentReference = strings.TrimSpace(paymentReference)
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("payment_reference", paymentReference),
	)

	logger := logging.FromContext(ctx, f.logger).With(
		zap.Int64("user_id", userID),
		zap.String("payment_reference", paymentReference),
	)
	run := &attempt{
		userID:           userID,
		paymentReference: paymentReference,
		state:            StateInit,
		span:             span,
		logger:           logger,
	}

	start := time.Now()
	result := f.run(ctx, run)
	elapsed := time.Since(start)

	outcome := "success"
	switch r := result.(type) {
	case Success:
		if r.Replayed {
			outcome = "replayed"
		}
		span.SetAttributes(attribute.String("order_id", r.Order.ID))
		run.logger.Info("checkout_done",
			zap.String("outcome", outcome),
			zap.String("order_id", r.Order.ID),
			zap.String("state", string(run.state)),
			zap.Duration("duration", elapsed),
		)
	case Failure:
		outcome = string(r.Err.Kind)
		span.SetStatus(codes.Error, r.Err.Error())
		if r.Err.Err != nil {
			span.RecordError(r.Err.Err)
		}
		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.String("failed_at", string(r.State)),
			zap.Duration("duration", elapsed),
		}
		if r.Err.ProductID != 0 {
			fields = append(fields, zap.Int64("product_id", r.Err.ProductID))
		}
		if r.Err.Err != nil {
			fields = append(fields, zap.Error(r.Err.Err))
		}
		if r.Err.Kind == KindInternal {
			run.logger.Error("checkout_done", fields...)
		} else {
			run.logger.Info("checkout_done", fields...)
		}
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	f.metrics.ObserveCheckout(outcome, elapsed)

	return result
}

func (f *Finalizer) run(ctx context.Context, run *attempt) Result {
	if run.paymentReference == "" {
		return run.fail(newError(KindValidation, errors.New("payment_reference is required")))
	}

	release, err := f.locker.Acquire(ctx, run.userID)
	if errors.Is(err, cart.ErrCheckoutInProgress) {
		return run.fail(newError(KindCheckoutInProgress, err))
	}
	if err != nil {
		return run.fail(newError(KindInternal, fmt.Errorf("acquire checkout lock: %w", err)))
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.CartClearTimeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			run.logger.Warn("failed to release checkout lock", zap.Error(err))
		}
	}()

	// 1. INIT -> CART_LOADED
	items, err := f.carts.GetCart(ctx, run.userID)
	if err != nil {
		return run.fail(newError(KindInternal, fmt.Errorf("load cart: %w", err)))
	}
	run.advance(StateCartLoaded)
	run.span.SetAttributes(attribute.Int("cart_lines", len(items)))

	// 2. Idempotency check comes before the empty-cart check: a retry after a successful
	// commit finds the cart already cleared.
	existing, err := f.orders.FindByPaymentReference(ctx, run.paymentReference)
	switch {
	case err == nil:
		return f.replay(run, existing)
	case !errors.Is(err, order.ErrNotFound):
		return run.fail(newError(KindInternal, fmt.Errorf("idempotency lookup: %w", err)))
	}

	if items.IsEmpty() {
		return run.fail(ErrEmptyCart)
	}

	intent, err := f.payments.Verify(ctx, run.paymentReference)
	switch {
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return run.fail(newError(KindGatewayUnavailable, err))
	case errors.Is(err, payment.ErrIntentRejected):
		return run.fail(newError(KindPaymentNotCompleted, err))
	case err != nil:
		return run.fail(newError(KindInternal, fmt.Errorf("verify payment: %w", err)))
	}
	run.logger = run.logger.With(zap.String("gateway_status", intent.GatewayStatus))
	if !intent.Succeeded() {
		return run.fail(&Error{Kind: KindPaymentNotCompleted, PaymentStatus: intent.Status})
	}
	// Intents created by the store carry the buyer in metadata.
	if intent.UserID != 0 && intent.UserID != run.userID {
		return run.fail(newError(KindPaymentNotCompleted,
			fmt.Errorf("payment intent belongs to user %d", intent.UserID)))
	}
	run.advance(StatePaymentVerified)

	// 3 + 4. STOCK_RESERVED and ORDER_COMMITTED in one transaction
	o, replayed, failure := f.commit(ctx, run, items, intent)
	if failure != nil {
		return run.fail(failure)
	}
	if replayed {
		return f.replay(run, o)
	}

	// 5. ORDER_COMMITTED -> CART_CLEARED, best effort
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.CartClearTimeout)
	defer cancel()
	if err := f.carts.Clear(clearCtx, run.userID); err != nil {
		run.logger.Warn("failed to clear cart after checkout", zap.String("order_id", o.ID), zap.Error(err))
		return run.succeed(o, false)
	}
	run.advance(StateCartCleared)

	return run.succeed(o, false)
}

func (f *Finalizer) replay(run *attempt, existing *order.Order) Result {
	if existing.UserID != run.userID {
		return run.fail(newError(KindValidation, errors.New("payment_reference is already attached to another order")))
	}
	run.advance(StateOrderCommitted)
	return run.succeed(existing, true)
}

// commit runs reservation and order creation in one transaction. The transaction ignores
// caller cancellation and either commits or rolls back within TxTimeout.
func (f *Finalizer) commit(ctx context.Context, run *attempt, items cart.Cart, intent *payment.Intent) (*order.Order, bool, *Error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.TxTimeout)
	defer cancel()

	tx, err := f.tx.BeginTx(txCtx)
	if err != nil {
		return nil, false, newError(KindInternal, err)
	}
	defer tx.Rollback()

	if err := f.tx.LockUser(txCtx, tx, run.userID); err != nil {
		return nil, false, newError(KindInternal, err)
	}

	existing, err := f.orders.FindByPaymentReferenceTx(txCtx, tx, run.paymentReference)
	switch {
	case err == nil:
		return existing, true, nil
	case !errors.Is(err, order.ErrNotFound):
		return nil, false, newError(KindInternal, fmt.Errorf("idempotency lookup in tx: %w", err))
	}

	lines := make([]inventory.Line, 0, len(items))
	for _, productID := range items.ProductIDs() {
		lines = append(lines, inventory.Line{ProductID: productID, Quantity: items[productID]})
	}

	reservation, err := f.ledger.Reserve(txCtx, tx, lines)
	if err != nil {
		var (
			stockErr   *inventory.InsufficientStockError
			missingErr *inventory.ProductNotFoundError
		)
		switch {
		case errors.As(err, &stockErr):
			return nil, false, &Error{Kind: KindInsufficientStock, ProductID: stockErr.ProductID, Err: err}
		case errors.As(err, &missingErr):
			return nil, false, &Error{Kind: KindUnknownProduct, ProductID: missingErr.ProductID, Err: err}
		default:
			return nil, false, newError(KindInternal, fmt.Errorf("reserve stock: %w", err))
		}
	}
	run.advance(StateStockReserved)

	total := payment.ToMinorUnits(reservation.Total)
	if total != intent.Amount || !strings.EqualFold(intent.Currency, f.opts.Currency) {
		return nil, false, newError(KindPaymentAmountMismatch,
			fmt.Errorf("intent %d %s, order total %d %s", intent.Amount, intent.Currency, total, f.opts.Currency))
	}

	orderItems := make([]order.OrderItem, 0, len(reservation.Lines))
	for _, line := range reservation.Lines {
		orderItems = append(orderItems, order.OrderItem{
			ProductID:       line.ProductID,
			ProductName:     line.Name,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.UnitPrice,
		})
	}
	o := order.NewPaidOrder(f.newID(), run.userID, run.paymentReference, orderItems)

	if err := f.orders.Create(txCtx, tx, o); err != nil {
		if errors.Is(err, order.ErrDuplicatePaymentReference) {
			// Another request committed this payment reference first.
			_ = tx.Rollback()
			existing, lookupErr := f.orders.FindByPaymentReference(txCtx, run.paymentReference)
			if lookupErr != nil {
				return nil, false, newError(KindInternal, fmt.Errorf("load concurrent order: %w", lookupErr))
			}
			return existing, true, nil
		}
		return nil, false, newError(KindInternal, fmt.Errorf("create order: %w", err))
	}

	event, err := events.NewOrderPlaced(o)
	if err != nil {
		return nil, false, newError(KindInternal, err)
	}
	if err := f.outbox.Enqueue(txCtx, tx, event); err != nil {
		return nil, false, newError(KindInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, newError(KindInternal, fmt.Errorf("commit checkout: %w", err))
	}
	run.advance(StateOrderCommitted)

	return o, false, nil
}
