package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/cart"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/events"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/inventory"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

// memDB é um banco em memória: uma transação por vez, com cópia do estado até o commit.
// Implementa TxManager, inventory.Repository, OrderRepository e Outbox.
type memDB struct {
	txLock sync.Mutex // held for the lifetime of a transaction

	mu       sync.Mutex
	products map[int64]*inventory.Product
	orders   map[string]*order.Order
	events   []events.OutboxEvent

	beginErr     error
	beforeCreate func()
}

type memTx struct {
	db     *memDB
	stock  map[int64]int
	orders map[string]*order.Order
	events []events.OutboxEvent
	done   bool
}

func newMemDB() *memDB {
	return &memDB{
		products: make(map[int64]*inventory.Product),
		orders:   make(map[string]*order.Order),
	}
}

func (db *memDB) addProduct(id int64, price string, stock int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[id] = &inventory.Product{
		ID:    id,
		Name:  "product",
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func (db *memDB) stock(id int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[id].Stock
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *memDB) eventCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.events)
}

func (db *memDB) insertCommitted(o *order.Order) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.orders[o.PaymentReference] = o
}

func (db *memDB) BeginTx(ctx context.Context) (database.Tx, error) {
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	db.txLock.Lock()

	db.mu.Lock()
	defer db.mu.Unlock()
	tx := &memTx{db: db, stock: make(map[int64]int), orders: make(map[string]*order.Order)}
	for id, p := range db.products {
		tx.stock[id] = p.Stock
	}
	return tx, nil
}

func (db *memDB) LockUser(ctx context.Context, tx database.Tx, userID int64) error {
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return errors.New("tx closed")
	}
	tx.done = true
	defer tx.db.txLock.Unlock()

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for id, stock := range tx.stock {
		tx.db.products[id].Stock = stock
	}
	for ref, o := range tx.orders {
		tx.db.orders[ref] = o
	}
	tx.db.events = append(tx.db.events, tx.events...)
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.db.txLock.Unlock()
	return nil
}

func (db *memDB) GetProduct(ctx context.Context, productID int64) (*inventory.Product, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.products[productID]
	if !ok {
		return nil, &inventory.ProductNotFoundError{ProductID: productID}
	}
	cp := *p
	return &cp, nil
}

func (db *memDB) GetProducts(ctx context.Context, productIDs []int64) (map[int64]*inventory.Product, error) {
	out := make(map[int64]*inventory.Product)
	for _, id := range productIDs {
		if p, err := db.GetProduct(ctx, id); err == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (db *memDB) GetProductForUpdate(ctx context.Context, tx database.Tx, productID int64) (*inventory.Product, error) {
	mtx := tx.(*memTx)
	p, err := db.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	p.Stock = mtx.stock[productID]
	return p, nil
}

func (db *memDB) DecreaseStock(ctx context.Context, tx database.Tx, productID int64, quantity int) error {
	mtx := tx.(*memTx)
	if mtx.stock[productID] < quantity {
		return &inventory.InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	mtx.stock[productID] -= quantity
	return nil
}

func (db *memDB) Create(ctx context.Context, tx database.Tx, o *order.Order) error {
	if db.beforeCreate != nil {
		db.beforeCreate()
	}
	mtx := tx.(*memTx)

	db.mu.Lock()
	_, committed := db.orders[o.PaymentReference]
	db.mu.Unlock()
	if _, pending := mtx.orders[o.PaymentReference]; committed || pending {
		return order.ErrDuplicatePaymentReference
	}
	mtx.orders[o.PaymentReference] = o
	return nil
}

func (db *memDB) FindByPaymentReference(ctx context.Context, paymentReference string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o, ok := db.orders[paymentReference]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (db *memDB) FindByPaymentReferenceTx(ctx context.Context, tx database.Tx, paymentReference string) (*order.Order, error) {
	if o, ok := tx.(*memTx).orders[paymentReference]; ok {
		return o, nil
	}
	return db.FindByPaymentReference(ctx, paymentReference)
}

func (db *memDB) Enqueue(ctx context.Context, tx database.Tx, event events.OutboxEvent) error {
	mtx := tx.(*memTx)
	mtx.events = append(mtx.events, event)
	return nil
}

// memCart guarda carrinhos em memória
type memCart struct {
	mu       sync.Mutex
	carts    map[int64]cart.Cart
	getErr   error
	clearErr error
}

func newMemCart() *memCart {
	return &memCart{carts: make(map[int64]cart.Cart)}
}

func (c *memCart) put(userID, productID int64, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.carts[userID] == nil {
		c.carts[userID] = cart.Cart{}
	}
	c.carts[userID][productID] = quantity
}

func (c *memCart) GetCart(ctx context.Context, userID int64) (cart.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	out := cart.Cart{}
	for id, q := range c.carts[userID] {
		out[id] = q
	}
	return out, nil
}

func (c *memCart) Clear(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	delete(c.carts, userID)
	return nil
}

func (c *memCart) size(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.carts[userID])
}

// MockVerifier para controlar a resposta do gateway
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, intentID string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID)
	if i, ok := args.Get(0).(*payment.Intent); ok {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObserveCheckout(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func intent(id string, cents int64, status payment.Status) *payment.Intent {
	return &payment.Intent{ID: id, Status: status, GatewayStatus: string(status), Amount: cents, Currency: "usd"}
}

type harness struct {
	db        *memDB
	carts     *memCart
	payments  *MockVerifier
	metrics   *recordingMetrics
	mr        *miniredis.Miniredis
	logs      *observer.ObservedLogs
	finalizer *Finalizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.InfoLevel)
	h := &harness{
		db:       newMemDB(),
		carts:    newMemCart(),
		payments: new(MockVerifier),
		metrics:  &recordingMetrics{},
		mr:       mr,
		logs:     logs,
	}
	h.finalizer = NewFinalizer(Dependencies{
		Carts:    h.carts,
		Payments: h.payments,
		Tx:       h.db,
		Ledger:   inventory.NewLedger(h.db, nil),
		Orders:   h.db,
		Outbox:   h.db,
		Locker:   cart.NewCheckoutLock(client, 10*time.Second, 100*time.Millisecond),
		Metrics:  h.metrics,
		Logger:   zap.New(core),
	}, Options{TxTimeout: 5 * time.Second, CartClearTimeout: time.Second})
	return h
}
