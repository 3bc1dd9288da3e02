package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
)

const (
	uniqueViolation            = "23505"
	paymentReferenceConstraint = "orders_payment_reference_key"
)

// Repository define a interface para operações de banco de dados de pedidos
type Repository interface {
	Create(ctx context.Context, tx database.Tx, order *Order) error
	FindByPaymentReference(ctx context.Context, paymentReference string) (*Order, error)
	FindByPaymentReferenceTx(ctx context.Context, tx database.Tx, paymentReference string) (*Order, error)
	GetForUser(ctx context.Context, userID int64, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
}

// querier é satisfeito tanto por *pgxpool.Pool quanto por pgx.Tx
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository cria uma nova instância de PostgresRepository
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create insere o pedido e seus itens dentro da transação
func (r *PostgresRepository) Create(ctx context.Context, tx database.Tx, order *Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	pgTx, err := database.Conn(tx)
	if err != nil {
		return err
	}

	insertOrder := `
		INSERT INTO orders (id, user_id, total_amount, status, payment_reference, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
	`
	_, err = pgTx.Exec(ctx, insertOrder,
		order.ID,
		order.UserID,
		order.TotalAmount.String(),
		string(order.Status),
		order.PaymentReference,
		order.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == paymentReferenceConstraint {
			return ErrDuplicatePaymentReference
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5::numeric)
	`
	for _, item := range order.Items {
		_, err := pgTx.Exec(ctx, insertItem,
			order.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.PriceAtPurchase.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// FindByPaymentReference busca o pedido já criado para uma referência de pagamento
func (r *PostgresRepository) FindByPaymentReference(ctx context.Context, paymentReference string) (*Order, error) {
	return findOne(ctx, r.db, `WHERE payment_reference = $1`, paymentReference)
}

// FindByPaymentReferenceTx é FindByPaymentReference dentro de uma transação
func (r *PostgresRepository) FindByPaymentReferenceTx(ctx context.Context, tx database.Tx, paymentReference string) (*Order, error) {
	pgTx, err := database.Conn(tx)
	if err != nil {
		return nil, err
	}
	return findOne(ctx, pgTx, `WHERE payment_reference = $1`, paymentReference)
}

// GetForUser busca um pedido do usuário; pedidos de outros usuários retornam ErrNotFound
func (r *PostgresRepository) GetForUser(ctx context.Context, userID int64, orderID string) (*Order, error) {
	return findOne(ctx, r.db, `WHERE id::text = $1 AND user_id = $2`, orderID, userID)
}

// ListByUser lista os pedidos do usuário, do mais recente para o mais antigo
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	orders, err := queryOrders(ctx, r.db, `WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func findOne(ctx context.Context, q querier, where string, args ...any) (*Order, error) {
	orders, err := queryOrders(ctx, q, where, args...)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	if err := loadItems(ctx, q, orders[:1]); err != nil {
		return nil, err
	}
	return orders[0], nil
}

func queryOrders(ctx context.Context, q querier, where string, args ...any) ([]*Order, error) {
	query := `
		SELECT id::text, user_id, total_amount, status, payment_reference, created_at
		FROM orders ` + where

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		var (
			o     Order
			total pgtype.Numeric
			st    string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &total, &st, &o.PaymentReference, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if o.TotalAmount, err = database.Decimal(total); err != nil {
			return nil, err
		}
		o.Status = Status(st)
		o.Items = []OrderItem{}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

func loadItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT order_id::text, product_id, product_name, quantity, price_at_purchase
		FROM order_items
		WHERE order_id::text = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  OrderItem
			price pgtype.Numeric
		)
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if item.PriceAtPurchase, err = database.Decimal(price); err != nil {
			return err
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate order items: %w", err)
	}
	return nil
}
