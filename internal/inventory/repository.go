package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
)

// Repository define a interface para operações de banco de dados de inventário
type Repository interface {
	GetProduct(ctx context.Context, productID int64) (*Product, error)
	GetProducts(ctx context.Context, productIDs []int64) (map[int64]*Product, error)
	GetProductForUpdate(ctx context.Context, tx database.Tx, productID int64) (*Product, error)
	DecreaseStock(ctx context.Context, tx database.Tx, productID int64, quantity int) error
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository cria uma nova instância de PostgresRepository
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const productColumns = `id, name, price, stock, version, created_at, updated_at`

// GetProduct busca um produto sem lock
func (r *PostgresRepository) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", productID, err)
	}
	return product, nil
}

// GetProducts busca vários produtos de uma vez; ids inexistentes ficam fora do mapa
func (r *PostgresRepository) GetProducts(ctx context.Context, productIDs []int64) (map[int64]*Product, error) {
	products := make(map[int64]*Product, len(productIDs))
	if len(productIDs) == 0 {
		return products, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// GetProductForUpdate obtém o produto com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetProductForUpdate(ctx context.Context, tx database.Tx, productID int64) (*Product, error) {
	pgTx, err := database.Conn(tx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
		FOR UPDATE
	`

	product, err := scanProduct(pgTx.QueryRow(ctx, query, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}
	return product, nil
}

// DecreaseStock diminui o estoque de um produto já travado pela transação
func (r *PostgresRepository) DecreaseStock(ctx context.Context, tx database.Tx, productID int64, quantity int) error {
	pgTx, err := database.Conn(tx)
	if err != nil {
		return err
	}

	// The stock guard keeps the row consistent even if a caller skipped the lock.
	updateQuery := `
		UPDATE products
		SET stock = stock - $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`

	tag, err := pgTx.Exec(ctx, updateQuery, quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrease stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		product Product
		price   pgtype.Numeric
	)
	err := row.Scan(
		&product.ID,
		&product.Name,
		&price,
		&product.Stock,
		&product.Version,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if product.Price, err = database.Decimal(price); err != nil {
		return nil, err
	}
	return &product, nil
}
