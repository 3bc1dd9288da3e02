package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresTx implementa a interface Tx sobre uma pgx.Tx.
// Commit e Rollback usam o contexto passado a BeginTx, então o prazo da
// transação também limita o COMMIT.
type PostgresTx struct {
	tx  pgx.Tx
	ctx context.Context
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(t.ctx)
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(t.ctx)
}

// Conn devolve a pgx.Tx por trás de um Tx criado por Store.BeginTx
func Conn(tx Tx) (pgx.Tx, error) {
	pgTx, ok := tx.(*PostgresTx)
	if !ok || pgTx == nil {
		return nil, fmt.Errorf("database: unsupported transaction type %T", tx)
	}
	return pgTx.tx, nil
}

// Store abre transações e aplica locks de nível de sessão sobre o pool
type Store struct {
	pool *pgxpool.Pool
}

// NewStore cria uma nova instância de Store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BeginTx inicia uma nova transação
func (s *Store) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx, ctx: ctx}, nil
}

// LockUser takes a transaction-scoped advisory lock for the user. It is released on
// commit or rollback.
func (s *Store) LockUser(ctx context.Context, tx Tx, userID int64) error {
	pgTx, err := Conn(tx)
	if err != nil {
		return err
	}
	if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::bigint)`, userID); err != nil {
		return fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	return nil
}

// PoolConfig parâmetros do pool de conexões
type PoolConfig struct {
	URL      string
	MaxConns int32
	Attempts int
	// Migrate aplica as migrações depois que o banco responde
	Migrate bool
}

// Open espera o banco ficar disponível e só então aplica as migrações
func Open(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := NewPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Migrate {
		return pool, nil
	}

	if err := RunMigrations(cfg.URL); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database migrations applied")
	return pool, nil
}

// NewPool cria o pool de conexões e espera o banco ficar disponível
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 30
	}

	// Wait for database to be ready
	for i := 0; i < attempts; i++ {
		if err := pool.Ping(ctx); err == nil {
			logger.Info("connected to database", zap.Int32("max_conns", config.MaxConns))
			return pool, nil
		}
		logger.Info("waiting for database", zap.Int("attempt", i+1), zap.Int("max_attempts", attempts))
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts", attempts)
}
