package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config reúne toda a configuração do serviço, lida de variáveis de ambiente
type Config struct {
	Port        string
	Env         string
	ServiceName string

	DatabaseURL   string
	DBMaxConns    int32
	RunMigrations bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	JWTSecret string

	Payment PaymentConfig

	CheckoutTxTimeout time.Duration
	CheckoutLockTTL   time.Duration
	CheckoutLockWait  time.Duration
	CartClearTimeout  time.Duration

	OTelEnabled  bool
	OTelEndpoint string

	KafkaBrokers       []string
	KafkaOrderTopic    string
	OutboxPollInterval time.Duration

	CORSAllowedOrigins []string
}

// PaymentConfig configura o cliente do gateway de pagamento
type PaymentConfig struct {
	BaseURL      string
	SecretKey    string
	Currency     string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// Load lê o arquivo .env (se existir) e monta a configuração a partir do ambiente
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		ServiceName: getEnv("SERVICE_NAME", "storefront"),

		DatabaseURL:   getEnv("DATABASE_URL", databaseURLFromParts()),
		DBMaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CartTTL:       getEnvDuration("CART_TTL", 0),

		JWTSecret: getEnv("JWT_SECRET", ""),

		Payment: PaymentConfig{
			BaseURL:      getEnv("PAYMENT_GATEWAY_URL", "https://api.stripe.com"),
			SecretKey:    getEnv("PAYMENT_SECRET_KEY", ""),
			Currency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			Timeout:      getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second),
			MaxRetries:   getEnvInt("PAYMENT_MAX_RETRIES", 3),
			RetryWait:    getEnvDuration("PAYMENT_RETRY_WAIT", 200*time.Millisecond),
			RetryMaxWait: getEnvDuration("PAYMENT_RETRY_MAX_WAIT", 2*time.Second),
		},

		CheckoutTxTimeout: getEnvDuration("CHECKOUT_TX_TIMEOUT", 15*time.Second),
		CheckoutLockTTL:   getEnvDuration("CHECKOUT_LOCK_TTL", 60*time.Second),
		CheckoutLockWait:  getEnvDuration("CHECKOUT_LOCK_WAIT", 5*time.Second),
		CartClearTimeout:  getEnvDuration("CART_CLEAR_TIMEOUT", 2*time.Second),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", true),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaOrderTopic:    getEnv("KAFKA_ORDER_TOPIC", "orders.placed"),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica os campos obrigatórios
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Payment.SecretKey == "" {
		return fmt.Errorf("config: PAYMENT_SECRET_KEY is required")
	}
	if c.Payment.MaxRetries < 0 {
		return fmt.Errorf("config: PAYMENT_MAX_RETRIES must be >= 0")
	}
	if c.CheckoutTxTimeout <= 0 {
		return fmt.Errorf("config: CHECKOUT_TX_TIMEOUT must be positive")
	}
	return nil
}

func databaseURLFromParts() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "storefront"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList lê uma lista separada por vírgulas, ignorando itens vazios
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
