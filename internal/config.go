package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"

	DedupMemory = "memory"
	DedupRedis  = "redis"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	GRPCPort             int           `env:"GRPC_PORT,default=50051"`
	HTTPPort             int           `env:"HTTP_PORT,default=3000"`
	Store                string        `env:"STORE,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	DedupBackend         string        `env:"DEDUP_BACKEND,default=memory"`
	RedisURL             string        `env:"REDIS_URL"`
	DedupWindow          time.Duration `env:"DEDUP_WINDOW,default=5s"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL,default=10s"`
	EchoToSender         bool          `env:"ECHO_TO_SENDER,default=false"`
	AuthEnabled          bool          `env:"AUTH_ENABLED,default=true"`
	JWTSecret            string        `env:"JWT_SECRET"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	CensoredWordsPath    string        `env:"CENSORED_WORDS_PATH"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	CorsOrigins          string        `env:"CORS_ORIGINS,default=*"`
}

// Validate checks the combinations go-env cannot express.
func (c Config) Validate() error {
	switch c.Store {
	case StoreBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required when STORE=%s", StoreBadger)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE must be %s or %s, got %q", StoreBadger, StorePostgres, c.Store)
	}

	switch c.DedupBackend {
	case DedupMemory:
	case DedupRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DEDUP_BACKEND=%s", DedupRedis)
		}
	default:
		return fmt.Errorf("DEDUP_BACKEND must be %s or %s, got %q", DedupMemory, DedupRedis, c.DedupBackend)
	}

	if c.AuthEnabled && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is set")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive, got %s", c.DedupWindow)
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
