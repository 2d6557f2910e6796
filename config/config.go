package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL"`
	Postgres  Postgres
	Redis     Redis
	API       API
	Cache     Cache
	Jobs      Jobs
	Recompute Recompute
	HTTP      HTTP
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug         bool          `env:"API_DEBUG"`
	Timeout       time.Duration `env:"API_TIMEOUT"`
	RetryCount    int           `env:"API_RETRY_COUNT"`
	RetryWaitTime time.Duration `env:"API_RETRY_WAIT_TIME"`
	MarketData    MarketData
}

type MarketData struct {
	Url    string `env:"MARKET_DATA_API_URL"`
	ApiKey string `env:"MARKET_DATA_API_KEY"`
}

type Cache struct {
	EntryExpiration time.Duration `env:"CACHE_ENTRY_EXPIRATION"`
	KeyPrefix       string        `env:"CACHE_KEY_PREFIX" envDefault:"calendar:"`
}

type Jobs struct {
	MarketRefreshInterval time.Duration `env:"MARKET_REFRESH_JOB_INTERVAL"`
	CacheFlushInterval    time.Duration `env:"CACHE_FLUSH_JOB_INTERVAL"`
}

type Recompute struct {
	DebounceWindow time.Duration `env:"RECOMPUTE_DEBOUNCE_WINDOW" envDefault:"500ms"`
}

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
