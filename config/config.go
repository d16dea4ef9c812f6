// Package config loads flashbench settings from FLASH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/unkn0wn-root/flashcache"
)

// Prefix is prepended to every variable name. Nested structs add their field
// name, so Redis.Addr is read from FLASH_REDIS_ADDR and DB.Host from FLASH_DB_HOST.
const Prefix = "FLASH"

// -----------------------------------------------------------------------------
// Every setting has a default that works against a local redis; secrets
// default to empty.
// -----------------------------------------------------------------------------

type Config struct {
	Redis   RedisConfig
	DB      DBConfig
	Cache   CacheConfig
	Seckill SeckillConfig
	Kafka   KafkaConfig
	Log     LogConfig
}

type RedisConfig struct {
	Addr     string `split_words:"true" default:"localhost:6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// DBConfig selects the durable store. Driver "memory" keeps everything
// in-process and ignores the connection fields.
type DBConfig struct {
	Driver   string `split_words:"true" default:"memory"`
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"5432"`
	User     string `split_words:"true" default:"flash"`
	Password string `split_words:"true"`
	DBName   string `split_words:"true" default:"flash"`
	SSLMode  string `split_words:"true" default:"disable"`
	MaxConns int32  `split_words:"true" default:"20"`
}

type CacheConfig struct {
	Namespace      string        `split_words:"true" default:"flash"`
	Provider       string        `split_words:"true" default:"redis"` // redis|memory|ristretto|bigcache
	Codec          string        `split_words:"true" default:"json"`  // json|msgpack|cbor
	Strategy       string        `split_words:"true" default:"mutex"` // pass_through|mutex|logical_expire
	DefaultTTL     time.Duration `split_words:"true" default:"30m"`
	NullTTL        time.Duration `split_words:"true" default:"2m"`
	LockTTL        time.Duration `split_words:"true" default:"10s"`
	RebuildWorkers int           `split_words:"true" default:"10"`
	MaxEntryBytes  int           `split_words:"true" default:"1048576"`
}

type SeckillConfig struct {
	OfferID         int64         `split_words:"true" default:"1"`
	Stock           int           `split_words:"true" default:"100"`
	Users           int           `split_words:"true" default:"1000"`
	AttemptsPerUser int           `split_words:"true" default:"2"`
	Window          time.Duration `split_words:"true" default:"1h"`
	UserLockTTL     time.Duration `split_words:"true" default:"10s"`
}

// KafkaConfig enables order publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `split_words:"true"`
	Topic   string   `split_words:"true" default:"voucher-orders"`
}

type LogConfig struct {
	Level string `split_words:"true" default:"info"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.MaxConns,
	)
}

// ParseStrategy maps the configured name to a cache strategy.
func (c *CacheConfig) ParseStrategy() (flashcache.Strategy, error) {
	for _, s := range []flashcache.Strategy{flashcache.PassThrough, flashcache.Mutex, flashcache.LogicalExpire} {
		if strings.EqualFold(c.Strategy, s.String()) {
			return s, nil
		}
	}
	return 0, errors.Newf("config: unknown cache strategy %q", c.Strategy)
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	if _, err := cfg.Cache.ParseStrategy(); err != nil {
		return Config{}, err
	}
	switch cfg.DB.Driver {
	case "memory", "postgres":
	default:
		return Config{}, errors.Newf("config: unknown db driver %q", cfg.DB.Driver)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		DB:    DBConfig{Driver: "memory"},
		Cache: CacheConfig{
			Namespace:      "test",
			Provider:       "memory",
			Codec:          "json",
			Strategy:       "mutex",
			DefaultTTL:     time.Minute,
			NullTTL:        10 * time.Second,
			LockTTL:        time.Second,
			RebuildWorkers: 2,
			MaxEntryBytes:  1 << 16,
		},
		Seckill: SeckillConfig{
			OfferID:         1,
			Stock:           5,
			Users:           20,
			AttemptsPerUser: 2,
			Window:          time.Hour,
			UserLockTTL:     time.Second,
		},
		Log: LogConfig{Level: "error"},
	}
}
