package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full process configuration. It is built once in main and
// handed to constructors.
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
		Port string `mapstructure:"port"`
	} `mapstructure:"app"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`

	Store struct {
		Driver string `mapstructure:"driver"` // memory, sqlite, postgres or mongo
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Idempotency struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"idempotency"`

	RabbitMQ struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"rabbitmq"`

	Auth struct {
		JWTSecret  string        `mapstructure:"jwt_secret"`
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
		BcryptCost int           `mapstructure:"bcrypt_cost"`
	} `mapstructure:"auth"`

	Checkout struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"checkout"`

	Catalog struct {
		Seed bool `mapstructure:"seed"`
	} `mapstructure:"catalog"`
}

var drivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true, "mongo": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront")
	v.SetDefault("app.port", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "mydb")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("checkout.timeout", 10*time.Second)
	v.SetDefault("catalog.seed", true)
}

// Load reads, in increasing priority: defaults, an optional config.yaml in
// any of paths (or the working directory), a .env file, and the process
// environment. Nested keys map to env names with "_", e.g. AUTH_JWT_SECRET.
func Load(paths ...string) (Config, error) {
	_ = godotenv.Load() // optional

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	if c.App.Port == "" {
		return fmt.Errorf("app.port required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required")
	}
	if !drivers[c.Store.Driver] {
		return fmt.Errorf("store.driver %q not supported", c.Store.Driver)
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "postgres") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn required for %s", c.Store.Driver)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token TTLs must be positive")
	}
	if c.Checkout.Timeout <= 0 {
		return fmt.Errorf("checkout.timeout must be positive")
	}
	return nil
}
