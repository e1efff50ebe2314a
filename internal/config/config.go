package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPServer struct {
	Addr string `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
}

type Database struct {
	Host            string        `yaml:"PG_HOST" env:"PG_HOST" env-default:"localhost"`
	Port            string        `yaml:"PG_PORT" env:"PG_PORT" env-default:"5432"`
	User            string        `yaml:"PG_USER" env:"PG_USER"`
	Password        string        `yaml:"PG_PASSWORD" env:"PG_PASSWORD"`
	Name            string        `yaml:"PG_DBNAME" env:"PG_DBNAME"`
	SSLMode         string        `yaml:"PG_SSLMODE" env:"PG_SSLMODE" env-default:"require"`
	MaxOpenConns    int           `yaml:"MAX_OPEN_CONNS" env:"PG_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"MAX_IDLE_CONNS" env:"PG_MAX_IDLE_CONNS" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"CONN_MAX_LIFETIME" env:"PG_CONN_MAX_LIFETIME" env-default:"5m"`
	ConnMaxIdleTime time.Duration `yaml:"CONN_MAX_IDLE_TIME" env:"PG_CONN_MAX_IDLE_TIME" env-default:"1m"`
}

type RedisConnect struct {
	Host     string `yaml:"REDIS_HOST" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"REDIS_PORT" env:"REDIS_PORT" env-default:"6379"`
	Username string `yaml:"REDIS_USER" env:"REDIS_USER"`
	Password string `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
}

type Security struct {
	JWTKey     string `yaml:"JWT_KEY" env:"JWT_KEY" env-required:"true"`
	SessionKey string `yaml:"SESSION_KEY" env:"SESSION_KEY" env-required:"true"`
}

type Cache struct {
	DefaultTTL time.Duration `yaml:"default_ttl" env:"CACHE_DEFAULT_TTL" env-default:"5m"`
	GuestTTL   time.Duration `yaml:"guest_ttl" env:"CACHE_GUEST_TTL" env-default:"720h"`
	CouponTTL  time.Duration `yaml:"coupon_ttl" env:"CACHE_COUPON_TTL" env-default:"1m"`
}

type DocStore struct {
	Driver  string `yaml:"driver" env:"DOCSTORE_DRIVER" env-default:"postgres"`
	Channel string `yaml:"channel" env:"DOCSTORE_CHANNEL" env-default:"documents"`
}

type Cart struct {
	Debounce     time.Duration `yaml:"debounce" env:"CART_DEBOUNCE" env-default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"CART_MAX_DELAY" env-default:"2s"`
	FlushRetries uint64        `yaml:"flush_retries" env:"CART_FLUSH_RETRIES" env-default:"3"`
	LoginPolicy  string        `yaml:"login_policy" env:"CART_LOGIN_POLICY" env-default:"discard"`
}

type Currency struct {
	Default       string        `yaml:"default" env:"CURRENCY_DEFAULT" env-default:"INR"`
	DetectURL     string        `yaml:"detect_url" env:"CURRENCY_DETECT_URL" env-default:"https://ipapi.co/{ip}/json/"`
	DetectTimeout time.Duration `yaml:"detect_timeout" env:"CURRENCY_DETECT_TIMEOUT" env-default:"3s"`
}

type Session struct {
	CookieName  string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"htk-session"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
	Secure      bool          `yaml:"secure" env:"SESSION_SECURE" env-default:"true"`
}

type RateConfig struct {
	MaxAttempts int64         `yaml:"max_attempts" env:"COUPON_MAX_ATTEMPTS" env-default:"10"`
	WindowSize  time.Duration `yaml:"window_size" env:"COUPON_WINDOW_SIZE" env-default:"10m"`
}

type Otel struct {
	Enabled          bool    `yaml:"ENABLED" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName      string  `yaml:"SERVICE_NAME" env:"OTEL_SERVICE_NAME" env-default:"htk-storefront"`
	ExporterEndpoint string  `yaml:"EXPORTER_ENDPOINT" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	SamplerRatio     float64 `yaml:"SAMPLER_RATIO" env:"OTEL_SAMPLER_RATIO" env-default:"1.0"`
}

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-required:"true"`
	HTTPServer   `yaml:"http_server"`
	Database     Database     `yaml:"database"`
	RedisConnect RedisConnect `yaml:"redis"`
	Security     Security     `yaml:"security"`
	Cache        Cache        `yaml:"cache"`
	DocStore     DocStore     `yaml:"docstore"`
	Cart         Cart         `yaml:"cart"`
	Currency     Currency     `yaml:"currency"`
	Session      Session      `yaml:"session"`
	RateConfig   RateConfig   `yaml:"coupon_rate_limit"`
	Otel         Otel         `yaml:"otel"`
}

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"

	LoginPolicyDiscard = "discard"
	LoginPolicyMerge   = "merge"
)

func MustLoad() *Config {

	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {

		flags := flag.String("config", "", "gets the config flag value")

		flag.Parse()

		configPath = *flags

		if configPath == "" {
			log.Fatal("Config path is not set")
		}

	}

	cfg, err := LoadConfigFromPath(configPath)
	if err != nil {
		log.Fatalf("can not read config file: %s", err.Error())
	}

	return cfg
}

func LoadConfigFromPath(configPath string) (*Config, error) {

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {

	switch c.DocStore.Driver {
	case DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown docstore driver %q", c.DocStore.Driver)
	}

	switch c.Cart.LoginPolicy {
	case LoginPolicyDiscard, LoginPolicyMerge:
	default:
		return fmt.Errorf("unknown cart login policy %q", c.Cart.LoginPolicy)
	}

	if c.Cart.MaxDelay < c.Cart.Debounce {
		return errors.New("cart max_delay must not be shorter than debounce")
	}

	return nil
}

func (d *Database) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func (r *RedisConnect) GetDSN() string {
	if r.Username == "" && r.Password == "" {
		return fmt.Sprintf("redis://%s:%s/%d", r.Host, r.Port, r.DB)
	}
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d", r.Username, r.Password, r.Host, r.Port, r.DB)
}
