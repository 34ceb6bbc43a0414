package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Policy   PolicyConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For; empty trusts none.
	TrustedProxies []string
}

type StoreConfig struct {
	Driver string
}

type RedisConfig struct {
	// Addr is empty when Redis is disabled (REDIS_ADDR set to "").
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN renders the connection URL pgxpool expects.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type AuthConfig struct {
	Secret string
	TTL    time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	FrontendURL   string
}

type PolicyConfig struct {
	EnforceOwnership bool
	// LoginRateLimit is the number of login attempts allowed per client IP per minute.
	LoginRateLimit int
}

type LogConfig struct {
	Level  string
	Format string
}

// New reads configuration from envFile (when given) or ./.env, then from the
// process environment. Variables already set in the environment win.
func New(envFile string) (*Config, error) {
	const op = "config.New"

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("%s: load %s: %w", op, envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:           stringEnv("SERVER_HOST", "localhost"),
		Port:           serverPort,
		AllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS"),
		TrustedProxies: listEnv("TRUSTED_PROXIES"),
	}

	for _, p := range serverCfg.TrustedProxies {
		if !validProxy(p) {
			return nil, fmt.Errorf("%s: invalid TRUSTED_PROXIES entry %q", op, p)
		}
	}

	driver := strings.ToLower(stringEnv("STORE_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, driver)
	}

	postgresCfg, err := loadPostgres(driver == DriverPostgres)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     stringEnv("REDIS_ADDR", "localhost:6380"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	jwtTTL, err := durationEnv("JWT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	enforce, err := boolEnv("ENFORCE_OWNERSHIP", false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loginLimit, err := intEnv("RATE_LIMIT_LOGIN", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Store:    StoreConfig{Driver: driver},
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth: AuthConfig{
			Secret: jwtSecret,
			TTL:    jwtTTL,
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(stringEnv("CHECKOUT_CURRENCY", "usd")),
			FrontendURL:   strings.TrimRight(stringEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		},
		Policy: PolicyConfig{
			EnforceOwnership: enforce,
			LoginRateLimit:   loginLimit,
		},
		Log: LogConfig{
			Level:  strings.ToLower(stringEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(stringEnv("LOG_FORMAT", "text")),
		},
	}, nil
}

func loadPostgres(required bool) (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	if !required {
		return cfg, nil
	}

	if cfg.User == "" {
		return cfg, fmt.Errorf("missing POSTGRES_USER")
	}

	if cfg.Password == "" {
		return cfg, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	if cfg.Name == "" {
		return cfg, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

// stringEnv returns def only when key is unset, so an explicitly empty value
// can switch a component off.
func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// validProxy accepts an IP address or a CIDR range.
func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// listEnv splits a comma separated variable, dropping empty items.
func listEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
