package config

import (
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// DefaultJWTSecret is accepted outside production only.
const DefaultJWTSecret = "default_secret"

const minProductionSecretBytes = 32

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Stores.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config centralises runtime configuration.
type Config struct {
	Env            string
	Store          string
	HTTPPort       string
	DatabaseURL    string
	JWTSecret      string
	JWTIssuer      string
	TokenTTL       time.Duration
	BcryptCost     int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	LogFormat      string
	LogLevel       string
	PhoneRegion    string

	// UsingDefaultSecret is set when JWTSecret fell back to DefaultJWTSecret.
	UsingDefaultSecret bool
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// defaults maps every known key to its default. Environment variables are
// the upper-cased keys.
var defaults = map[string]any{
	"app_env":              EnvDevelopment,
	"store":                StorePostgres,
	"http_port":            "8080",
	"database_url":         "",
	"jwt_secret":           "",
	"jwt_issuer":           "bandsched",
	"auth_token_ttl":       "168h",
	"auth_bcrypt_cost":     "10",
	"auth_rate_limit":      "5",
	"auth_rate_burst":      "10",
	"cors_allowed_origins": "*",
	"http_read_timeout":    "15s",
	"http_write_timeout":   "15s",
	"http_idle_timeout":    "60s",
	"log_format":           "json",
	"log_level":            "info",
	"phone_default_region": "US",
}

// Load builds a Config from defaults, then the optional YAML file at path,
// then environment variables, then flags the caller explicitly set. Later
// sources win.
func Load(flags *pflag.FlagSet, path string) (Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Config{}, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	_, httpPortSet := os.LookupEnv("HTTP_PORT")
	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if name == "PORT" && !httpPortSet && value != "" {
			return "http_port", value
		}
		key := strings.ToLower(name)
		if _, known := defaults[key]; !known || value == "" {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	return build(k)
}

func build(k *koanf.Koanf) (Config, error) {
	var errs fieldErrors

	cfg := Config{
		Env:            strings.ToLower(strings.TrimSpace(k.String("app_env"))),
		Store:          strings.ToLower(strings.TrimSpace(k.String("store"))),
		HTTPPort:       strings.TrimSpace(k.String("http_port")),
		DatabaseURL:    coerceDatabaseURL(k.String("database_url")),
		JWTSecret:      k.String("jwt_secret"),
		JWTIssuer:      strings.TrimSpace(k.String("jwt_issuer")),
		TokenTTL:       errs.durationValue(k, "auth_token_ttl"),
		BcryptCost:     errs.intValue(k, "auth_bcrypt_cost"),
		RateLimit:      errs.floatValue(k, "auth_rate_limit"),
		RateBurst:      errs.intValue(k, "auth_rate_burst"),
		AllowedOrigins: splitCSV(k.String("cors_allowed_origins")),
		ReadTimeout:    errs.durationValue(k, "http_read_timeout"),
		WriteTimeout:   errs.durationValue(k, "http_write_timeout"),
		IdleTimeout:    errs.durationValue(k, "http_idle_timeout"),
		LogFormat:      strings.ToLower(strings.TrimSpace(k.String("log_format"))),
		LogLevel:       strings.ToLower(strings.TrimSpace(k.String("log_level"))),
		PhoneRegion:    strings.ToUpper(strings.TrimSpace(k.String("phone_default_region"))),
	}
	if err := errs.err(); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = resolveDatabaseURL()
	}
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = DefaultJWTSecret
		cfg.UsingDefaultSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, "test":
	default:
		return oops.Code("CONFIG_INVALID").With("key", "app_env").Errorf("APP_ENV must be development, test or production, got %q", c.Env)
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "database_url").
				Errorf("database configuration missing: provide DATABASE_URL or PG* env vars")
		}
	case StoreMemory:
		if c.IsProduction() {
			return oops.Code("CONFIG_INVALID").With("key", "store").Errorf("the memory store is not allowed in production")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("key", "store").Errorf("store must be postgres or memory, got %q", c.Store)
	}
	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret {
			return oops.Code("CONFIG_INVALID").With("key", "jwt_secret").Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWTSecret) < minProductionSecretBytes {
			return oops.Code("CONFIG_INVALID").With("key", "jwt_secret").
				Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretBytes)
		}
	}
	if c.HTTPPort == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http_port").Errorf("HTTP_PORT must not be empty")
	}
	if c.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth_token_ttl").Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth_rate_limit").Errorf("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("key", "log_format").Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// fieldErrors collects the first parse failure so build can report it with
// the offending key.
type fieldErrors struct {
	first error
}

func (e *fieldErrors) record(key, raw string, err error) {
	if e.first == nil {
		e.first = oops.Code("CONFIG_INVALID").With("key", key).With("value", raw).Wrap(err)
	}
}

func (e *fieldErrors) err() error { return e.first }

// durationValue accepts a Go duration string or a bare number of seconds.
func (e *fieldErrors) durationValue(k *koanf.Koanf, key string) time.Duration {
	raw := strings.TrimSpace(k.String(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.record(key, raw, err)
	}
	return d
}

func (e *fieldErrors) intValue(k *koanf.Koanf, key string) int {
	raw := strings.TrimSpace(k.String(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.record(key, raw, err)
	}
	return n
}

func (e *fieldErrors) floatValue(k *koanf.Koanf, key string) float64 {
	raw := strings.TrimSpace(k.String(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.record(key, raw, err)
	}
	return f
}

func splitCSV(value string) []string {
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

// resolveDatabaseURL falls back to hosted-provider URL variables and then to
// libpq-style PG* parts.
func resolveDatabaseURL() string {
	for _, key := range []string{"DATABASE_PUBLIC_URL", "POSTGRES_URL", "PGURL"} {
		if url := coerceDatabaseURL(os.Getenv(key)); url != "" {
			return url
		}
	}

	host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("POSTGRES_HOST"))
	user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("POSTGRES_USER"))
	if host == "" || user == "" {
		return ""
	}
	password := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("POSTGRES_PASSWORD"))
	database := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("POSTGRES_DB"), user)
	port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("POSTGRES_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("PGSSLMODE"), "require")

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"):
		return raw
	case strings.HasPrefix(raw, "postgresql://"):
		return "postgres://" + strings.TrimPrefix(raw, "postgresql://")
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
