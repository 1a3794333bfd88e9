package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	// postgres | mongo | memory
	StoreDriver string
	DBURL       string
	DBMaxConns  int
	MongoURI    string
	MongoDB     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTAccessSecret     string
	JWTRefreshSecret    string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int
	BcryptCost          int
	AdminEmail          string
	AdminPassword       string

	AuthRateLimit  int
	AuthRateWindow time.Duration
	APIRateLimit   int
	APIRateWindow  time.Duration

	CORSAllowedOrigins []string
	OTLPEndpoint       string
	ServiceName        string
}

// Load reads .env (when present) and then the process environment.
func Load() Config {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DBURL:       buildDBURL(),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 5),
		MongoURI:    getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:     getEnv("MONGO_DB", "holocron"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret:    getEnv("JWT_REFRESH_SECRET", ""),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 7),
		BcryptCost:          getEnvInt("BCRYPT_COST", 10),
		AdminEmail:          getEnv("ADMIN_EMAIL", ""),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", 15*time.Minute),
		APIRateLimit:   getEnvInt("API_RATE_LIMIT", 100),
		APIRateWindow:  getEnvDuration("API_RATE_WINDOW", time.Hour),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        getEnv("OTEL_SERVICE_NAME", "holocron-api"),
	}
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	var errs []error

	if c.JWTAccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	}

	if c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}

	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}

	switch c.StoreDriver {
	case "postgres", "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, mongo, memory", c.StoreDriver))
	}

	if c.IsProd() && c.StoreDriver == "memory" {
		errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in prod"))
	}

	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLDays <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "holocron")
	pass := getEnv("DB_PASSWORD", "holocron")
	name := getEnv("DB_NAME", "holocron")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
			return fallback
		}

		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
