// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage selection, auth, rating, media, rate limiting, events,
// locking and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-library-backend/internal/sysutil"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const minJWTSecretLen = 16

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-library-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and addresses the persistence backend.
type StoreConfig struct {
	Driver          string // mongo|sqlite|postgres
	MongoURI        string
	MongoDatabase   string
	DBPath          string // SQLite path
	PostgresDSN     string
	CatalogSeedPath string // optional Markdown catalog imported into an empty store
}

// AuthConfig holds token and password-hashing settings.
type AuthConfig struct {
	JWTSecret   string
	JWTTTL      time.Duration
	AdminJWTTTL time.Duration
	BcryptCost  int
}

// RatingConfig tunes the rating aggregator.
type RatingConfig struct {
	CASRetries int           // QuickRate compare-and-swap attempts
	LockTTL    time.Duration // per-book recompute lock lifetime
}

// MediaConfig bounds profile image uploads.
type MediaConfig struct {
	ProfileImageMaxDim int   // longest side after downscaling, px
	MaxUploadBytes     int64 // body cap on the upload route
}

// KafkaConfig addresses the event brokers. No brokers means events are
// discarded.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Timeout     time.Duration
}

// RedisConfig addresses the lock server. An empty Addr means in-process
// locking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // bytes, every route except the image upload
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	Store  StoreConfig
	Auth   AuthConfig
	Rating RatingConfig
	Media  MediaConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Kafka KafkaConfig
	Redis RedisConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file, then configuration from environment
// variables, applies defaults, normalizes values, and validates the result.
// Variables already set in the environment win over the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Server
		Port:              getenv("PORT", "5000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_REQUEST_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		Store: StoreConfig{
			Driver:          strings.ToLower(getenv("STORE_DRIVER", DriverMongo)),
			MongoURI:        getenv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getenv("MONGO_DATABASE", "mylibrary"),
			DBPath:          getenv("DB_PATH", "library.db"),
			PostgresDSN:     getenv("POSTGRES_DSN", ""),
			CatalogSeedPath: getenv("CATALOG_SEED_PATH", ""),
		},

		Auth: AuthConfig{
			JWTSecret:   getenv("JWT_SECRET", ""),
			JWTTTL:      getdur("JWT_TTL", 24*time.Hour),
			AdminJWTTTL: getdur("ADMIN_JWT_TTL", time.Hour),
			BcryptCost:  getint("BCRYPT_COST", 12),
		},

		Rating: RatingConfig{
			CASRetries: getint("RATING_CAS_RETRIES", 5),
			LockTTL:    getdur("RATING_LOCK_TTL", 5*time.Second),
		},

		Media: MediaConfig{
			ProfileImageMaxDim: getint("PROFILE_IMAGE_MAX_DIM", 512),
			MaxUploadBytes:     int64(getint("MAX_BODY_BYTES", 8<<20)),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:4200")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Kafka: KafkaConfig{
			Brokers:     splitCSV(getenv("KAFKA_BROKERS", "")),
			TopicPrefix: getenv("KAFKA_TOPIC_PREFIX", "library."),
			Timeout:     getdur("KAFKA_TIMEOUT", 2*time.Second),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-library-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	lvl, err := sysutil.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	cfg.LogLevel = lvl.String()

	return cfg, cfg.validate()
}

// validate returns the first violated rule, naming the variable to fix.
func (c Config) validate() error {
	rules := []struct {
		bad bool
		msg string
	}{
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
			"timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{c.MaxBodyBytes <= 0, "MAX_REQUEST_BYTES must be > 0"},

		{len(c.Auth.JWTSecret) < minJWTSecretLen, "JWT_SECRET must be at least 16 bytes"},
		{c.Auth.JWTTTL <= 0 || c.Auth.AdminJWTTTL <= 0, "JWT_TTL and ADMIN_JWT_TTL must be > 0"},
		{c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31, "BCRYPT_COST must be between 4 and 31"},

		{c.Rating.CASRetries < 1, "RATING_CAS_RETRIES must be >= 1"},
		{c.Rating.LockTTL <= 0, "RATING_LOCK_TTL must be > 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},

		{c.Media.ProfileImageMaxDim < 1, "PROFILE_IMAGE_MAX_DIM must be >= 1"},
		{c.Media.MaxUploadBytes <= 0, "MAX_BODY_BYTES must be > 0"},

		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},

		{c.Kafka.Timeout <= 0, "KAFKA_TIMEOUT must be > 0"},
		{c.Redis.DB < 0, "REDIS_DB must be >= 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, r := range rules {
		if r.bad {
			return errors.New(r.msg)
		}
	}
	return c.Store.validate()
}

func (s StoreConfig) validate() error {
	blank := func(v string) bool { return strings.TrimSpace(v) == "" }
	switch s.Driver {
	case DriverMongo:
		if blank(s.MongoURI) || blank(s.MongoDatabase) {
			return errors.New("MONGO_URI and MONGO_DATABASE must not be empty")
		}
	case DriverSQLite:
		if blank(s.DBPath) {
			return errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if blank(s.PostgresDSN) {
			return errors.New("POSTGRES_DSN must not be empty")
		}
	default:
		return errors.New("STORE_DRIVER must be one of: mongo, sqlite, postgres")
	}
	return nil
}

// ---- helpers ----

// lookup parses the variable k, returning def when it is unset, empty or
// malformed.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	if out, err := parse(v); err == nil {
		return out
	}
	return def
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
