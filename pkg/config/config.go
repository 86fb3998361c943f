package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Overpayment policies accepted by FEE_OVERPAYMENT_POLICY.
const (
	OverpaymentReject = "reject"
	OverpaymentAccept = "accept"
)

// Receipt storage backends accepted by RECEIPTS_BACKEND.
const (
	ReceiptBackendLocal = "local"
	ReceiptBackendS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Fees         FeesConfig
	Reservations ReservationsConfig
	Promotions   PromotionsConfig
	Dashboard    DashboardConfig
	Receipts     ReceiptsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates tokens minted by the external auth service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FeesConfig governs ledger mutation policies.
type FeesConfig struct {
	OverpaymentPolicy   string
	TermsDerivedFromNet bool
}

// ReservationsConfig tunes the admission lifecycle.
type ReservationsConfig struct {
	RequireApplicationFee bool
}

// PromotionsConfig holds year-end policy defaults.
type PromotionsConfig struct {
	RequireFeesPaid bool
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled     bool
	CacheTTL    time.Duration
	RefreshCron string
}

// ReceiptsConfig configures asynchronous receipt rendering.
type ReceiptsConfig struct {
	Enabled           bool
	Backend           string
	StorageDir        string
	S3Bucket          string
	S3Region          string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	CleanupCron       string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		TxTimeout:    parseDuration(v.GetString("STORAGE_TX_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	policy := strings.ToLower(strings.TrimSpace(v.GetString("FEE_OVERPAYMENT_POLICY")))
	if policy != OverpaymentAccept {
		policy = OverpaymentReject
	}
	cfg.Fees = FeesConfig{
		OverpaymentPolicy:   policy,
		TermsDerivedFromNet: v.GetBool("FEE_TERMS_DERIVED_FROM_NET"),
	}

	cfg.Reservations = ReservationsConfig{
		RequireApplicationFee: v.GetBool("RESERVATION_REQUIRE_APPLICATION_FEE"),
	}

	cfg.Promotions = PromotionsConfig{
		RequireFeesPaid: v.GetBool("PROMOTION_REQUIRE_FEES_PAID"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:     v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL:    parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
		RefreshCron: v.GetString("DASHBOARD_REFRESH_CRON"),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("RECEIPTS_BACKEND")))
	if backend != ReceiptBackendS3 {
		backend = ReceiptBackendLocal
	}
	cfg.Receipts = ReceiptsConfig{
		Enabled:           v.GetBool("ENABLE_RECEIPTS"),
		Backend:           backend,
		StorageDir:        v.GetString("RECEIPTS_STORAGE_DIR"),
		S3Bucket:          v.GetString("RECEIPTS_S3_BUCKET"),
		S3Region:          v.GetString("RECEIPTS_S3_REGION"),
		SignedURLSecret:   v.GetString("RECEIPTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("RECEIPTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("RECEIPTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("RECEIPTS_WORKER_RETRIES"),
		CleanupCron:       v.GetString("RECEIPTS_CLEANUP_CRON"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_fees")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("STORAGE_TX_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FEE_OVERPAYMENT_POLICY", OverpaymentReject)
	v.SetDefault("FEE_TERMS_DERIVED_FROM_NET", true)
	v.SetDefault("RESERVATION_REQUIRE_APPLICATION_FEE", false)
	v.SetDefault("PROMOTION_REQUIRE_FEES_PAID", true)

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("DASHBOARD_REFRESH_CRON", "@every 15m")

	v.SetDefault("ENABLE_RECEIPTS", false)
	v.SetDefault("RECEIPTS_BACKEND", ReceiptBackendLocal)
	v.SetDefault("RECEIPTS_STORAGE_DIR", "./receipts")
	v.SetDefault("RECEIPTS_S3_BUCKET", "")
	v.SetDefault("RECEIPTS_S3_REGION", "ap-southeast-1")
	v.SetDefault("RECEIPTS_SIGNED_URL_SECRET", "dev_receipts_secret")
	v.SetDefault("RECEIPTS_SIGNED_URL_TTL", "720h")
	v.SetDefault("RECEIPTS_WORKER_CONCURRENCY", 2)
	v.SetDefault("RECEIPTS_WORKER_RETRIES", 3)
	v.SetDefault("RECEIPTS_CLEANUP_CRON", "@daily")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
